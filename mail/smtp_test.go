package mail

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessionauth "github.com/MrEthical07/sessionauth"
)

// fakeRelay speaks just enough SMTP for one unauthenticated transaction.
type fakeRelay struct {
	ln net.Listener

	mu   sync.Mutex
	from string
	rcpt []string
	data string
	done chan struct{}
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := &fakeRelay{ln: ln, done: make(chan struct{})}
	t.Cleanup(func() { ln.Close() })
	go r.serve()
	return r
}

func (r *fakeRelay) port() int { return r.ln.Addr().(*net.TCPAddr).Port }

func (r *fakeRelay) serve() {
	defer close(r.done)
	conn, err := r.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	rd := bufio.NewReader(conn)
	reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
	reply("220 fake ESMTP")

	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			reply("250 fake")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			r.mu.Lock()
			r.from = cmd[len("MAIL FROM:"):]
			r.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			r.mu.Lock()
			r.rcpt = append(r.rcpt, cmd[len("RCPT TO:"):])
			r.mu.Unlock()
			reply("250 OK")
		case upper == "DATA":
			reply("354 go ahead")
			var body strings.Builder
			for {
				l, err := rd.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			r.mu.Lock()
			r.data = body.String()
			r.mu.Unlock()
			reply("250 queued")
		case upper == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func TestNewSMTPSenderValidates(t *testing.T) {
	_, err := NewSMTPSender(SMTPConfig{From: "a@example.com"})
	assert.Error(t, err)

	_, err = NewSMTPSender(SMTPConfig{Host: "localhost", From: "not an address"})
	assert.Error(t, err)
}

func TestSMTPSenderDelivers(t *testing.T) {
	relay := newFakeRelay(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := NewSMTPSender(SMTPConfig{
		Host: "127.0.0.1",
		Port: relay.port(),
		From: "Auth <auth@example.com>",
		Now:  func() time.Time { return now },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = s.Send(ctx, sessionauth.EmailMessage{
		To:      "ada@example.com",
		Subject: "Verify your email",
		Body:    "Click:\n\nhttps://app.example.com/verify?token=abc\n",
	})
	require.NoError(t, err)
	<-relay.done

	relay.mu.Lock()
	defer relay.mu.Unlock()
	assert.Equal(t, "<auth@example.com>", relay.from)
	assert.Equal(t, []string{"<ada@example.com>"}, relay.rcpt)
	assert.Contains(t, relay.data, "Subject: Verify your email\r\n")
	assert.Contains(t, relay.data, "To: <ada@example.com>\r\n")
	assert.Contains(t, relay.data, "Date: "+now.Format(time.RFC1123Z)+"\r\n")
	assert.Contains(t, relay.data, "\r\n\r\nClick:\r\n\r\nhttps://app.example.com/verify?token=abc\r\n")
}

func TestSMTPSenderRejectsHeaderInjection(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: 1, From: "auth@example.com"})
	require.NoError(t, err)

	err = s.Send(context.Background(), sessionauth.EmailMessage{
		To:      "ada@example.com",
		Subject: "hi\r\nBcc: victim@example.com",
	})
	assert.ErrorIs(t, err, ErrHeaderInjection)

	err = s.Send(context.Background(), sessionauth.EmailMessage{To: "bad\r\naddress"})
	assert.Error(t, err)
}

func TestSMTPSenderDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s, err := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: port, From: "auth@example.com"})
	require.NoError(t, err)

	err = s.Send(context.Background(), sessionauth.EmailMessage{To: "ada@example.com", Subject: "x"})
	assert.Error(t, err)
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := LogSender{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	err := s.Send(context.Background(), sessionauth.EmailMessage{To: "ada@example.com", Subject: "Reset", Body: "token"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"to":"ada@example.com"`)
	assert.Contains(t, buf.String(), `"subject":"Reset"`)
}
