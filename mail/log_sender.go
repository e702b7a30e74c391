package mail

import (
	"context"
	"log/slog"

	sessionauth "github.com/MrEthical07/sessionauth"
)

// LogSender writes messages to a logger instead of delivering them.
// The body holds live tokens; never use it outside development.
type LogSender struct {
	Logger *slog.Logger
}

var _ sessionauth.EmailSender = LogSender{}

func (s LogSender) Send(ctx context.Context, msg sessionauth.EmailMessage) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email suppressed",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
