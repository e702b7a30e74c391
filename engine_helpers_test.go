package sessionauth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/sessionauth/secrets"
)

const testSecret = "test-signing-secret-0123456789abcdef"

var errStoreDown = errors.New("store down")

// memStore is an in-memory AccountStore. Methods named in fail return the
// mapped error.
type memStore struct {
	mu sync.Mutex

	nextID   int
	users    map[string]*User
	byEmail  map[string]string
	refresh  map[string]*RefreshTokenRecord
	resets   map[string]*OneTimeTokenRecord
	verifies map[string]*OneTimeTokenRecord
	fail     map[string]error
	calls    map[string]int
	now      func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*User{},
		byEmail:  map[string]string{},
		refresh:  map[string]*RefreshTokenRecord{},
		resets:   map[string]*OneTimeTokenRecord{},
		verifies: map[string]*OneTimeTokenRecord{},
		fail:     map[string]error{},
		calls:    map[string]int{},
		now:      time.Now,
	}
}

func (s *memStore) failOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

func (s *memStore) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *memStore) enter(method string) error {
	s.calls[method]++
	return s.fail[method]
}

func (s *memStore) newID(prefix string) string {
	s.nextID++
	return prefix + "-" + strconv.Itoa(s.nextID)
}

func copyUser(u *User) *User {
	c := *u
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		c.PasswordHash = &h
	}
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	if u.GoogleID != nil {
		g := *u.GoogleID
		c.GoogleID = &g
	}
	return &c
}

func (s *memStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindUserByEmail"); err != nil {
		return nil, err
	}
	id, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	return copyUser(s.users[id]), nil
}

func (s *memStore) FindUserByID(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindUserByID"); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (s *memStore) CreateUser(_ context.Context, in CreateUserInput) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateUser"); err != nil {
		return nil, err
	}
	if _, ok := s.byEmail[in.Email]; ok {
		return nil, ErrRecordExists
	}
	u := &User{
		ID:            s.newID("user"),
		Email:         in.Email,
		PasswordHash:  in.PasswordHash,
		EmailVerified: in.EmailVerified,
		GoogleID:      in.GoogleID,
		Name:          in.Name,
		PictureURL:    in.PictureURL,
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return copyUser(u), nil
}

func (s *memStore) user(id string) (*User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return u, nil
}

func (s *memStore) RecordLoginFailure(_ context.Context, id string, now time.Time, policy LockoutPolicy) (*LoginFailure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RecordLoginFailure"); err != nil {
		return nil, err
	}
	u, err := s.user(id)
	if err != nil {
		return nil, err
	}
	if u.IsLocked(now) {
		return &LoginFailure{Attempts: u.LoginAttempts, LockedUntil: u.LockedUntil, AlreadyLocked: true}, nil
	}
	d := policy.RecordFailure(u.LoginAttempts, u.LockedUntil, now)
	u.LoginAttempts = d.Attempts
	u.LockedUntil = d.LockedUntil
	return &LoginFailure{Attempts: d.Attempts, LockedUntil: d.LockedUntil}, nil
}

func (s *memStore) ResetLoginAttempts(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ResetLoginAttempts"); err != nil {
		return err
	}
	u, err := s.user(id)
	if err != nil {
		return err
	}
	u.LoginAttempts = 0
	u.LockedUntil = nil
	return nil
}

// setLock seeds lockout state directly.
func (s *memStore) setLock(id string, attempts int, lockedUntil *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id].LoginAttempts = attempts
	s.users[id].LockedUntil = lockedUntil
}

func (s *memStore) UpdatePassword(_ context.Context, id, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdatePassword"); err != nil {
		return err
	}
	u, err := s.user(id)
	if err != nil {
		return err
	}
	u.PasswordHash = &hash
	return nil
}

func (s *memStore) MarkEmailVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MarkEmailVerified"); err != nil {
		return err
	}
	u, err := s.user(id)
	if err != nil {
		return err
	}
	u.EmailVerified = true
	return nil
}

func (s *memStore) UpdateProfile(_ context.Context, id string, up ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateProfile"); err != nil {
		return err
	}
	u, err := s.user(id)
	if err != nil {
		return err
	}
	applyProfile(u, up)
	return nil
}

func (s *memStore) CreateRefreshToken(_ context.Context, userID, token string, expiresAt time.Time) (*RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateRefreshToken"); err != nil {
		return nil, err
	}
	return s.insertRefresh(userID, token, expiresAt), nil
}

func (s *memStore) insertRefresh(userID, token string, expiresAt time.Time) *RefreshTokenRecord {
	rec := &RefreshTokenRecord{ID: s.newID("rt"), UserID: userID, Token: token, ExpiresAt: expiresAt}
	s.refresh[token] = rec
	c := *rec
	return &c
}

func (s *memStore) FindRefreshToken(_ context.Context, token string) (*RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindRefreshToken"); err != nil {
		return nil, err
	}
	rec, ok := s.refresh[token]
	if !ok {
		return nil, nil
	}
	c := *rec
	return &c, nil
}

func (s *memStore) RevokeRefreshToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RevokeRefreshToken"); err != nil {
		return err
	}
	rec, ok := s.refresh[token]
	if !ok || rec.Revoked {
		return ErrRecordNotFound
	}
	rec.Revoked = true
	return nil
}

func (s *memStore) RevokeAllUserTokens(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RevokeAllUserTokens"); err != nil {
		return err
	}
	for _, rec := range s.refresh {
		if rec.UserID == userID {
			rec.Revoked = true
		}
	}
	return nil
}

func (s *memStore) liveRefreshCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.refresh {
		if rec.UserID == userID && !rec.Revoked {
			n++
		}
	}
	return n
}

func (s *memStore) CreatePasswordReset(_ context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreatePasswordReset"); err != nil {
		return err
	}
	s.resets[token] = &OneTimeTokenRecord{ID: s.newID("pr"), UserID: userID, Token: token, CreatedAt: s.now(), ExpiresAt: expiresAt}
	return nil
}

func (s *memStore) FindPasswordReset(_ context.Context, token string) (*PasswordResetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindPasswordReset"); err != nil {
		return nil, err
	}
	rec, ok := s.resets[token]
	if !ok {
		return nil, nil
	}
	c := *rec
	return &c, nil
}

func (s *memStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MarkPasswordResetUsed"); err != nil {
		return err
	}
	rec, ok := s.resets[token]
	if !ok || rec.Used {
		return ErrRecordNotFound
	}
	rec.Used = true
	return nil
}

func (s *memStore) CreateEmailVerification(_ context.Context, userID, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateEmailVerification"); err != nil {
		return err
	}
	s.verifies[token] = &OneTimeTokenRecord{ID: s.newID("ev"), UserID: userID, Token: token, ExpiresAt: expiresAt}
	return nil
}

func (s *memStore) FindEmailVerification(_ context.Context, token string) (*EmailVerificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("FindEmailVerification"); err != nil {
		return nil, err
	}
	rec, ok := s.verifies[token]
	if !ok {
		return nil, nil
	}
	c := *rec
	return &c, nil
}

func (s *memStore) MarkEmailVerificationUsed(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MarkEmailVerificationUsed"); err != nil {
		return err
	}
	rec, ok := s.verifies[token]
	if !ok || rec.Used {
		return ErrRecordNotFound
	}
	rec.Used = true
	return nil
}

// rotatingStore adds transactional rotation on top of memStore.
type rotatingStore struct {
	*memStore
}

func (s rotatingStore) RotateRefreshToken(_ context.Context, oldToken, userID, newToken string, expiresAt time.Time) (*RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("RotateRefreshToken"); err != nil {
		return nil, err
	}
	rec, ok := s.refresh[oldToken]
	if !ok || rec.Revoked {
		return nil, ErrRecordNotFound
	}
	rec.Revoked = true
	return s.insertRefresh(userID, newToken, expiresAt), nil
}

type captureMailer struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// lastToken returns the token at the end of the most recent mail body.
func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail sent")
	}
	body := strings.TrimSpace(m.sent[len(m.sent)-1].Body)
	return body[strings.LastIndexAny(body, "\n=")+1:]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.EmailVerification.LinkURL = "https://app.example/verify?token="
	cfg.PasswordReset.LinkURL = "https://app.example/reset?token="
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine *Engine
	store  *memStore
	mailer *captureMailer
	clock  *fakeClock
}

type envOption func(*Builder, *testEnv)

func withRotator() envOption {
	return func(b *Builder, env *testEnv) {
		b.WithAccountStore(rotatingStore{env.store})
	}
}

func withConfig(mutate func(*Config)) envOption {
	return func(b *Builder, _ *testEnv) {
		cfg := testConfig()
		mutate(&cfg)
		b.WithConfig(cfg)
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		store:  newMemStore(),
		mailer: &captureMailer{},
		clock:  newFakeClock(),
	}
	env.store.now = env.clock.Now

	b := New().
		WithConfig(testConfig()).
		WithAccountStore(env.store).
		WithSecretProvider(secrets.Static(testSecret)).
		WithEmailSender(env.mailer).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(b, env)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// seedUser creates a password account directly in the store.
func (env *testEnv) seedUser(t *testing.T, email, password string, verified bool) *User {
	t.Helper()
	hash, err := env.engine.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := env.store.CreateUser(context.Background(), CreateUserInput{
		Email:         email,
		PasswordHash:  &hash,
		EmailVerified: verified,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (env *testEnv) storedUser(t *testing.T, id string) *User {
	t.Helper()
	u, err := env.store.FindUserByID(context.Background(), id)
	if err != nil || u == nil {
		t.Fatalf("load user %s: %v", id, err)
	}
	return u
}
