package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/internal"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	tablePasswordResets     = "password_resets"
	tableEmailVerifications = "email_verifications"

	maxFailureRetries = 8
)

// ErrContended is returned when a failed login could not be counted
// because the row kept changing underneath the update.
var ErrContended = errors.New("gormstore: login attempts contended")

// SQLiteDSN returns dsn with foreign key enforcement switched on. SQLite
// leaves it off per connection unless the pragma is given.
func SQLiteDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// Store is safe for concurrent use; all state lives in the database.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

type Option func(*Store)

// WithClock sets the time source for CreatedAt stamps, which drive the
// reset counting window.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates or updates the tables.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&userModel{},
		&refreshTokenModel{},
		&passwordResetModel{},
		&emailVerificationModel{},
	)
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

/*
====================================
USERS
====================================
*/

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*sessionauth.User, error) {
	return s.findUser(ctx, "email = ?", email)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*sessionauth.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *Store) findUser(ctx context.Context, query string, arg any) (*sessionauth.User, error) {
	var m userModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m.toUser(), nil
}

func (s *Store) CreateUser(ctx context.Context, in sessionauth.CreateUserInput) (*sessionauth.User, error) {
	now := s.stamp()
	m := userModel{
		ID:            uuid.NewString(),
		Email:         in.Email,
		PasswordHash:  in.PasswordHash,
		EmailVerified: in.EmailVerified,
		GoogleID:      in.GoogleID,
		Name:          in.Name,
		PictureURL:    in.PictureURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, translate(err)
	}
	return m.toUser(), nil
}

// RecordLoginFailure applies policy with a compare-and-swap on the stored
// attempt count. The update only matches while the row still holds the
// count that was read and no lock is in force, so parallel failures retry
// instead of overwriting each other.
func (s *Store) RecordLoginFailure(ctx context.Context, id string, now time.Time, policy sessionauth.LockoutPolicy) (*sessionauth.LoginFailure, error) {
	now = now.UTC()
	db := s.db.WithContext(ctx)

	for range maxFailureRetries {
		var m userModel
		if err := db.Select("id", "login_attempts", "locked_until").Where("id = ?", id).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, sessionauth.ErrRecordNotFound
			}
			return nil, err
		}
		if m.LockedUntil != nil && m.LockedUntil.After(now) {
			return &sessionauth.LoginFailure{
				Attempts:      m.LoginAttempts,
				LockedUntil:   m.LockedUntil,
				AlreadyLocked: true,
			}, nil
		}

		d := policy.RecordFailure(m.LoginAttempts, m.LockedUntil, now)
		res := db.Model(&userModel{}).
			Where("id = ? AND login_attempts = ?", id, m.LoginAttempts).
			Where("(locked_until IS NULL OR locked_until <= ?)", now).
			Updates(map[string]any{
				"login_attempts": d.Attempts,
				"locked_until":   nullableTime(d.LockedUntil),
				"updated_at":     s.stamp(),
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			return &sessionauth.LoginFailure{Attempts: d.Attempts, LockedUntil: d.LockedUntil}, nil
		}
	}
	return nil, ErrContended
}

func (s *Store) ResetLoginAttempts(ctx context.Context, id string) error {
	return s.updateUser(ctx, id, map[string]any{
		"login_attempts": 0,
		"locked_until":   nil,
	})
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.updateUser(ctx, id, map[string]any{"password_hash": passwordHash})
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string) error {
	return s.updateUser(ctx, id, map[string]any{"email_verified": true})
}

func (s *Store) UpdateProfile(ctx context.Context, id string, up sessionauth.ProfileUpdate) error {
	fields := map[string]any{}
	if up.Name != nil {
		fields["name"] = *up.Name
	}
	if up.PictureURL != nil {
		fields["picture_url"] = *up.PictureURL
	}
	if up.GoogleID != nil {
		fields["google_id"] = *up.GoogleID
	}
	if up.EmailVerified != nil {
		fields["email_verified"] = *up.EmailVerified
	}
	if len(fields) == 0 {
		return nil
	}
	return s.updateUser(ctx, id, fields)
}

func (s *Store) updateUser(ctx context.Context, id string, fields map[string]any) error {
	fields["updated_at"] = s.stamp()
	res := s.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return sessionauth.ErrRecordNotFound
	}
	return nil
}

/*
====================================
REFRESH TOKENS
====================================
*/

func (s *Store) CreateRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) (*sessionauth.RefreshTokenRecord, error) {
	m := s.newRefresh(userID, token, expiresAt)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, translate(err)
	}
	return m.toRecord(token), nil
}

func (s *Store) FindRefreshToken(ctx context.Context, token string) (*sessionauth.RefreshTokenRecord, error) {
	var m refreshTokenModel
	err := s.db.WithContext(ctx).Where("token_hash = ?", internal.HashToken(token)).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m.toRecord(token), nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, token string) error {
	return revokeLive(s.db.WithContext(ctx), internal.HashToken(token), "")
}

func (s *Store) RevokeAllUserTokens(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).
		Model(&refreshTokenModel{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
}

// RotateRefreshToken revokes oldToken and inserts newToken in one
// transaction. The revoke only matches a live token owned by userID; when
// nothing matches, ErrRecordNotFound is returned and nothing is inserted.
func (s *Store) RotateRefreshToken(ctx context.Context, oldToken, userID, newToken string, expiresAt time.Time) (*sessionauth.RefreshTokenRecord, error) {
	m := s.newRefresh(userID, newToken, expiresAt)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := revokeLive(tx, internal.HashToken(oldToken), userID); err != nil {
			return err
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return m.toRecord(newToken), nil
}

func revokeLive(db *gorm.DB, tokenHash, userID string) error {
	q := db.Model(&refreshTokenModel{}).Where("token_hash = ? AND revoked = ?", tokenHash, false)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	res := q.Update("revoked", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return sessionauth.ErrRecordNotFound
	}
	return nil
}

func (s *Store) newRefresh(userID, token string, expiresAt time.Time) refreshTokenModel {
	return refreshTokenModel{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: internal.HashToken(token),
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: s.stamp(),
	}
}

/*
====================================
ONE-TIME TOKENS
====================================
*/

func (s *Store) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return s.createOneTime(ctx, tablePasswordResets, userID, token, expiresAt)
}

func (s *Store) FindPasswordReset(ctx context.Context, token string) (*sessionauth.PasswordResetRecord, error) {
	return s.findOneTime(ctx, tablePasswordResets, token)
}

func (s *Store) MarkPasswordResetUsed(ctx context.Context, token string) error {
	return s.markOneTimeUsed(ctx, tablePasswordResets, token)
}

func (s *Store) CreateEmailVerification(ctx context.Context, userID, token string, expiresAt time.Time) error {
	return s.createOneTime(ctx, tableEmailVerifications, userID, token, expiresAt)
}

func (s *Store) FindEmailVerification(ctx context.Context, token string) (*sessionauth.EmailVerificationRecord, error) {
	return s.findOneTime(ctx, tableEmailVerifications, token)
}

func (s *Store) MarkEmailVerificationUsed(ctx context.Context, token string) error {
	return s.markOneTimeUsed(ctx, tableEmailVerifications, token)
}

func (s *Store) createOneTime(ctx context.Context, table, userID, token string, expiresAt time.Time) error {
	m := oneTimeTokenModel{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: internal.HashToken(token),
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: s.stamp(),
	}
	return translate(s.db.WithContext(ctx).Table(table).Create(&m).Error)
}

func (s *Store) findOneTime(ctx context.Context, table, token string) (*sessionauth.OneTimeTokenRecord, error) {
	var m oneTimeTokenModel
	err := s.db.WithContext(ctx).Table(table).Where("token_hash = ?", internal.HashToken(token)).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sessionauth.OneTimeTokenRecord{
		ID:        m.ID,
		UserID:    m.UserID,
		Token:     token,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
		Used:      m.Used,
	}, nil
}

func (s *Store) markOneTimeUsed(ctx context.Context, table, token string) error {
	res := s.db.WithContext(ctx).
		Table(table).
		Where("token_hash = ? AND used = ?", internal.HashToken(token), false).
		Update("used", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return sessionauth.ErrRecordNotFound
	}
	return nil
}

/*
====================================
MAPPING
====================================
*/

func (m *userModel) toUser() *sessionauth.User {
	return &sessionauth.User{
		ID:            m.ID,
		Email:         m.Email,
		PasswordHash:  m.PasswordHash,
		EmailVerified: m.EmailVerified,
		LoginAttempts: m.LoginAttempts,
		LockedUntil:   m.LockedUntil,
		GoogleID:      m.GoogleID,
		Name:          m.Name,
		PictureURL:    m.PictureURL,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func (m *refreshTokenModel) toRecord(token string) *sessionauth.RefreshTokenRecord {
	return &sessionauth.RefreshTokenRecord{
		ID:        m.ID,
		UserID:    m.UserID,
		Token:     token,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
		Revoked:   m.Revoked,
	}
}

// translate maps unique violations onto ErrRecordExists. Drivers opened
// without TranslateError are matched on their message.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return sessionauth.ErrRecordExists
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key") {
		return sessionauth.ErrRecordExists
	}
	return err
}

var (
	_ sessionauth.AccountStore        = (*Store)(nil)
	_ sessionauth.RefreshTokenRotator = (*Store)(nil)
)
