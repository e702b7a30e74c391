package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB   uint32 = 8 * 1024
	minSaltLength        = 16
	minKeyLength         = 16

	// DefaultMaxPasswordBytes bounds hashing cost for oversized input.
	DefaultMaxPasswordBytes = 1024
)

var (
	ErrEmptyPassword   = errors.New("password must not be empty")
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
	// ErrMalformedHash means a stored hash cannot be parsed or is outside
	// the accepted parameter range.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KiB", minMemoryKB)
	case c.Memory > maxStoredMemoryKB:
		return fmt.Errorf("password memory must be <= %d KiB", maxStoredMemoryKB)
	case c.Time < 1:
		return errors.New("password time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	case c.MaxPasswordBytes < 0:
		return errors.New("password max bytes must be >= 0")
	}
	return nil
}

// Hasher produces Argon2id hashes and verifies Argon2id and legacy bcrypt.
// It is safe for concurrent use.
type Hasher struct {
	cost     cost
	saltLen  uint32
	keyLen   uint32
	maxBytes int
}

func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Hasher{
		cost:     cost{memory: cfg.Memory, time: cfg.Time, threads: cfg.Parallelism},
		saltLen:  cfg.SaltLength,
		keyLen:   cfg.KeyLength,
		maxBytes: cfg.MaxPasswordBytes,
	}, nil
}

// Hash returns a PHC-encoded Argon2id hash. Input bytes are used as given,
// without Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > h.maxBytes {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, h.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password salt: %w", err)
	}
	return phc{
		cost: h.cost,
		salt: salt,
		key:  derive(password, salt, h.cost, h.keyLen),
	}.String(), nil
}

// Verify reports whether password matches encoded. A false result with a
// nil error is a mismatch; an error means the stored hash is unusable.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	if len(password) > h.maxBytes {
		return false, nil
	}
	if isBcryptHash(encoded) {
		return verifyBcrypt(password, encoded)
	}

	stored, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	got := derive(password, stored.salt, stored.cost, uint32(len(stored.key)))
	return subtle.ConstantTimeCompare(got, stored.key) == 1, nil
}

// NeedsRehash reports whether encoded is weaker than the current config or
// uses a different key length. Legacy bcrypt always needs it.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	if isBcryptHash(encoded) {
		return true, nil
	}
	stored, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	weaker := stored.memory < h.cost.memory ||
		stored.time < h.cost.time ||
		stored.threads < h.cost.threads
	return weaker || uint32(len(stored.key)) != h.keyLen, nil
}

func derive(password string, salt []byte, c cost, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), salt, c.time, c.memory, c.threads, keyLen)
}
