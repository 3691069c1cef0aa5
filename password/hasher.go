package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	minMemoryKB    uint32 = 8 * 1024
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	absoluteMinLen        = 8
)

var (
	// ErrTooShort is returned when a password is shorter than Config.MinLength bytes.
	ErrTooShort = errors.New("password is too short")
	// ErrTooLong is returned when a password exceeds Config.MaxLength bytes.
	ErrTooLong = errors.New("password is too long")
	// ErrMalformedHash is returned when a stored hash is not a supported PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds Argon2id cost parameters and the password length policy.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinLength int
	MaxLength int
}

// DefaultConfig returns the production cost parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
		MaxLength:   256,
	}
}

// Hasher hashes and verifies passwords. It is safe for concurrent use.
type Hasher struct {
	config Config
	dummy  string
}

// NewHasher validates cfg and precomputes the dummy hash used by BurnTime.
func NewHasher(cfg Config) (*Hasher, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	h := &Hasher{config: cfg}
	dummy, err := h.encode(strings.Repeat("x", cfg.MinLength))
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

// CheckPolicy applies the length policy to a candidate password. Lengths are measured in
// bytes of the raw string; no Unicode normalization is applied.
func (h *Hasher) CheckPolicy(password string) error {
	if len(password) < h.config.MinLength {
		return ErrTooShort
	}
	if h.config.MaxLength > 0 && len(password) > h.config.MaxLength {
		return ErrTooLong
	}
	return nil
}

// Hash checks the policy and returns a PHC encoded Argon2id hash.
func (h *Hasher) Hash(password string) (string, error) {
	if err := h.CheckPolicy(password); err != nil {
		return "", err
	}
	return h.encode(password)
}

// Verify reports whether password matches encoded. A malformed hash is an error.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(computed, p.hash) == 1, nil
}

// Matches is Verify without the error: empty or malformed hashes never match, and the
// comparison still burns one Argon2 evaluation so callers cannot be timed.
func (h *Hasher) Matches(password, encoded string) bool {
	if encoded == "" {
		h.BurnTime(password)
		return false
	}
	ok, err := h.Verify(password, encoded)
	if err != nil {
		h.BurnTime(password)
		return false
	}
	return ok
}

// BurnTime performs one verification against a fixed dummy hash.
func (h *Hasher) BurnTime(password string) {
	_, _ = h.Verify(password, h.dummy)
}

// NeedsRehash reports whether encoded was produced with weaker parameters than the
// current configuration.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return p.memory < h.config.Memory ||
		p.time < h.config.Time ||
		p.parallelism < h.config.Parallelism ||
		uint32(len(p.hash)) != h.config.KeyLength, nil
}

func (h *Hasher) encode(password string) (string, error) {
	salt := make([]byte, h.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func decode(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}

	var p phc
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return nil, fmt.Errorf("%w: bad parameters", ErrMalformedHash)
	}
	if p.memory < minMemoryKB || p.time == 0 || p.parallelism == 0 {
		return nil, fmt.Errorf("%w: parameters below minimum", ErrMalformedHash)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.Strict().DecodeString(parts[4]); err != nil || uint32(len(p.salt)) < minSaltLength {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if p.hash, err = base64.RawStdEncoding.Strict().DecodeString(parts[5]); err != nil || len(p.hash) == 0 {
		return nil, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	return &p, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KB")
	case cfg.Time < 1:
		return errors.New("password time must be >= 1")
	case cfg.Parallelism < 1:
		return errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	case cfg.MinLength < absoluteMinLen:
		return errors.New("password minimum length must be >= 8")
	case cfg.MaxLength != 0 && cfg.MaxLength < cfg.MinLength:
		return errors.New("password maximum length must be >= minimum length")
	}
	return nil
}
