// Package secret hashes and verifies PINs with Argon2id.
//
// A process-wide pepper is mixed into every attempt before hashing, so a
// leaked hash table alone is not enough to test candidate PINs offline.
package secret

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params holds Argon2id cost parameters.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultParams returns the cost parameters used in production.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLen:     16,
		KeyLen:      32,
	}
}

// Verifier checks PIN attempts against stored hashes.
type Verifier struct {
	pepper string
	params Params
}

// NewVerifier creates a Verifier bound to a pepper and cost parameters.
func NewVerifier(pepper string, p Params) *Verifier {
	return &Verifier{pepper: pepper, params: p}
}

// Hash returns a PHC-style Argon2id string for the peppered PIN.
// Format: argon2id$v=19$m=65536,t=3,p=4$<salt_b64>$<hash_b64>
func (v *Verifier) Hash(pin string) (string, error) {
	if pin == "" {
		return "", errors.New("pin is required")
	}
	salt := make([]byte, v.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	h := argon2.IDKey([]byte(pin+v.pepper), salt, v.params.Iterations, v.params.Memory, v.params.Parallelism, v.params.KeyLen)
	enc := base64.RawStdEncoding
	return fmt.Sprintf(
		"argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		v.params.Memory,
		v.params.Iterations,
		v.params.Parallelism,
		enc.EncodeToString(salt),
		enc.EncodeToString(h),
	), nil
}

// Verify reports whether attempt matches the stored hash. A wrong PIN
// returns (false, nil); only a malformed stored encoding returns an error.
func (v *Verifier) Verify(stored, attempt string) (bool, error) {
	if stored == "" {
		return false, errors.New("stored hash is empty")
	}
	if attempt == "" {
		return false, nil
	}
	p, salt, want, err := parsePHC(stored)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(attempt+v.pepper), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// parsePHC decodes argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>.
func parsePHC(s string) (Params, []byte, []byte, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 5 {
		return Params{}, nil, nil, errors.New("invalid pin hash format")
	}
	if parts[0] != "argon2id" {
		return Params{}, nil, nil, errors.New("unsupported pin hash algorithm")
	}
	ver, err := strconv.Atoi(strings.TrimPrefix(parts[1], "v="))
	if !strings.HasPrefix(parts[1], "v=") || err != nil || ver != argon2.Version {
		return Params{}, nil, nil, errors.New("unsupported argon2 version")
	}

	var p Params
	for _, kv := range strings.Split(parts[2], ",") {
		pair := strings.SplitN(kv, "=", 2)
		if len(pair) != 2 {
			return Params{}, nil, nil, errors.New("invalid argon2 parameters")
		}
		switch pair[0] {
		case "m":
			n, err := strconv.ParseUint(pair[1], 10, 32)
			if err != nil {
				return Params{}, nil, nil, errors.New("invalid argon2 memory")
			}
			p.Memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(pair[1], 10, 32)
			if err != nil {
				return Params{}, nil, nil, errors.New("invalid argon2 iterations")
			}
			p.Iterations = uint32(n)
		case "p":
			n, err := strconv.ParseUint(pair[1], 10, 8)
			if err != nil {
				return Params{}, nil, nil, errors.New("invalid argon2 parallelism")
			}
			p.Parallelism = uint8(n)
		default:
			return Params{}, nil, nil, errors.New("unknown argon2 parameter")
		}
	}

	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(parts[3])
	if err != nil {
		return Params{}, nil, nil, errors.New("invalid argon2 salt")
	}
	hash, err := enc.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, errors.New("invalid argon2 hash")
	}
	if len(hash) < 16 {
		return Params{}, nil, nil, errors.New("invalid argon2 hash length")
	}
	return p, salt, hash, nil
}
