// Package password implements the credential engine: argon2id hashing with
// tunable security levels, transparent rehash-on-verify parameter migration,
// and password strength validation.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

var (
	// ErrEmptyPassword is returned by Hash for an empty input.
	ErrEmptyPassword = errors.New("password must not be empty")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	// Verification treats such hashes as a mismatch, never a panic.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Hasher hashes and verifies passwords under a fixed [SecurityLevel].
// A Hasher is immutable and safe for concurrent use.
type Hasher struct {
	level  SecurityLevel
	params Params
}

// NewHasher creates a Hasher for the given security level.
func NewHasher(level SecurityLevel) *Hasher {
	return &Hasher{level: level, params: ParamsFor(level)}
}

// Level returns the configured security level.
func (h *Hasher) Level() SecurityLevel {
	return h.level
}

// Hash derives an argon2id hash of password with a fresh random salt and
// returns it in PHC string format:
//
//	$argon2id$v=19$m=65536,t=2,p=2$<salt>$<hash>
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Time,
		h.params.MemoryKB,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.MemoryKB,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encodedHash. The comparison is
// constant-time in the derived keys. Unparseable hashes report false with
// [ErrMalformedHash].
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.hash)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// VerifyAndUpdate verifies password against encodedHash and, when the match
// succeeds but the stored hash was produced under different cost parameters
// than the hasher's current preset, returns a replacement hash computed under
// the current parameters. Persisting that replacement is how an entire user
// base migrates to stronger parameters over time without a forced reset.
//
// The returned newHash is empty when no migration is needed.
func (h *Hasher) VerifyAndUpdate(password, encodedHash string) (ok bool, newHash string, err error) {
	ok, err = h.Verify(password, encodedHash)
	if err != nil || !ok {
		return false, "", err
	}

	stale, err := h.NeedsRehash(encodedHash)
	if err != nil || !stale {
		return true, "", nil
	}

	newHash, err = h.Hash(password)
	if err != nil {
		// Migration is opportunistic; the successful verification stands.
		return true, "", nil
	}
	return true, newHash, nil
}

// NeedsRehash reports whether encodedHash embeds cost parameters that differ
// from the hasher's current preset.
func (h *Hasher) NeedsRehash(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	if parsed.memory != h.params.MemoryKB {
		return true, nil
	}
	if parsed.time != h.params.Time {
		return true, nil
	}
	if parsed.parallelism != h.params.Parallelism {
		return true, nil
	}
	if uint32(len(parsed.hash)) != h.params.KeyLength {
		return true, nil
	}

	return false, nil
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encodedHash string) (*parsedPHC, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrMalformedHash
	}
	if parts[1] != algorithmID {
		return nil, ErrMalformedHash
	}

	if !strings.HasPrefix(parts[2], "v=") {
		return nil, ErrMalformedHash
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, ErrMalformedHash
	}

	out := &parsedPHC{}
	pairs := strings.Split(parts[3], ",")
	if len(pairs) != 3 {
		return nil, ErrMalformedHash
	}
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, ErrMalformedHash
		}
		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v == 0 {
				return nil, ErrMalformedHash
			}
			out.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v == 0 {
				return nil, ErrMalformedHash
			}
			out.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v == 0 {
				return nil, ErrMalformedHash
			}
			out.parallelism = uint8(v)
		default:
			return nil, ErrMalformedHash
		}
	}
	if out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return nil, ErrMalformedHash
	}

	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(out.salt) == 0 {
		return nil, ErrMalformedHash
	}
	if out.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(out.hash) == 0 {
		return nil, ErrMalformedHash
	}

	return out, nil
}
