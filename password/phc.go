package password

import (
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const phcAlgorithm = "argon2id"

// maxStoredMemoryKB caps the cost a stored hash may ask Verify to pay.
const maxStoredMemoryKB uint32 = 1 << 20

var b64 = base64.RawStdEncoding

// cost is the tunable part of an Argon2id hash.
type cost struct {
	memory  uint32
	time    uint32
	threads uint8
}

func (c cost) String() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", c.memory, c.time, c.threads)
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	cost
	salt []byte
	key  []byte
}

func (h phc) String() string {
	return "$" + phcAlgorithm +
		fmt.Sprintf("$v=%d$", argon2.Version) +
		h.cost.String() + "$" +
		b64.EncodeToString(h.salt) + "$" +
		b64.EncodeToString(h.key)
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, reason)
}

// decodePHC accepts only the canonical parameter order produced by
// String, and both padded and unpadded base64.
func decodePHC(s string) (phc, error) {
	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return phc{}, malformed("expected 5 fields")
	}
	algo, version, params, salt, key := fields[1], fields[2], fields[3], fields[4], fields[5]

	if algo != phcAlgorithm {
		return phc{}, malformed("unsupported algorithm " + algo)
	}
	if version != fmt.Sprintf("v=%d", argon2.Version) {
		return phc{}, malformed("unsupported version " + version)
	}

	var c cost
	if _, err := fmt.Sscanf(params, "m=%d,t=%d,p=%d", &c.memory, &c.time, &c.threads); err != nil || c.String() != params {
		return phc{}, malformed("bad parameters " + params)
	}
	if c.memory < minMemoryKB || c.memory > maxStoredMemoryKB || c.time < 1 || c.threads < 1 {
		return phc{}, malformed("parameters out of range")
	}

	h := phc{cost: c}
	var err error
	if h.salt, err = decodeB64(salt); err != nil || len(h.salt) < minSaltLength {
		return phc{}, malformed("bad salt")
	}
	if h.key, err = decodeB64(key); err != nil || len(h.key) < minKeyLength {
		return phc{}, malformed("bad key")
	}
	return h, nil
}

func decodeB64(s string) ([]byte, error) {
	return b64.DecodeString(strings.TrimRight(s, "="))
}
