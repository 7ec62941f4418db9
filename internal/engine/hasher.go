package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"
)

// DefaultAlgorithm is the keyed digest used unless configured otherwise.
// It yields 64-byte digests.
const DefaultAlgorithm = "sha512"

var algorithms = map[string]func() hash.Hash{
	"sha256":     sha256.New,
	"sha384":     sha512.New384,
	"sha512":     sha512.New,
	"sha512/256": sha512.New512_256,
}

// Algorithms lists the accepted hash algorithm names.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Digest is the keyed hash of a seed triple.
type Digest []byte

// Hex returns the lowercase hex encoding of the digest.
func (d Digest) Hex() string {
	return hex.EncodeToString(d)
}

// Hasher computes HMAC digests over seed triples. It holds no mutable state
// and is safe for concurrent use.
type Hasher struct {
	algorithm string
	newHash   func() hash.Hash
}

// NewHasher returns a hasher for the named algorithm. An empty name selects
// DefaultAlgorithm.
func NewHasher(algorithm string) (*Hasher, error) {
	algorithm = strings.ToLower(strings.TrimSpace(algorithm))
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	newHash, ok := algorithms[algorithm]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedAlgorithm, algorithm, strings.Join(Algorithms(), ", "))
	}
	return &Hasher{algorithm: algorithm, newHash: newHash}, nil
}

// Algorithm returns the configured algorithm name.
func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// Size returns the digest length in bytes.
func (h *Hasher) Size() int {
	return h.newHash().Size()
}

// Hash returns HMAC(key=ServerSeedHash, msg=ClientSeed+":"+Nonce).
func (h *Hasher) Hash(seeds SeedTriple) (Digest, error) {
	if err := seeds.Validate(); err != nil {
		return nil, err
	}
	mac := hmac.New(h.newHash, []byte(seeds.ServerSeedHash))
	mac.Write([]byte(seeds.Message()))
	return Digest(mac.Sum(nil)), nil
}
