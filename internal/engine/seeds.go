package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SeedTriple is the provably-fair game state a prediction is derived from.
// ServerSeedHash is used as-is (ASCII); it is never hex-decoded.
type SeedTriple struct {
	ClientSeed     string `json:"client_seed"`
	ServerSeedHash string `json:"server_seed_hash"`
	Nonce          uint64 `json:"nonce"`
}

// NewSeedTriple validates and returns a seed triple.
func NewSeedTriple(clientSeed, serverSeedHash string, nonce uint64) (SeedTriple, error) {
	s := SeedTriple{
		ClientSeed:     clientSeed,
		ServerSeedHash: serverSeedHash,
		Nonce:          nonce,
	}
	if err := s.Validate(); err != nil {
		return SeedTriple{}, err
	}
	return s, nil
}

// ParseSeedTriple converts raw operator text into a seed triple. Surrounding
// whitespace is trimmed from every field.
func ParseSeedTriple(clientSeed, serverSeedHash, nonceText string) (SeedTriple, error) {
	nonce, err := ParseNonce(nonceText)
	if err != nil {
		return SeedTriple{}, err
	}
	return NewSeedTriple(strings.TrimSpace(clientSeed), strings.TrimSpace(serverSeedHash), nonce)
}

// ParseNonce parses a base-10 non-negative nonce.
func ParseNonce(text string) (uint64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, invalidInput("nonce", "is required")
	}
	nonce, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, invalidInput("nonce", "must be a non-negative integer, got %q", text)
	}
	return nonce, nil
}

// Validate checks that both seeds are present and representable as text.
func (s SeedTriple) Validate() error {
	if s.ClientSeed == "" {
		return invalidInput("client_seed", "is required")
	}
	if !utf8.ValidString(s.ClientSeed) {
		return invalidInput("client_seed", "is not valid UTF-8")
	}
	if s.ServerSeedHash == "" {
		return invalidInput("server_seed_hash", "is required")
	}
	if !utf8.ValidString(s.ServerSeedHash) {
		return invalidInput("server_seed_hash", "is not valid UTF-8")
	}
	return nil
}

// Message is the HMAC message: "<clientSeed>:<nonce>".
func (s SeedTriple) Message() string {
	return s.ClientSeed + ":" + strconv.FormatUint(s.Nonce, 10)
}

// Next returns the same seeds at nonce+1.
func (s SeedTriple) Next() SeedTriple {
	s.Nonce++
	return s
}

// Fingerprint returns a short SHA-256 prefix of a seed for logs. Raw seeds
// are never logged.
func Fingerprint(seed string) string {
	if seed == "" {
		return "empty"
	}
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:16]
}
