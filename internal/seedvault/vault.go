// Package seedvault stores named seed profiles in the OS keychain, with a
// JSON file fallback for hosts without one.
package seedvault

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/MJE43/stake-pf-predict-go/internal/engine"
)

const (
	defaultService = "stake-pf-predict"
	indexKey       = "profiles"
	profilePrefix  = "profile/"
)

// ErrProfileNotFound is returned when no profile has the requested name.
var ErrProfileNotFound = errors.New("seedvault: profile not found")

// Profile is a named seed pair with the next nonce to predict.
type Profile struct {
	Name           string    `json:"name"`
	ClientSeed     string    `json:"client_seed"`
	ServerSeedHash string    `json:"server_seed_hash"`
	NextNonce      uint64    `json:"next_nonce"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Seeds returns the triple for the profile's next nonce.
func (p Profile) Seeds() engine.SeedTriple {
	return engine.SeedTriple{ClientSeed: p.ClientSeed, ServerSeedHash: p.ServerSeedHash, Nonce: p.NextNonce}
}

// Vault wraps the OS keychain with an optional file fallback.
type Vault struct {
	service      string
	fallbackPath string
	now          func() time.Time
	mu           sync.Mutex
}

// New creates a vault. fallbackPath may be empty to require a keychain.
func New(serviceName, fallbackPath string) *Vault {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = defaultService
	}
	return &Vault{
		service:      serviceName,
		fallbackPath: fallbackPath,
		now:          time.Now,
	}
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &engine.InputError{Field: "profile", Reason: "is required"}
	}
	if strings.ContainsAny(name, "/\\") {
		return "", &engine.InputError{Field: "profile", Reason: "must not contain path separators"}
	}
	return name, nil
}

// Save creates or replaces a profile.
func (v *Vault) Save(p Profile) error {
	name, err := normalizeName(p.Name)
	if err != nil {
		return err
	}
	p.Name = name
	if _, err := engine.NewSeedTriple(p.ClientSeed, p.ServerSeedHash, p.NextNonce); err != nil {
		return err
	}
	p.UpdatedAt = v.now().UTC()

	v.mu.Lock()
	defer v.mu.Unlock()
	return v.saveUnlocked(p)
}

// Load returns a profile by name.
func (v *Vault) Load(name string) (Profile, error) {
	name, err := normalizeName(name)
	if err != nil {
		return Profile{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadUnlocked(name)
}

// Delete removes a profile. Deleting a missing profile returns
// ErrProfileNotFound.
func (v *Vault) Delete(name string) error {
	name, err := normalizeName(name)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.loadUnlocked(name); err != nil {
		return err
	}

	kerr := keyring.Delete(v.service, profilePrefix+name)
	switch {
	case kerr == nil, errors.Is(kerr, keyring.ErrNotFound):
		names, err := v.keyringIndex()
		if err != nil {
			return err
		}
		if err := v.setKeyringIndex(remove(names, name)); err != nil {
			return err
		}
	case !isKeyringUnavailable(kerr):
		return fmt.Errorf("seedvault: keyring delete: %w", kerr)
	}
	return v.deleteFallback(name)
}

// Advance returns the profile's current seeds and persists NextNonce+1.
func (v *Vault) Advance(name string) (engine.SeedTriple, error) {
	name, err := normalizeName(name)
	if err != nil {
		return engine.SeedTriple{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	p, err := v.loadUnlocked(name)
	if err != nil {
		return engine.SeedTriple{}, err
	}
	seeds := p.Seeds()
	if seeds.Nonce == math.MaxUint64 {
		return engine.SeedTriple{}, &engine.InputError{Field: "nonce", Reason: fmt.Sprintf("profile %q has no nonce after %d", name, seeds.Nonce)}
	}
	p.NextNonce = seeds.Next().Nonce
	p.UpdatedAt = v.now().UTC()
	if err := v.saveUnlocked(p); err != nil {
		return engine.SeedTriple{}, err
	}
	return seeds, nil
}

// List returns profile names in sorted order from both backends.
func (v *Vault) List() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	seen := map[string]bool{}
	names, err := v.keyringIndex()
	if err != nil && !isKeyringUnavailable(err) {
		return nil, err
	}
	for _, n := range names {
		seen[n] = true
	}
	if v.fallbackPath != "" {
		data, err := v.readFallbackUnlocked()
		if err != nil {
			return nil, err
		}
		for n := range data {
			seen[n] = true
		}
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (v *Vault) saveUnlocked(p Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("seedvault: encode profile: %w", err)
	}

	err = keyring.Set(v.service, profilePrefix+p.Name, string(raw))
	if err == nil {
		names, ierr := v.keyringIndex()
		if ierr != nil {
			return ierr
		}
		return v.setKeyringIndex(insert(names, p.Name))
	}
	if !isKeyringUnavailable(err) {
		return fmt.Errorf("seedvault: keyring set: %w", err)
	}
	return v.setFallback(p)
}

func (v *Vault) loadUnlocked(name string) (Profile, error) {
	val, err := keyring.Get(v.service, profilePrefix+name)
	if err == nil {
		var p Profile
		if err := json.Unmarshal([]byte(val), &p); err != nil {
			return Profile{}, fmt.Errorf("seedvault: decode profile %q: %w", name, err)
		}
		return p, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return Profile{}, fmt.Errorf("seedvault: keyring get: %w", err)
	}
	if v.fallbackPath == "" {
		if errors.Is(err, keyring.ErrNotFound) {
			return Profile{}, ErrProfileNotFound
		}
		return Profile{}, fmt.Errorf("seedvault: keyring unavailable and no fallback path configured")
	}
	return v.getFallback(name)
}

func (v *Vault) keyringIndex() ([]string, error) {
	val, err := keyring.Get(v.service, indexKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal([]byte(val), &names); err != nil {
		return nil, fmt.Errorf("seedvault: decode profile index: %w", err)
	}
	return names, nil
}

func (v *Vault) setKeyringIndex(names []string) error {
	raw, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("seedvault: encode profile index: %w", err)
	}
	if err := keyring.Set(v.service, indexKey, string(raw)); err != nil {
		return fmt.Errorf("seedvault: keyring set index: %w", err)
	}
	return nil
}

func insert(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	names = append(names, name)
	sort.Strings(names)
	return names
}

func remove(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "the specified item could not be found in the keychain") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

type fallbackProfiles map[string]Profile

func (v *Vault) setFallback(p Profile) error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return fmt.Errorf("seedvault: keyring unavailable and no fallback path configured")
	}
	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	data[p.Name] = p
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) getFallback(name string) (Profile, error) {
	data, err := v.readFallbackUnlocked()
	if err != nil {
		return Profile{}, err
	}
	p, ok := data[name]
	if !ok {
		return Profile{}, ErrProfileNotFound
	}
	return p, nil
}

func (v *Vault) deleteFallback(name string) error {
	if strings.TrimSpace(v.fallbackPath) == "" {
		return nil
	}
	data, err := v.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[name]; !ok {
		return nil
	}
	delete(data, name)
	return v.writeFallbackUnlocked(data)
}

func (v *Vault) readFallbackUnlocked() (fallbackProfiles, error) {
	out := fallbackProfiles{}
	raw, err := os.ReadFile(v.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("seedvault: read fallback profiles: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("seedvault: decode fallback profiles: %w", err)
	}
	return out, nil
}

func (v *Vault) writeFallbackUnlocked(data fallbackProfiles) error {
	dir := filepath.Dir(v.fallbackPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("seedvault: mkdir fallback dir: %w", err)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("seedvault: encode fallback profiles: %w", err)
	}
	if err := os.WriteFile(v.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("seedvault: write fallback profiles: %w", err)
	}
	return nil
}
