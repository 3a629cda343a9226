package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// TokenKind selects one of the two persisted token files.
type TokenKind string

const (
	TokenAccess  TokenKind = "access_token"
	TokenRefresh TokenKind = "refresh_token"
)

// legacyTokenDir is the fixed path older releases wrote to. It is
// probed on load only; writes always target the configured directory.
const legacyTokenDir = "/config"

// Credentials is the vendor access/refresh token pair. A refresh
// supersedes both fields; a stale access token may coexist with a
// valid refresh token.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Store persists the token pair as two independent JSON documents on
// disk, one per token kind. Writes are atomic (write-to-temp, rename)
// so a concurrent reader never observes a partial file. Multiple
// pollers share the store with no lock beyond last-writer-wins.
type Store struct {
	dir       string
	legacyDir string
	log       *slog.Logger
}

// NewStore creates a token store rooted at dir.
func NewStore(dir string, log *slog.Logger) *Store {
	return &Store{dir: dir, legacyDir: legacyTokenDir, log: log}
}

func tokenFileName(kind TokenKind) string {
	return fmt.Sprintf("cuboai_%s.json", kind)
}

// Save atomically writes one token value to the configured directory.
func (s *Store) Save(kind TokenKind, value string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("tokenstore: create %s: %w", s.dir, err)
	}

	data, err := json.Marshal(map[string]string{string(kind): value})
	if err != nil {
		return fmt.Errorf("tokenstore: marshal %s: %w", kind, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+tokenFileName(kind)+".tmp")
	if err != nil {
		return fmt.Errorf("tokenstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("tokenstore: write %s: %w", kind, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("tokenstore: close %s: %w", kind, err)
	}

	final := filepath.Join(s.dir, tokenFileName(kind))
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("tokenstore: rename %s: %w", kind, err)
	}
	return nil
}

// Load returns the stored token value, or "" when the file is missing
// or malformed. The configured directory is preferred; the legacy
// fixed path is probed as a fallback for migration. Load never fails:
// callers must treat tokens as possibly absent.
func (s *Store) Load(kind TokenKind) string {
	if v := readTokenFile(filepath.Join(s.dir, tokenFileName(kind)), kind); v != "" {
		return v
	}
	if s.legacyDir != "" && s.legacyDir != s.dir {
		if v := readTokenFile(filepath.Join(s.legacyDir, tokenFileName(kind)), kind); v != "" {
			s.log.Debug("token loaded from legacy path", "kind", string(kind))
			return v
		}
	}
	return ""
}

// LoadPair loads both tokens in one call.
func (s *Store) LoadPair() Credentials {
	return Credentials{
		AccessToken:  s.Load(TokenAccess),
		RefreshToken: s.Load(TokenRefresh),
	}
}

// SavePair persists both tokens. The access token is written first so
// that a crash between the two writes leaves the previous refresh
// token intact for recovery.
func (s *Store) SavePair(c Credentials) error {
	if err := s.Save(TokenAccess, c.AccessToken); err != nil {
		return err
	}
	return s.Save(TokenRefresh, c.RefreshToken)
}

func readTokenFile(path string, kind TokenKind) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}
	return doc[string(kind)]
}
