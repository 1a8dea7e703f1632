package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patientcheck/patientcheck/internal/model"
)

var (
	// ErrMissingCredential indicates no credential was presented.
	ErrMissingCredential = errors.New("credential missing")
	// ErrInvalidCredential indicates the presented credential is not recognized.
	ErrInvalidCredential = errors.New("credential not recognized")
	// ErrNoCredentials indicates a validator was built with an empty key list.
	ErrNoCredentials = errors.New("no credentials configured")
)

// Validator decides whether a presented bearer token is accepted.
// Implementations must be safe for concurrent use.
type Validator interface {
	Validate(ctx context.Context, token string, caller model.Caller) (*model.Credential, error)
}

// credentialID derives a stable, non-secret identifier for a token.
func credentialID(prefix, material string) string {
	return prefix + QuickHash(material)[:12]
}

// HashedCredentialID returns the ID logged for requests authenticated by an argon2id hash.
func HashedCredentialID(encodedHash string) string {
	return credentialID("hkey_", strings.TrimSpace(encodedHash))
}

// TokenSet accepts any token from a flat list.
// Tokens are held as SHA-256 digests and compared in constant time.
type TokenSet struct {
	digests [][sha256.Size]byte
	ids     []string
}

// NewTokenSet builds a TokenSet. Blank entries are ignored.
func NewTokenSet(tokens []string) (*TokenSet, error) {
	s := &TokenSet{}
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		s.digests = append(s.digests, sha256.Sum256([]byte(token)))
		s.ids = append(s.ids, credentialID("key_", token))
	}
	if len(s.digests) == 0 {
		return nil, ErrNoCredentials
	}
	return s, nil
}

// Len returns the number of accepted tokens.
func (s *TokenSet) Len() int {
	return len(s.digests)
}

// Validate checks every entry so the comparison cost does not depend on the match position.
func (s *TokenSet) Validate(_ context.Context, token string, _ model.Caller) (*model.Credential, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}

	presented := sha256.Sum256([]byte(token))
	match := -1
	for i := range s.digests {
		if subtle.ConstantTimeCompare(presented[:], s.digests[i][:]) == 1 {
			match = i
		}
	}

	if match < 0 {
		return nil, ErrInvalidCredential
	}
	return &model.Credential{ID: s.ids[match], Kind: model.CredentialStatic}, nil
}

// VerificationCache remembers which hashed credential a token verified against.
type VerificationCache interface {
	GetCredentialID(ctx context.Context, tokenHash string) (string, error)
	SetCredentialID(ctx context.Context, tokenHash, credentialID string, ttl time.Duration) error
}

// DefaultVerificationTTL bounds how long a verified token skips argon2.
const DefaultVerificationTTL = 5 * time.Minute

type hashedEntry struct {
	id   string
	hash *phcHash
}

// HashedTokenSet accepts tokens matching one of a list of argon2id hashes.
type HashedTokenSet struct {
	entries []hashedEntry
	cache   VerificationCache
	ttl     time.Duration
}

// HashedOption configures a HashedTokenSet.
type HashedOption func(*HashedTokenSet)

// WithVerificationCache caches successful verifications.
func WithVerificationCache(cache VerificationCache, ttl time.Duration) HashedOption {
	return func(s *HashedTokenSet) {
		s.cache = cache
		s.ttl = ttl
	}
}

// NewHashedTokenSet parses argon2id PHC strings. Blank entries are ignored.
func NewHashedTokenSet(hashes []string, opts ...HashedOption) (*HashedTokenSet, error) {
	s := &HashedTokenSet{ttl: DefaultVerificationTTL}
	for i, encoded := range hashes {
		encoded = strings.TrimSpace(encoded)
		if encoded == "" {
			continue
		}
		h, err := parsePHC(encoded)
		if err != nil {
			return nil, fmt.Errorf("api key hash %d: %w", i+1, err)
		}
		s.entries = append(s.entries, hashedEntry{id: HashedCredentialID(encoded), hash: h})
	}
	if len(s.entries) == 0 {
		return nil, ErrNoCredentials
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Len returns the number of accepted hashes.
func (s *HashedTokenSet) Len() int {
	return len(s.entries)
}

// Validate verifies the token against each hash, consulting the cache first.
func (s *HashedTokenSet) Validate(ctx context.Context, token string, _ model.Caller) (*model.Credential, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}

	cacheKey := QuickHash(token)
	if s.cache != nil {
		// Cache errors fall through to full verification.
		if id, err := s.cache.GetCredentialID(ctx, cacheKey); err == nil && id != "" {
			if s.known(id) {
				return &model.Credential{ID: id, Kind: model.CredentialHashed}, nil
			}
		}
	}

	for _, e := range s.entries {
		if !e.hash.matches(token) {
			continue
		}
		if s.cache != nil {
			_ = s.cache.SetCredentialID(ctx, cacheKey, e.id, s.ttl)
		}
		return &model.Credential{ID: e.id, Kind: model.CredentialHashed}, nil
	}

	return nil, ErrInvalidCredential
}

// known guards against cache entries written for a hash that is no longer configured.
func (s *HashedTokenSet) known(id string) bool {
	for _, e := range s.entries {
		if e.id == id {
			return true
		}
	}
	return false
}

// Chain accepts a token if any of its validators does.
type Chain []Validator

// Validate tries each validator in order.
func (c Chain) Validate(ctx context.Context, token string, caller model.Caller) (*model.Credential, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}
	for _, v := range c {
		cred, err := v.Validate(ctx, token, caller)
		if err == nil {
			return cred, nil
		}
	}
	return nil, ErrInvalidCredential
}
