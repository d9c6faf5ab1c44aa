package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/docintel-api/internal/domain"
	"github.com/phrazzld/docintel-api/internal/platform/logger"
	"github.com/phrazzld/docintel-api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// APIKeyPrefix starts every API key. Keys look like dk_<prefix>_<secret>.
const APIKeyPrefix = "dk_"

// SecretVerifier compares a stored hash with a presented secret.
type SecretVerifier interface {
	// Compare returns nil when secret matches hash.
	Compare(hash, secret string) error
}

// BcryptVerifier implements SecretVerifier using bcrypt.
type BcryptVerifier struct{}

// Compare implements SecretVerifier.
func (BcryptVerifier) Compare(hash, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}

// GeneratedAPIKey is a freshly minted key. Raw is shown to the user once;
// only Prefix and Hash are stored.
type GeneratedAPIKey struct {
	Raw    string
	Prefix string
	Hash   string
}

// GenerateAPIKey mints a random key and its bcrypt hash.
func GenerateAPIKey() (*GeneratedAPIKey, error) {
	buf := make([]byte, 30)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	enc := base64.RawURLEncoding.EncodeToString(buf)
	prefix := strings.NewReplacer("-", "a", "_", "b").Replace(enc[:domain.APIKeyPrefixLength])
	secret := enc[domain.APIKeyPrefixLength:]

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash api key: %w", err)
	}
	return &GeneratedAPIKey{
		Raw:    APIKeyPrefix + prefix + "_" + secret,
		Prefix: prefix,
		Hash:   string(hash),
	}, nil
}

// ParseAPIKey splits a raw key into its lookup prefix and secret.
func ParseAPIKey(raw string) (prefix, secret string, err error) {
	rest, ok := strings.CutPrefix(raw, APIKeyPrefix)
	if !ok {
		return "", "", ErrInvalidAPIKey
	}
	prefix, secret, ok = strings.Cut(rest, "_")
	if !ok || len(prefix) != domain.APIKeyPrefixLength || secret == "" {
		return "", "", ErrInvalidAPIKey
	}
	return prefix, secret, nil
}

// APIKeyAuthenticator resolves raw API keys to principals.
type APIKeyAuthenticator struct {
	keys     store.APIKeyStore
	verifier SecretVerifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewAPIKeyAuthenticator creates an authenticator backed by keys. A nil
// verifier uses bcrypt.
func NewAPIKeyAuthenticator(keys store.APIKeyStore, verifier SecretVerifier, logger *slog.Logger) *APIKeyAuthenticator {
	if verifier == nil {
		verifier = BcryptVerifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyAuthenticator{
		keys:     keys,
		verifier: verifier,
		logger:   logger.With(slog.String("component", "api_key_auth")),
		now:      time.Now,
	}
}

// Authenticate returns the principal of raw, or ErrInvalidAPIKey. Store
// failures are returned wrapped so the caller can answer 500 instead of 401.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, raw string) (*domain.Principal, error) {
	log := logger.FromContextOrDefault(ctx, a.logger)

	prefix, secret, err := ParseAPIKey(raw)
	if err != nil {
		return nil, err
	}

	candidates, err := a.keys.FindByPrefix(ctx, prefix)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}

	now := a.now()
	for _, key := range candidates {
		if !key.IsUsable(now) {
			continue
		}
		if a.verifier.Compare(key.KeyHash, secret) != nil {
			continue
		}
		if err := a.keys.TouchLastUsed(ctx, key.ID); err != nil {
			log.Warn("failed to record api key use",
				slog.String("api_key_id", key.ID.String()),
				slog.String("error", err.Error()))
		}
		return key.Principal(), nil
	}

	log.Debug("api key rejected", slog.String("prefix", prefix))
	return nil, ErrInvalidAPIKey
}
