package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"event-dispatcher/internal/core/domain"
	"event-dispatcher/internal/core/ports"
	"event-dispatcher/pkg/apperror"

	"github.com/rs/zerolog"
)

const secretBytes = 32

// HMACSigner implements ports.Signer with HMAC-SHA256. Secrets live in memory
// and, when a repository is configured, are persisted sealed with AES-GCM.
type HMACSigner struct {
	mu      sync.RWMutex
	secrets map[string]string

	repo ports.SecretRepository // optional
	enc  ports.EncryptionService
	log  zerolog.Logger
	now  func() time.Time
}

// NewHMACSigner creates a signer. repo and enc may both be nil for an
// in-memory signer; repo requires enc.
func NewHMACSigner(repo ports.SecretRepository, enc ports.EncryptionService, log zerolog.Logger) *HMACSigner {
	return &HMACSigner{
		secrets: make(map[string]string),
		repo:    repo,
		enc:     enc,
		log:     log,
		now:     time.Now,
	}
}

// Provision generates a fresh secret for targetID, replacing any previous one.
func (s *HMACSigner) Provision(ctx context.Context, targetID string) (string, error) {
	secret, err := generateRandomHex(secretBytes)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("generate secret: %w", err))
	}

	if s.repo != nil {
		sealed, err := s.enc.Encrypt(secret)
		if err != nil {
			return "", apperror.ErrEncryptionFailure(err)
		}
		if err := s.repo.Save(ctx, targetID, sealed); err != nil {
			return "", apperror.ErrDatabaseError(fmt.Errorf("save secret: %w", err))
		}
	}

	s.mu.Lock()
	s.secrets[targetID] = secret
	s.mu.Unlock()

	s.log.Debug().Str("target_id", targetID).Msg("signing secret provisioned")
	return secret, nil
}

// Discard drops the secret. Later Sign calls for targetID fail.
func (s *HMACSigner) Discard(ctx context.Context, targetID string) error {
	s.mu.Lock()
	delete(s.secrets, targetID)
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Delete(ctx, targetID); err != nil {
			return apperror.ErrDatabaseError(fmt.Errorf("delete secret: %w", err))
		}
	}
	return nil
}

// Restore loads a persisted secret back into memory.
func (s *HMACSigner) Restore(ctx context.Context, targetID string) error {
	if s.repo == nil {
		return apperror.ErrNotFound("Signing secret")
	}

	sealed, err := s.repo.Get(ctx, targetID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("get secret: %w", err))
	}
	if sealed == "" {
		return apperror.ErrNotFound("Signing secret")
	}

	secret, err := s.enc.Decrypt(sealed)
	if err != nil {
		return apperror.ErrEncryptionFailure(err)
	}

	s.mu.Lock()
	s.secrets[targetID] = secret
	s.mu.Unlock()
	return nil
}

// Sign signs "{unix}.{payload}" and returns "{version}={hex}, t={unix}".
func (s *HMACSigner) Sign(targetID string, payload []byte, version string) (string, error) {
	s.mu.RLock()
	secret, ok := s.secrets[targetID]
	s.mu.RUnlock()
	if !ok {
		return "", apperror.ErrNotFound("Signing secret")
	}

	if version == "" {
		version = domain.DefaultSigningVersion
	}
	ts := s.now().Unix()
	return fmt.Sprintf("%s=%s, t=%d", version, computeSignature(secret, ts, payload), ts), nil
}

func computeSignature(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature header produced by Sign. A positive
// tolerance also rejects timestamps further than tolerance from now.
func VerifySignature(secret, header string, payload []byte, tolerance time.Duration, now time.Time) error {
	var (
		sig   string
		ts    int64
		hasTS bool
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return apperror.ErrInvalidSignature()
		}
		if k == "t" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return apperror.ErrInvalidSignature()
			}
			ts, hasTS = parsed, true
			continue
		}
		sig = v
	}
	if sig == "" || !hasTS {
		return apperror.ErrInvalidSignature()
	}

	if tolerance > 0 {
		skew := now.Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > tolerance {
			return apperror.ErrSignatureExpired()
		}
	}

	expected := computeSignature(secret, ts, payload)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return apperror.ErrInvalidSignature()
	}
	return nil
}

// generateRandomHex generates a random hex string of n bytes.
func generateRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
