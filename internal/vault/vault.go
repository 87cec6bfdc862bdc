// Package vault encrypts classified content at rest. Each classification
// level has its own 256-bit key so a leaked key never exposes higher-level
// material.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/memshield/memshield/internal/access"
	"github.com/memshield/memshield/internal/models"
)

var (
	ErrAccessDenied    = errors.New("vault: access denied")
	ErrUnknownLevel    = errors.New("vault: no key for classification")
	ErrInvalidEnvelope = errors.New("vault: invalid envelope")
)

// Envelope is the stored form of an encrypted payload. Data holds
// base64(nonce || ciphertext); the nonce is random per call and travels with
// the ciphertext, never reused and never derived from the key.
type Envelope struct {
	ID             uuid.UUID             `json:"id"`
	Classification models.Classification `json:"classification"`
	Algorithm      string                `json:"algorithm"`
	Data           string                `json:"data"`
	Checksum       string                `json:"checksum"`
	EncryptedAt    time.Time             `json:"encrypted_at"`
}

const algorithm = "aes-256-gcm"

// Vault holds the per-classification AEADs and the access controller that
// gates every operation.
type Vault struct {
	aeads  map[models.Classification]cipher.AEAD
	access *access.Controller
	audit  access.Sink
	logger *slog.Logger
}

// New derives one AEAD per classification from the supplied key material.
// Keys must be exactly 32 bytes; missing levels are an error so a
// misconfigured vault fails at startup, not on first use.
func New(keys map[models.Classification][]byte, ctrl *access.Controller, audit access.Sink, logger *slog.Logger) (*Vault, error) {
	if logger == nil {
		logger = slog.Default()
	}
	levels := []models.Classification{
		models.ClassificationOpen,
		models.ClassificationConfidential,
		models.ClassificationSecret,
		models.ClassificationTopSecret,
	}
	aeads := make(map[models.Classification]cipher.AEAD, len(levels))
	for _, level := range levels {
		key, ok := keys[level]
		if !ok {
			return nil, fmt.Errorf("vault: missing key for %s", level)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("vault: key for %s must be 32 bytes, got %d", level, len(key))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("vault: cipher for %s: %w", level, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("vault: gcm for %s: %w", level, err)
		}
		aeads[level] = aead
	}
	return &Vault{aeads: aeads, access: ctrl, audit: audit, logger: logger}, nil
}

// GenerateKeys produces a fresh random key set, one per classification.
func GenerateKeys() (map[models.Classification][]byte, error) {
	keys := make(map[models.Classification][]byte, 4)
	for _, level := range []models.Classification{
		models.ClassificationOpen,
		models.ClassificationConfidential,
		models.ClassificationSecret,
		models.ClassificationTopSecret,
	} {
		key := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("vault: generate key: %w", err)
		}
		keys[level] = key
	}
	return keys, nil
}

// Encrypt seals plaintext under the key for its classification. The caller's
// role must both clear the classification and hold the encrypt permission.
// The classification is bound as additional data, so an envelope relabeled
// to a different level fails to decrypt.
func (v *Vault) Encrypt(actor string, role models.Role, classification models.Classification, plaintext []byte) (*Envelope, error) {
	if d := v.access.Check(actor, role, classification, "vault", access.PermEncrypt); !d.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrAccessDenied, d.Reason)
	}

	aead, ok := v.aeads[classification]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLevel, classification)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vault: nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, []byte(classification))
	sum := sha256.Sum256(plaintext)

	env := &Envelope{
		ID:             uuid.New(),
		Classification: classification,
		Algorithm:      algorithm,
		Data:           base64.StdEncoding.EncodeToString(sealed),
		Checksum:       hex.EncodeToString(sum[:]),
		EncryptedAt:    time.Now().UTC(),
	}

	v.record(models.EventEncryption, actor, role, classification, models.ResultSuccess,
		fmt.Sprintf("encrypted %d bytes", len(plaintext)), env.ID.String())
	return env, nil
}

// Decrypt opens an envelope, verifying both the AEAD tag and the plaintext
// checksum. Tampering with data, classification or checksum fails the call.
func (v *Vault) Decrypt(actor string, role models.Role, env *Envelope) ([]byte, error) {
	if d := v.access.Check(actor, role, env.Classification, "vault", access.PermDecrypt); !d.Allowed {
		v.record(models.EventDecryption, actor, role, env.Classification, models.ResultBlocked,
			"decrypt denied: "+d.Reason, env.ID.String())
		return nil, fmt.Errorf("%w: %s", ErrAccessDenied, d.Reason)
	}

	aead, ok := v.aeads[env.Classification]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLevel, env.Classification)
	}

	sealed, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: short data", ErrInvalidEnvelope)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(env.Classification))
	if err != nil {
		v.record(models.EventDecryption, actor, role, env.Classification, models.ResultFailure,
			"decrypt failed: authentication error", env.ID.String())
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	sum := sha256.Sum256(plaintext)
	if hex.EncodeToString(sum[:]) != env.Checksum {
		v.record(models.EventDecryption, actor, role, env.Classification, models.ResultFailure,
			"decrypt failed: checksum mismatch", env.ID.String())
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidEnvelope)
	}

	v.record(models.EventDecryption, actor, role, env.Classification, models.ResultSuccess,
		fmt.Sprintf("decrypted %d bytes", len(plaintext)), env.ID.String())
	return plaintext, nil
}

func (v *Vault) record(t models.EventType, actor string, role models.Role, classification models.Classification, result models.EventResult, details, resource string) {
	if v.audit == nil {
		return
	}
	severity := models.SeverityLow
	if result == models.ResultFailure || result == models.ResultBlocked {
		severity = models.SeverityHigh
	}
	v.audit.Record(&models.SecurityEvent{
		Type:           t,
		Actor:          actor,
		ActorRole:      role,
		Classification: classification,
		Details:        details,
		Severity:       severity,
		Result:         result,
		Resource:       resource,
		Action:         string(t),
	})
}
