package vault

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/memshield/memshield/internal/access"
	"github.com/memshield/memshield/internal/models"
)

type captureSink struct {
	events []*models.SecurityEvent
}

func (c *captureSink) Record(event *models.SecurityEvent) {
	c.events = append(c.events, event)
}

func newTestVault(t *testing.T) (*Vault, *captureSink) {
	t.Helper()
	keys, err := GenerateKeys()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}
	sink := &captureSink{}
	v, err := New(keys, access.NewController(nil, nil), sink, nil)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	return v, sink
}

func TestVault_RoundTrip(t *testing.T) {
	v, _ := newTestVault(t)
	plaintext := []byte("quarterly revenue projections")

	env, err := v.Encrypt("alice", models.RoleAdmin, models.ClassificationSecret, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if env.Algorithm != "aes-256-gcm" {
		t.Errorf("unexpected algorithm %s", env.Algorithm)
	}
	if strings.Contains(env.Data, string(plaintext)) {
		t.Error("plaintext visible in envelope data")
	}

	out, err := v.Decrypt("alice", models.RoleAdmin, env)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(out) != string(plaintext) {
		t.Errorf("round trip mismatch: %q", out)
	}
}

func TestVault_MissingOrShortKeys(t *testing.T) {
	keys, err := GenerateKeys()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}

	delete(keys, models.ClassificationTopSecret)
	if _, err := New(keys, access.NewController(nil, nil), nil, nil); err == nil {
		t.Error("expected an error for a missing level key")
	}

	keys, _ = GenerateKeys()
	keys[models.ClassificationOpen] = []byte("short")
	if _, err := New(keys, access.NewController(nil, nil), nil, nil); err == nil {
		t.Error("expected an error for a short key")
	}
}

func TestVault_AccessDenied(t *testing.T) {
	v, sink := newTestVault(t)

	// Users hold neither encrypt nor decrypt.
	if _, err := v.Encrypt("bob", models.RoleUser, models.ClassificationConfidential, []byte("x")); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}

	// Developers clear secret but not top secret.
	env, err := v.Encrypt("alice", models.RoleAdmin, models.ClassificationTopSecret, []byte("x"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := v.Decrypt("carol", models.RoleDeveloper, env); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("expected ErrAccessDenied, got %v", err)
	}

	var blocked int
	for _, e := range sink.events {
		if e.Result == models.ResultBlocked && e.Type == models.EventDecryption {
			blocked++
		}
	}
	if blocked != 1 {
		t.Errorf("expected one blocked decryption event, got %d", blocked)
	}
}

func TestVault_TamperDetection(t *testing.T) {
	v, sink := newTestVault(t)
	env, err := v.Encrypt("alice", models.RoleAdmin, models.ClassificationSecret, []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	t.Run("flipped ciphertext byte", func(t *testing.T) {
		raw, _ := base64.StdEncoding.DecodeString(env.Data)
		raw[len(raw)-1] ^= 0x01
		tampered := *env
		tampered.Data = base64.StdEncoding.EncodeToString(raw)
		if _, err := v.Decrypt("alice", models.RoleAdmin, &tampered); !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("expected ErrInvalidEnvelope, got %v", err)
		}
	})

	t.Run("relabeled classification", func(t *testing.T) {
		relabeled := *env
		relabeled.Classification = models.ClassificationOpen
		if _, err := v.Decrypt("alice", models.RoleAdmin, &relabeled); !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("expected ErrInvalidEnvelope, got %v", err)
		}
	})

	t.Run("forged checksum", func(t *testing.T) {
		forged := *env
		forged.Checksum = strings.Repeat("00", 32)
		if _, err := v.Decrypt("alice", models.RoleAdmin, &forged); !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("expected ErrInvalidEnvelope, got %v", err)
		}
	})

	t.Run("truncated data", func(t *testing.T) {
		short := *env
		short.Data = base64.StdEncoding.EncodeToString([]byte("abc"))
		if _, err := v.Decrypt("alice", models.RoleAdmin, &short); !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("expected ErrInvalidEnvelope, got %v", err)
		}
	})

	t.Run("garbage base64", func(t *testing.T) {
		bad := *env
		bad.Data = "not base64!!!"
		if _, err := v.Decrypt("alice", models.RoleAdmin, &bad); !errors.Is(err, ErrInvalidEnvelope) {
			t.Errorf("expected ErrInvalidEnvelope, got %v", err)
		}
	})

	var failures int
	for _, e := range sink.events {
		if e.Type == models.EventDecryption && e.Result == models.ResultFailure {
			failures++
		}
	}
	if failures < 2 {
		t.Errorf("expected failed decryption attempts in the audit trail, got %d", failures)
	}
}

func TestVault_NonceUniqueness(t *testing.T) {
	v, _ := newTestVault(t)
	plaintext := []byte("same input")

	a, err := v.Encrypt("alice", models.RoleAdmin, models.ClassificationOpen, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := v.Encrypt("alice", models.RoleAdmin, models.ClassificationOpen, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if a.Data == b.Data {
		t.Error("two encryptions of the same plaintext produced identical envelopes")
	}
	if a.Checksum != b.Checksum {
		t.Error("checksum is over the plaintext and must match for identical inputs")
	}
}

func TestVault_EmitsEvents(t *testing.T) {
	v, sink := newTestVault(t)

	env, err := v.Encrypt("alice", models.RoleAdmin, models.ClassificationConfidential, []byte("x"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := v.Decrypt("alice", models.RoleAdmin, env); err != nil {
		t.Fatalf("decrypt: %v", err)
	}

	var encrypts, decrypts int
	for _, e := range sink.events {
		switch e.Type {
		case models.EventEncryption:
			encrypts++
		case models.EventDecryption:
			decrypts++
		}
	}
	if encrypts != 1 || decrypts != 1 {
		t.Errorf("expected one encryption and one decryption event, got %d and %d", encrypts, decrypts)
	}
}
