package trust

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/updraft-sys/updraft/internal/descriptor"
)

// genECDSAKey returns a P-256 key and its PEM-encoded public half.
func genECDSAKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ECDSA key: %v", err)
	}
	return priv, encodePublicKey(t, &priv.PublicKey)
}

// genRSAKey returns a 2048-bit RSA key and its PEM-encoded public half.
func genRSAKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	return priv, encodePublicKey(t, &priv.PublicKey)
}

func encodePublicKey(t *testing.T, pub any) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestSelectKeyPrimary(t *testing.T) {
	_, primaryPEM := genECDSAKey(t)
	_, backupPEM := genECDSAKey(t)

	store := NewStore(primaryPEM, backupPEM, "")

	key, err := store.SelectKey(descriptor.ECDSA)
	if err != nil {
		t.Fatalf("SelectKey failed: %v", err)
	}
	if key.Tier != TierPrimary {
		t.Errorf("selected tier = %s, want primary", key.Tier)
	}
}

func TestSelectKeyFallsBack(t *testing.T) {
	_, backupPEM := genECDSAKey(t)

	tests := []struct {
		name     string
		primary  string
		wantTier Tier
	}{
		{name: "empty_primary", primary: "", wantTier: TierBackup},
		{name: "garbage_primary", primary: "not a pem block", wantTier: TierBackup},
		{
			name:     "wrong_key_type_primary",
			primary:  func() string { _, p := genRSAKey(t); return p }(),
			wantTier: TierBackup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(tt.primary, backupPEM, "")
			key, err := store.SelectKey(descriptor.ECDSA)
			if err != nil {
				t.Fatalf("SelectKey failed: %v", err)
			}
			if key.Tier != tt.wantTier {
				t.Errorf("selected tier = %s, want %s", key.Tier, tt.wantTier)
			}
		})
	}
}

func TestSelectKeyEmergencyTier(t *testing.T) {
	_, emergencyPEM := genECDSAKey(t)

	store := NewStore("", "", emergencyPEM)
	key, err := store.SelectKey(descriptor.ECDSA)
	if err != nil {
		t.Fatalf("SelectKey failed: %v", err)
	}
	if key.Tier != TierEmergency {
		t.Errorf("selected tier = %s, want emergency", key.Tier)
	}
}

func TestSelectKeyNoUsableKey(t *testing.T) {
	store := NewStore("", "", "")
	if _, err := store.SelectKey(descriptor.ECDSA); !errors.Is(err, ErrNoUsableKey) {
		t.Errorf("expected ErrNoUsableKey, got %v", err)
	}
}

func TestSelectKeyRejectsSmallRSA(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	smallPEM := encodePublicKey(t, &priv.PublicKey)

	store := NewStore(smallPEM, "", "")
	if _, err := store.SelectKey(descriptor.RSAPSS); !errors.Is(err, ErrNoUsableKey) {
		t.Errorf("expected ErrNoUsableKey for undersized RSA key, got %v", err)
	}
}

func TestSelectKeyRSA(t *testing.T) {
	_, rsaPEM := genRSAKey(t)

	store := NewStore(rsaPEM, "", "")
	key, err := store.SelectKey(descriptor.RSAPSS)
	if err != nil {
		t.Fatalf("SelectKey failed: %v", err)
	}
	if _, ok := key.Public.(*rsa.PublicKey); !ok {
		t.Errorf("selected key type %T, want *rsa.PublicKey", key.Public)
	}
}
