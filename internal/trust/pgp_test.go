package trust

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

func TestVerifyDetachedSignature(t *testing.T) {
	dir := t.TempDir()

	entity, err := openpgp.NewEntity("Release Signing", "", "release@example.com", nil)
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}

	artifact := []byte("artifact bytes to be signed")
	artifactPath := filepath.Join(dir, "app.bin")
	if err := os.WriteFile(artifactPath, artifact, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	var keyringBuf bytes.Buffer
	if err := entity.Serialize(&keyringBuf); err != nil {
		t.Fatalf("serialize keyring: %v", err)
	}
	keyringPath := filepath.Join(dir, "keyring.gpg")
	if err := os.WriteFile(keyringPath, keyringBuf.Bytes(), 0o600); err != nil {
		t.Fatalf("write keyring: %v", err)
	}

	var sigBuf bytes.Buffer
	if err := openpgp.DetachSign(&sigBuf, entity, bytes.NewReader(artifact), nil); err != nil {
		t.Fatalf("detach sign: %v", err)
	}
	sigPath := filepath.Join(dir, "app.bin.sig")
	if err := os.WriteFile(sigPath, sigBuf.Bytes(), 0o600); err != nil {
		t.Fatalf("write signature: %v", err)
	}

	if err := VerifyDetachedSignature(artifactPath, sigPath, keyringPath); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}

	// Tampered artifact must fail.
	tamperedPath := filepath.Join(dir, "tampered.bin")
	if err := os.WriteFile(tamperedPath, []byte("different bytes"), 0o600); err != nil {
		t.Fatalf("write tampered artifact: %v", err)
	}
	if err := VerifyDetachedSignature(tamperedPath, sigPath, keyringPath); err == nil {
		t.Error("signature over tampered artifact was accepted")
	}
}

func TestVerifyDetachedSignatureMissingFiles(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")

	if err := VerifyDetachedSignature(missing, missing, missing); err == nil {
		t.Error("expected error for missing files")
	}
}

func TestLoadKeyringRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keyring.gpg")
	if err := os.WriteFile(path, []byte("not a keyring"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := loadKeyring(path); err == nil {
		t.Error("expected error for garbage keyring")
	}
}
