package trust

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/updraft-sys/updraft/internal/descriptor"
)

func signECDSA(t *testing.T, priv *ecdsa.PrivateKey, payload []byte) string {
	t.Helper()
	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

func signRSAPSS(t *testing.T, priv *rsa.PrivateKey, payload []byte) string {
	t.Helper()
	digest := sha256.Sum256(payload)
	opts := &rsa.PSSOptions{SaltLength: pssSaltLength, Hash: crypto.SHA256}
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], opts)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

func TestVerifyECDSARoundTrip(t *testing.T) {
	priv, _ := genECDSAKey(t)
	payload := []byte("1.2.3|https://updates.example.com/app.bin|abc123|1700000000000")

	sig := signECDSA(t, priv, payload)
	ok, reason := Verify(payload, sig, &priv.PublicKey, descriptor.ECDSA)
	if !ok {
		t.Fatalf("valid signature rejected: %s", reason)
	}
}

func TestVerifyRSAPSSRoundTrip(t *testing.T) {
	priv, _ := genRSAKey(t)
	payload := []byte("2.0.0|https://updates.example.com/app.bin|def456|1700000000000")

	sig := signRSAPSS(t, priv, payload)
	ok, reason := Verify(payload, sig, &priv.PublicKey, descriptor.RSAPSS)
	if !ok {
		t.Fatalf("valid signature rejected: %s", reason)
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	priv, _ := genECDSAKey(t)
	payload := []byte("1.2.3|https://updates.example.com/app.bin|abc123|1700000000000")
	sig := signECDSA(t, priv, payload)

	tampered := []byte("9.9.9|https://updates.example.com/app.bin|abc123|1700000000000")
	if ok, _ := Verify(tampered, sig, &priv.PublicKey, descriptor.ECDSA); ok {
		t.Error("signature over different payload was accepted")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	signer, _ := genECDSAKey(t)
	other, _ := genECDSAKey(t)
	payload := []byte("payload")
	sig := signECDSA(t, signer, payload)

	if ok, _ := Verify(payload, sig, &other.PublicKey, descriptor.ECDSA); ok {
		t.Error("signature accepted under the wrong key")
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	priv, _ := genECDSAKey(t)
	payload := []byte("payload")

	tests := []struct {
		name string
		sig  string
		key  crypto.PublicKey
		alg  descriptor.SignatureAlgorithm
	}{
		{name: "not_base64", sig: "%%%not-base64%%%", key: &priv.PublicKey, alg: descriptor.ECDSA},
		{name: "empty_signature", sig: "", key: &priv.PublicKey, alg: descriptor.ECDSA},
		{name: "nil_key", sig: signECDSA(t, priv, payload), key: nil, alg: descriptor.ECDSA},
		{name: "garbage_asn1", sig: base64.StdEncoding.EncodeToString([]byte{0xff, 0x00, 0x01}), key: &priv.PublicKey, alg: descriptor.ECDSA},
		{name: "unknown_algorithm", sig: signECDSA(t, priv, payload), key: &priv.PublicKey, alg: descriptor.SignatureAlgorithm("DSA")},
		{name: "key_algorithm_mismatch", sig: signECDSA(t, priv, payload), key: &priv.PublicKey, alg: descriptor.RSAPSS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := Verify(payload, tt.sig, tt.key, tt.alg)
			if ok {
				t.Fatal("malformed input was accepted")
			}
			if reason == "" {
				t.Error("rejection carried no reason")
			}
		})
	}
}

func TestVerifyAlgorithmConfusion(t *testing.T) {
	// An ECDSA signature must not verify as RSA-PSS against an RSA key,
	// whatever the bytes happen to decode as.
	ecPriv, _ := genECDSAKey(t)
	rsaPriv, _ := genRSAKey(t)
	payload := []byte("payload")
	sig := signECDSA(t, ecPriv, payload)

	ok, reason := Verify(payload, sig, &rsaPriv.PublicKey, descriptor.RSAPSS)
	if ok {
		t.Fatal("cross-algorithm signature was accepted")
	}
	if !strings.Contains(reason, "RSA-PSS") {
		t.Errorf("reason %q does not name the failing algorithm", reason)
	}
}
