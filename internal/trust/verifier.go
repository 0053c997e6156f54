package trust

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/updraft-sys/updraft/internal/descriptor"
)

// pssSaltLength is the fixed salt length used by update signers.
const pssSaltLength = 32

// Verify checks signature (base64) over payload with the given public key
// and algorithm. It reports the outcome as a value: (false, reason) for any
// failure including malformed input, so a crash can never be mistaken for a
// valid signature.
func Verify(payload []byte, signature string, key crypto.PublicKey, alg descriptor.SignatureAlgorithm) (ok bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			reason = fmt.Sprintf("signature verification panicked: %v", r)
		}
	}()

	if key == nil {
		return false, "no verification key"
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Sprintf("malformed signature encoding: %v", err)
	}
	if len(sig) == 0 {
		return false, "empty signature"
	}

	digest := sha256.Sum256(payload)

	switch alg {
	case descriptor.RSAPSS:
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return false, fmt.Sprintf("RSA-PSS requires an RSA key, got %T", key)
		}
		opts := &rsa.PSSOptions{SaltLength: pssSaltLength, Hash: crypto.SHA256}
		if err := rsa.VerifyPSS(rsaKey, crypto.SHA256, digest[:], sig, opts); err != nil {
			return false, fmt.Sprintf("RSA-PSS verification failed: %v", err)
		}
		return true, ""

	case descriptor.ECDSA:
		ecKey, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return false, fmt.Sprintf("ECDSA requires an EC key, got %T", key)
		}
		if !ecdsa.VerifyASN1(ecKey, digest[:], sig) {
			return false, "ECDSA verification failed"
		}
		return true, ""

	default:
		return false, fmt.Sprintf("unsupported signature algorithm %q", alg)
	}
}
