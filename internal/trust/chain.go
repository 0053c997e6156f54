package trust

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"strings"
)

// ErrEmptyChain is returned when a descriptor presents no certificates.
var ErrEmptyChain = errors.New("empty certificate chain")

// ErrUntrustedChain is returned when no presented certificate is in the
// trusted set.
var ErrUntrustedChain = errors.New("no certificate in chain is trusted")

// ChainValidator accepts a certificate chain when any presented certificate
// is a member of the configured trusted set.
//
// This is deliberately weaker than X.509 path validation: no expiry, issuer
// or key-usage checks are performed. The trusted set is the whole policy.
type ChainValidator struct {
	fingerprints map[string]struct{}
}

// NewChainValidator builds a validator from the trusted certificate blobs.
func NewChainValidator(trusted []string) *ChainValidator {
	v := &ChainValidator{fingerprints: make(map[string]struct{}, len(trusted))}
	for _, cert := range trusted {
		if fp := certFingerprint(cert); fp != "" {
			v.fingerprints[fp] = struct{}{}
		}
	}
	return v
}

// Validate checks a presented chain against the trusted set. An empty chain
// always fails; a chain passes if any member is trusted.
func (v *ChainValidator) Validate(chain []string) error {
	if len(chain) == 0 {
		return ErrEmptyChain
	}

	for _, cert := range chain {
		if fp := certFingerprint(cert); fp != "" {
			if _, ok := v.fingerprints[fp]; ok {
				return nil
			}
		}
	}

	return ErrUntrustedChain
}

// certFingerprint returns a stable identity for a certificate blob: the
// SHA-256 of the DER bytes when the blob is PEM, otherwise of the trimmed
// raw text. Using the DER bytes makes the comparison insensitive to PEM
// whitespace and header differences.
func certFingerprint(cert string) string {
	trimmed := strings.TrimSpace(cert)
	if trimmed == "" {
		return ""
	}

	if block, _ := pem.Decode([]byte(trimmed)); block != nil {
		sum := sha256.Sum256(block.Bytes)
		return hex.EncodeToString(sum[:])
	}

	sum := sha256.Sum256([]byte(trimmed))
	return hex.EncodeToString(sum[:])
}
