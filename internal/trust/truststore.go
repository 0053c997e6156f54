// Package trust implements the key and certificate trust decisions of the
// update pipeline: tiered signing-key selection, descriptor signature
// verification, certificate chain acceptance, and optional detached OpenPGP
// artifact signatures.
package trust

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/updraft-sys/updraft/internal/descriptor"
)

// Tier identifies a signing-key trust tier. Tiers are tried in declaration
// order; the first live key wins.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierBackup    Tier = "backup"
	TierEmergency Tier = "emergency"
)

// minRSABits is the smallest RSA modulus accepted for descriptor signing.
const minRSABits = 2048

// ErrNoUsableKey is returned when no tier holds a key usable for the
// requested algorithm.
var ErrNoUsableKey = errors.New("no usable signing key in any trust tier")

// Key is a selected signing key together with the tier it came from.
type Key struct {
	Tier   Tier
	Public crypto.PublicKey
}

// tierKey pairs a tier with its configured PEM material.
type tierKey struct {
	tier Tier
	pem  string
}

// Store holds the ordered signing-key tiers.
type Store struct {
	tiers []tierKey
}

// NewStore creates a trust store from PEM-encoded public keys per tier.
// Empty tiers are allowed and skipped during selection.
func NewStore(primary, backup, emergency string) *Store {
	return &Store{
		tiers: []tierKey{
			{tier: TierPrimary, pem: primary},
			{tier: TierBackup, pem: backup},
			{tier: TierEmergency, pem: emergency},
		},
	}
}

// SelectKey returns the first tier key that is live for the given
// algorithm: present, parseable, of the right key type and size class.
// Tiers that fail the liveness check are skipped, not fatal.
func (s *Store) SelectKey(alg descriptor.SignatureAlgorithm) (*Key, error) {
	var lastErr error

	for _, tk := range s.tiers {
		if tk.pem == "" {
			continue
		}
		pub, err := parsePublicKey(tk.pem)
		if err != nil {
			lastErr = fmt.Errorf("%s tier: %w", tk.tier, err)
			continue
		}
		if err := keyUsable(pub, alg); err != nil {
			lastErr = fmt.Errorf("%s tier: %w", tk.tier, err)
			continue
		}
		return &Key{Tier: tk.tier, Public: pub}, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoUsableKey, lastErr)
	}
	return nil, ErrNoUsableKey
}

// parsePublicKey decodes a PEM-encoded PKIX public key.
func parsePublicKey(pemData string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return pub, nil
}

// keyUsable checks that a parsed key fits the requested signature
// algorithm's type and size class.
func keyUsable(pub crypto.PublicKey, alg descriptor.SignatureAlgorithm) error {
	switch alg {
	case descriptor.RSAPSS:
		rsaKey, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("key type %T cannot verify RSA-PSS", pub)
		}
		if bits := rsaKey.N.BitLen(); bits < minRSABits {
			return fmt.Errorf("RSA key too small: %d bits, need %d", bits, minRSABits)
		}
		return nil

	case descriptor.ECDSA:
		ecKey, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("key type %T cannot verify ECDSA", pub)
		}
		if ecKey.Curve != elliptic.P256() {
			return fmt.Errorf("ECDSA key uses %s, need P-256", ecKey.Curve.Params().Name)
		}
		return nil

	default:
		return fmt.Errorf("unsupported signature algorithm %q", alg)
	}
}
