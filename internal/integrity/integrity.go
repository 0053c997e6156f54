// Package integrity computes and checks content digests of downloaded
// update artifacts: the primary content hash and the chained double hash
// that binds the artifact to its descriptor metadata.
package integrity

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/updraft-sys/updraft/internal/descriptor"
)

// HashFile streams a file through the named digest and returns the
// lowercase hex sum.
func HashFile(path string, alg descriptor.HashAlgorithm) (string, error) {
	h, err := newHash(alg)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash artifact: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func newHash(alg descriptor.HashAlgorithm) (hash.Hash, error) {
	switch alg {
	case descriptor.SHA256:
		return sha256.New(), nil
	case descriptor.SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", alg)
	}
}

// VerifyPrimary compares a computed artifact digest against the descriptor's
// advertised contentHash. Hex digests compare case-insensitively.
func VerifyPrimary(computed, expected string) error {
	if expected == "" {
		return fmt.Errorf("no expected content hash")
	}
	if !strings.EqualFold(computed, expected) {
		return fmt.Errorf("content hash mismatch: computed %s, descriptor says %s", computed, expected)
	}
	return nil
}

// DoubleHash chains the descriptor's identity fields into the content hash:
// hash(hash(url + version + timestamp) + contentHash). A forged descriptor
// that reuses a valid artifact hash under different metadata produces a
// different double hash.
func DoubleHash(d *descriptor.Descriptor, alg descriptor.HashAlgorithm) (string, error) {
	inner, err := newHash(alg)
	if err != nil {
		return "", err
	}
	inner.Write([]byte(d.URL))
	inner.Write([]byte(d.Version))
	inner.Write([]byte(strconv.FormatInt(d.Timestamp, 10)))
	innerHex := hex.EncodeToString(inner.Sum(nil))

	outer, err := newHash(alg)
	if err != nil {
		return "", err
	}
	outer.Write([]byte(innerHex))
	outer.Write([]byte(strings.ToLower(d.ContentHash)))

	return hex.EncodeToString(outer.Sum(nil)), nil
}

// CheckDoubleHash computes the chained hash and, when the server supplied
// an expected value, compares against it. Without a server value the check
// only confirms the chain is computable; the binding still protects the
// re-verification path, which recomputes it from the artifact digest.
func CheckDoubleHash(d *descriptor.Descriptor) error {
	computed, err := DoubleHash(d, d.HashAlgorithm)
	if err != nil {
		return fmt.Errorf("compute double hash: %w", err)
	}

	if d.ExpectedDoubleHash != "" && !strings.EqualFold(computed, d.ExpectedDoubleHash) {
		return fmt.Errorf("double hash mismatch: computed %s, descriptor says %s", computed, d.ExpectedDoubleHash)
	}

	return nil
}
