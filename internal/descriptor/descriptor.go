// Package descriptor defines the update descriptor wire format: the metadata
// record an update server advertises for an available update, plus the
// canonical signing payload derived from it.
package descriptor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HashAlgorithm names a supported content digest.
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "SHA-256"
	SHA512 HashAlgorithm = "SHA-512"
)

// SignatureAlgorithm names a supported descriptor signature scheme.
type SignatureAlgorithm string

const (
	RSAPSS SignatureAlgorithm = "RSA-PSS"
	ECDSA  SignatureAlgorithm = "ECDSA"
)

// payloadSeparator joins canonical payload fields. It never appears in
// version numbers, hex digests or sizes, and URLs containing it are
// rejected by Validate.
const payloadSeparator = "|"

// Descriptor is the metadata record describing an available update. A
// descriptor is created from an update-check response, consumed once by the
// orchestrator, and never mutated in place.
type Descriptor struct {
	Version            string             `json:"version"`
	URL                string             `json:"url"`
	Signature          string             `json:"signature"` // base64
	ContentHash        string             `json:"contentHash"`
	HashAlgorithm      HashAlgorithm      `json:"hashAlgorithm"`
	Timestamp          int64              `json:"timestamp"` // epoch milliseconds
	Mandatory          bool               `json:"mandatory"`
	Size               int64              `json:"size"`
	ReleaseNotes       string             `json:"releaseNotes,omitempty"`
	MinAppVersion      string             `json:"minAppVersion"`
	TargetPlatform     string             `json:"targetPlatform"`
	SignatureAlgorithm SignatureAlgorithm `json:"signatureAlgorithm"`
	CertificateChain   []string           `json:"certificateChain,omitempty"`
	CodeSigningCert    string             `json:"codeSigningCert,omitempty"`

	// PGPSignatureURL optionally points at a detached OpenPGP signature
	// over the artifact, checked after download when present.
	PGPSignatureURL string `json:"pgpSignatureUrl,omitempty"`

	// ExpectedDoubleHash optionally carries the server-computed chained
	// hash; when present it is compared against the locally computed one.
	ExpectedDoubleHash string `json:"expectedDoubleHash,omitempty"`
}

// Parse decodes a JSON descriptor.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode descriptor: %w", err)
	}
	return &d, nil
}

// Time returns the descriptor timestamp as a time.Time.
func (d *Descriptor) Time() time.Time {
	return time.UnixMilli(d.Timestamp)
}

// SigningPayload builds the canonical byte sequence the descriptor
// signature covers: fixed fields in a fixed order joined with "|".
func (d *Descriptor) SigningPayload() []byte {
	return d.payloadWithHash(d.ContentHash)
}

// SigningPayloadForArtifact rebuilds the canonical payload using the digest
// computed from the downloaded artifact instead of the advertised
// contentHash. Re-verifying the signature over this payload ties the
// signature to the bytes actually on disk.
func (d *Descriptor) SigningPayloadForArtifact(artifactHash string) []byte {
	return d.payloadWithHash(artifactHash)
}

func (d *Descriptor) payloadWithHash(hash string) []byte {
	fields := []string{
		d.Version,
		d.URL,
		hash,
		strconv.FormatInt(d.Timestamp, 10),
		strconv.FormatInt(d.Size, 10),
		d.TargetPlatform,
		d.MinAppVersion,
	}
	return []byte(strings.Join(fields, payloadSeparator))
}

// Validate checks structural well-formedness. It does not perform any trust
// decision; those belong to the verification pipeline.
func (d *Descriptor) Validate() error {
	if d.Version == "" {
		return fmt.Errorf("descriptor missing version")
	}
	if d.URL == "" {
		return fmt.Errorf("descriptor missing url")
	}
	if strings.Contains(d.URL, payloadSeparator) {
		return fmt.Errorf("descriptor url contains reserved separator")
	}
	if d.Signature == "" {
		return fmt.Errorf("descriptor missing signature")
	}
	if d.ContentHash == "" {
		return fmt.Errorf("descriptor missing contentHash")
	}
	if d.Size <= 0 {
		return fmt.Errorf("descriptor size must be positive, got %d", d.Size)
	}
	if d.Timestamp <= 0 {
		return fmt.Errorf("descriptor timestamp must be positive, got %d", d.Timestamp)
	}
	switch d.HashAlgorithm {
	case SHA256, SHA512:
	default:
		return fmt.Errorf("unsupported hash algorithm %q", d.HashAlgorithm)
	}
	switch d.SignatureAlgorithm {
	case RSAPSS, ECDSA:
	default:
		return fmt.Errorf("unsupported signature algorithm %q", d.SignatureAlgorithm)
	}
	return nil
}

// VerificationResult is the full report of a verification pass. Errors are
// hard failures that block the update; warnings are recorded but do not.
type VerificationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// NewVerificationResult returns an empty, valid result.
func NewVerificationResult() *VerificationResult {
	return &VerificationResult{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}
}

// AddError records a hard failure and marks the result invalid.
func (r *VerificationResult) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

// AddWarning records a soft finding.
func (r *VerificationResult) AddWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
