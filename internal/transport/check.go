package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"k8s.io/klog/v2"

	"github.com/updraft-sys/updraft/internal/descriptor"
	"github.com/updraft-sys/updraft/internal/trust"
)

const (
	// signatureHeader carries the server's signature over the raw response
	// body.
	signatureHeader = "X-Update-Signature"
	// algorithmHeader names the signature algorithm used for the response.
	algorithmHeader = "X-Signature-Algorithm"

	// maxResponseSize bounds an update-check response body.
	maxResponseSize = 1 << 20

	checkTimeout = 30 * time.Second
)

// CheckRequest is the body sent to the update server when polling for an
// update. Timestamp is epoch milliseconds at the client; together with the
// fingerprint it lets the server tell a fresh poll from a replayed one.
// SupportedAlgorithms tells the server which signature schemes this client
// can verify.
type CheckRequest struct {
	CurrentVersion      string                          `json:"currentVersion"`
	Platform            string                          `json:"platform"`
	Fingerprint         string                          `json:"fingerprint"`
	Timestamp           int64                           `json:"timestamp"`
	SupportedAlgorithms []descriptor.SignatureAlgorithm `json:"supportedAlgorithms"`
}

// SupportedAlgorithms lists every signature scheme the verifier implements,
// in preference order.
func SupportedAlgorithms() []descriptor.SignatureAlgorithm {
	return []descriptor.SignatureAlgorithm{descriptor.ECDSA, descriptor.RSAPSS}
}

// CheckClient polls the update server and authenticates its responses. The
// response body is verified against the trust store before it is parsed, so
// a compromised transport cannot feed the pipeline an unsigned descriptor.
type CheckClient struct {
	client    *http.Client
	endpoint  string
	userAgent string
	store     *trust.Store
}

// NewCheckClient creates a client for the given check endpoint.
func NewCheckClient(endpoint string, store *trust.Store) *CheckClient {
	return &CheckClient{
		client:    &http.Client{Timeout: checkTimeout},
		endpoint:  endpoint,
		userAgent: DefaultUserAgent,
		store:     store,
	}
}

// Check asks the server whether an update is available for the given
// client state. A nil descriptor with a nil error means the server had
// nothing newer.
func (c *CheckClient) Check(ctx context.Context, req CheckRequest) (*descriptor.Descriptor, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode check request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		klog.V(1).Info("update check: no update available")
		return nil, nil
	case http.StatusOK:
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(raw) > maxResponseSize {
		return nil, fmt.Errorf("response exceeds %d bytes", maxResponseSize)
	}

	if err := c.verifyResponse(raw, resp.Header); err != nil {
		return nil, err
	}

	d, err := descriptor.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid descriptor: %w", err)
	}

	return d, nil
}

// verifyResponse checks the transport-level signature over the raw body.
// This is separate from descriptor verification: it authenticates the
// server's response envelope, not the update itself.
func (c *CheckClient) verifyResponse(raw []byte, header http.Header) error {
	sig := header.Get(signatureHeader)
	if sig == "" {
		return fmt.Errorf("response missing %s header", signatureHeader)
	}

	alg := descriptor.SignatureAlgorithm(header.Get(algorithmHeader))
	if alg == "" {
		alg = descriptor.ECDSA
	}

	key, err := c.store.SelectKey(alg)
	if err != nil {
		return fmt.Errorf("select verification key: %w", err)
	}

	if ok, reason := trust.Verify(raw, sig, key.Public, alg); !ok {
		return fmt.Errorf("response signature invalid: %s", reason)
	}

	return nil
}
