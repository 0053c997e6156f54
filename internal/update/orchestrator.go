// Package update orchestrates the full update pipeline: verification of a
// descriptor against the trust configuration, then the guarded
// download-verify-backup-apply sequence with rollback on failure.
package update

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/updraft-sys/updraft/internal/config"
	"github.com/updraft-sys/updraft/internal/descriptor"
	"github.com/updraft-sys/updraft/internal/integrity"
	"github.com/updraft-sys/updraft/internal/platform"
	"github.com/updraft-sys/updraft/internal/policy"
	"github.com/updraft-sys/updraft/internal/store"
	"github.com/updraft-sys/updraft/internal/transport"
	"github.com/updraft-sys/updraft/internal/trust"
	"github.com/updraft-sys/updraft/internal/version"
)

// Options wires the orchestrator's dependencies.
type Options struct {
	Config     *config.TrustConfig
	Store      store.Store
	TrustStore *trust.Store
	Platform   *platform.Info
	AppVersion string
	Downloader *transport.Downloader
	Applier    Applier
	Backups    *store.BackupManager

	// WorkDir holds downloaded artifacts and the update lock.
	WorkDir string

	// PGPKeyringPath enables detached artifact signature checks when a
	// descriptor advertises one.
	PGPKeyringPath string

	// Clock defaults to the system clock.
	Clock Clock
}

// Orchestrator drives update verification and application. One orchestrator
// serves one installed application; Execute is single-flight.
type Orchestrator struct {
	cfg        *config.TrustConfig
	state      store.Store
	history    *store.History
	audit      *store.AuditLog
	trust      *trust.Store
	chain      *trust.ChainValidator
	freshness  *policy.FreshnessGuard
	rollback   *policy.RollbackGuard
	hook       *policy.Hook
	downloader *transport.Downloader
	applier    Applier
	backups    *store.BackupManager
	platform   *platform.Info
	appVersion string
	workDir    string
	keyring    string
	clock      Clock

	mu sync.Mutex
}

// New validates the options and builds an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Config == nil:
		return nil, fmt.Errorf("config is required")
	case opts.Store == nil:
		return nil, fmt.Errorf("store is required")
	case opts.TrustStore == nil:
		return nil, fmt.Errorf("trust store is required")
	case opts.Platform == nil:
		return nil, fmt.Errorf("platform info is required")
	case opts.Applier == nil:
		return nil, fmt.Errorf("applier is required")
	case opts.Backups == nil:
		return nil, fmt.Errorf("backup manager is required")
	case opts.Downloader == nil:
		return nil, fmt.Errorf("downloader is required")
	case opts.WorkDir == "":
		return nil, fmt.Errorf("work directory is required")
	}
	if err := version.Validate(opts.AppVersion); err != nil {
		return nil, fmt.Errorf("app version: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = RealClock{}
	}

	return &Orchestrator{
		cfg:        opts.Config,
		state:      opts.Store,
		history:    store.NewHistory(opts.Store),
		audit:      store.NewAuditLog(opts.Store),
		trust:      opts.TrustStore,
		chain:      trust.NewChainValidator(opts.Config.TrustedCertificates),
		freshness:  policy.NewFreshnessGuard(opts.Config.Integrity),
		rollback:   policy.NewRollbackGuard(opts.Config.Rollback),
		hook:       policy.NewHook(opts.Config.PolicyScript),
		downloader: opts.Downloader,
		applier:    opts.Applier,
		backups:    opts.Backups,
		platform:   opts.Platform,
		appVersion: opts.AppVersion,
		workDir:    opts.WorkDir,
		keyring:    opts.PGPKeyringPath,
		clock:      clock,
	}, nil
}

// Verify runs every check against the descriptor and returns the full
// report. Checks do not short-circuit: a rejected update reports all of its
// problems at once. The pass is bounded by the configured verification
// timeout; exceeding it is itself a hard failure.
func (o *Orchestrator) Verify(ctx context.Context, d *descriptor.Descriptor) *descriptor.VerificationResult {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.VerificationTimeout)
	defer cancel()

	result := descriptor.NewVerificationResult()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				result.AddError("verification panicked: %v", r)
			}
		}()
		o.runChecks(d, result)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		result = descriptor.NewVerificationResult()
		result.AddError("verification timed out after %s", o.cfg.VerificationTimeout)
	}

	outcome := "valid"
	severity := store.SeverityInfo
	if !result.Valid {
		outcome = "invalid"
		severity = store.SeverityCritical
	}
	verificationsTotal.WithLabelValues(outcome).Inc()

	if err := o.audit.Record(store.AuditEntry{
		Event:    "descriptor_verification",
		Version:  d.Version,
		Platform: o.platform.ID(),
		Severity: severity,
		Detail:   auditDetail(result),
	}); err != nil {
		klog.Errorf("record verification audit entry: %v", err)
	}

	return result
}

// runChecks evaluates every verification rule, accumulating findings.
func (o *Orchestrator) runChecks(d *descriptor.Descriptor, result *descriptor.VerificationResult) {
	if err := d.Validate(); err != nil {
		result.AddError("malformed descriptor: %v", err)
	}

	if !o.cfg.DomainAllowed(d.URL) {
		result.AddError("download host not in allowed domains: %s", d.URL)
	}

	if d.MinAppVersion != "" && !version.AtLeast(o.appVersion, d.MinAppVersion) {
		result.AddError("update requires app version %s, running %s", d.MinAppVersion, o.appVersion)
	}

	if !o.platform.Matches(d.TargetPlatform) {
		result.AddError("update targets %s, this host is %s", d.TargetPlatform, o.platform.ID())
	}

	if d.Size > o.cfg.MaxUpdateSize {
		result.AddError("declared size %d exceeds limit %d", d.Size, o.cfg.MaxUpdateSize)
	}

	if warning, err := o.freshness.Check(d.Time(), o.clock.Now()); err != nil {
		result.AddError("freshness: %v", err)
	} else if warning != "" {
		result.AddWarning("%s", warning)
	}

	o.checkChain(d, result)
	o.checkSignature(d, result)

	current := o.currentVersionString()
	if warning, err := o.rollback.Check(current, d.Version); err != nil {
		result.AddError("%v", err)
	} else if warning != "" {
		result.AddWarning("%s", warning)
	}

	if o.cfg.Integrity.EnableDoubleHashing {
		if err := integrity.CheckDoubleHash(d); err != nil {
			result.AddError("%v", err)
		}
	}

	o.checkPolicyHook(d, current, result)
}

func (o *Orchestrator) checkChain(d *descriptor.Descriptor, result *descriptor.VerificationResult) {
	if !o.cfg.CodeSigning.RequireValidChain {
		return
	}

	err := o.chain.Validate(d.CertificateChain)
	if err == nil {
		return
	}
	if err == trust.ErrEmptyChain && o.cfg.CodeSigning.AllowSelfSigned {
		result.AddWarning("descriptor presents no certificate chain; accepted by self-signed policy")
		return
	}
	result.AddError("certificate chain: %v", err)
}

func (o *Orchestrator) checkSignature(d *descriptor.Descriptor, result *descriptor.VerificationResult) {
	key, err := o.trust.SelectKey(d.SignatureAlgorithm)
	if err != nil {
		result.AddError("%v", err)
		return
	}
	if key.Tier != trust.TierPrimary {
		result.AddWarning("verified with %s trust tier", key.Tier)
	}

	if ok, reason := trust.Verify(d.SigningPayload(), d.Signature, key.Public, d.SignatureAlgorithm); !ok {
		result.AddError("signature: %s", reason)
	}
}

func (o *Orchestrator) checkPolicyHook(d *descriptor.Descriptor, current string, result *descriptor.VerificationResult) {
	res, err := o.hook.Evaluate(d, current)
	if err != nil {
		result.AddError("policy hook: %v", err)
		return
	}
	switch res.Decision {
	case policy.Deny:
		result.AddError("denied by policy: %s", res.Message)
	case policy.Warn:
		result.AddWarning("policy: %s", res.Message)
	}
}

// ExecuteResult reports the outcome of an update attempt.
type ExecuteResult struct {
	Success     bool
	Version     string
	FromVersion string
	Warnings    []string
	RolledBack  bool
	Err         error
}

// Execute verifies the descriptor and, if it passes, runs the apply
// pipeline: backup, download, integrity checks, re-verification against the
// downloaded bytes, install. A failed apply restores the backup. Execute is
// single-flight within the process and holds an on-disk lock against other
// processes.
func (o *Orchestrator) Execute(ctx context.Context, d *descriptor.Descriptor) (result *ExecuteResult) {
	result = &ExecuteResult{Version: d.Version, FromVersion: o.currentVersionString()}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Err = fmt.Errorf("update panicked: %v", r)
			o.recordOutcome(d, result)
		}
	}()

	if !o.mu.TryLock() {
		result.Err = fmt.Errorf("an update is already in progress")
		return result
	}
	defer o.mu.Unlock()

	lock, err := AcquireLock(o.workDir)
	if err != nil {
		result.Err = err
		return result
	}
	defer func() {
		if err := lock.Release(); err != nil {
			klog.Errorf("release update lock: %v", err)
		}
	}()

	verification := o.Verify(ctx, d)
	result.Warnings = verification.Warnings
	if !verification.Valid {
		result.Err = fmt.Errorf("verification failed: %v", verification.Errors)
		o.recordOutcome(d, result)
		return result
	}

	if err := o.apply(ctx, d, result); err != nil {
		result.Err = err
	} else {
		result.Success = true
	}
	o.recordOutcome(d, result)
	return result
}

// apply runs the destructive half of the pipeline. The artifact lives in
// the work directory until installed and is removed on every path out.
func (o *Orchestrator) apply(ctx context.Context, d *descriptor.Descriptor, result *ExecuteResult) error {
	var backup *store.BackupRecord
	target := o.applier.TargetPath()
	if _, err := os.Stat(target); err == nil {
		rec, err := o.backups.Create(target, result.FromVersion, o.platform.ID(), o.clock.Now())
		if err != nil {
			return fmt.Errorf("create backup: %w", err)
		}
		backup = rec
	}

	artifactPath := filepath.Join(o.workDir, fmt.Sprintf("artifact-%s.bin", d.Version))
	defer os.Remove(artifactPath)

	klog.V(1).Infof("downloading %s", d.URL)
	if err := o.downloader.Download(ctx, d.URL, artifactPath); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	info, err := os.Stat(artifactPath)
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}
	downloadBytesTotal.Add(float64(info.Size()))
	if info.Size() != d.Size {
		return fmt.Errorf("artifact is %d bytes, descriptor declared %d", info.Size(), d.Size)
	}

	artifactHash, err := integrity.HashFile(artifactPath, d.HashAlgorithm)
	if err != nil {
		return fmt.Errorf("hash artifact: %w", err)
	}
	if err := integrity.VerifyPrimary(artifactHash, d.ContentHash); err != nil {
		return err
	}

	// Re-verify the signature over a payload rebuilt from the bytes on
	// disk. A descriptor swapped between verification and download cannot
	// survive this.
	key, err := o.trust.SelectKey(d.SignatureAlgorithm)
	if err != nil {
		return err
	}
	if ok, reason := trust.Verify(d.SigningPayloadForArtifact(artifactHash), d.Signature, key.Public, d.SignatureAlgorithm); !ok {
		return fmt.Errorf("post-download signature check: %s", reason)
	}

	if err := o.verifyDetachedSignature(ctx, d, artifactPath, result); err != nil {
		return err
	}

	if err := o.applier.Apply(ctx, artifactPath); err != nil {
		o.restoreBackup(backup, target, result)
		return fmt.Errorf("apply: %w", err)
	}

	// A marker that still names the old version next to a new binary would
	// poison every later rollback decision, so a failed commit rolls the
	// binary back too.
	if err := store.CommitVersion(o.state, d.Version, o.clock.Now()); err != nil {
		o.restoreBackup(backup, target, result)
		return fmt.Errorf("commit version marker: %w", err)
	}

	klog.Infof("updated %s -> %s", result.FromVersion, d.Version)
	return nil
}

// restoreBackup puts the previous target back, best effort. A nil backup
// means there was nothing installed before.
func (o *Orchestrator) restoreBackup(backup *store.BackupRecord, target string, result *ExecuteResult) {
	if backup == nil {
		return
	}
	if err := o.backups.Restore(backup, target); err != nil {
		klog.Errorf("restore backup: %v", err)
		return
	}
	result.RolledBack = true
	rollbacksTotal.Inc()
}

// verifyDetachedSignature checks the optional OpenPGP signature over the
// artifact.
func (o *Orchestrator) verifyDetachedSignature(ctx context.Context, d *descriptor.Descriptor, artifactPath string, result *ExecuteResult) error {
	if d.PGPSignatureURL == "" {
		return nil
	}
	if o.keyring == "" {
		result.Warnings = append(result.Warnings, "descriptor offers a PGP signature but no keyring is configured")
		return nil
	}
	if !o.cfg.DomainAllowed(d.PGPSignatureURL) {
		return fmt.Errorf("PGP signature host not in allowed domains: %s", d.PGPSignatureURL)
	}

	sigPath := artifactPath + ".sig"
	defer os.Remove(sigPath)

	if err := o.downloader.Download(ctx, d.PGPSignatureURL, sigPath); err != nil {
		return fmt.Errorf("download PGP signature: %w", err)
	}
	if err := trust.VerifyDetachedSignature(artifactPath, sigPath, o.keyring); err != nil {
		return fmt.Errorf("PGP: %w", err)
	}
	return nil
}

// recordOutcome writes the attempt into history, the audit log and metrics.
func (o *Orchestrator) recordOutcome(d *descriptor.Descriptor, result *ExecuteResult) {
	entry := store.HistoryEntry{
		Version:     result.Version,
		FromVersion: result.FromVersion,
		URL:         d.URL,
		ContentHash: d.ContentHash,
		Timestamp:   o.clock.Now().UTC(),
		Success:     result.Success,
		Mandatory:   d.Mandatory,
	}
	outcome := "success"
	severity := store.SeverityInfo
	event := "update_applied"
	if !result.Success {
		outcome = "failure"
		severity = store.SeverityWarning
		event = "update_failed"
		if result.Err != nil {
			entry.Error = result.Err.Error()
		}
	}
	updatesTotal.WithLabelValues(outcome).Inc()

	if err := o.history.Append(entry); err != nil {
		klog.Errorf("append update history: %v", err)
	}
	if err := o.audit.Record(store.AuditEntry{
		Event:    event,
		Version:  result.Version,
		Platform: o.platform.ID(),
		Severity: severity,
		Detail:   entry.Error,
	}); err != nil {
		klog.Errorf("record update audit entry: %v", err)
	}
}

// currentVersionString reads the installed version marker, empty when
// nothing is installed.
func (o *Orchestrator) currentVersionString() string {
	marker, err := store.CurrentVersion(o.state)
	if err != nil {
		klog.Warningf("read version marker: %v", err)
		return ""
	}
	if marker == nil {
		return ""
	}
	return marker.Version
}

// CurrentUpdateInfo returns the installed version marker, nil when nothing
// has been installed through the pipeline.
func (o *Orchestrator) CurrentUpdateInfo() (*store.VersionMarker, error) {
	return store.CurrentVersion(o.state)
}

// History returns the recorded update attempts, oldest first.
func (o *Orchestrator) History() ([]store.HistoryEntry, error) {
	return o.history.Entries()
}

// SecurityLogs returns the audit log entries, oldest first.
func (o *Orchestrator) SecurityLogs() ([]store.AuditEntry, error) {
	return o.audit.Entries()
}

// ClearSecurityLogs wipes the audit log.
func (o *Orchestrator) ClearSecurityLogs() error {
	return o.audit.Clear()
}

// SecurityStats summarises the pipeline's posture and history.
type SecurityStats struct {
	TotalUpdates      int       `json:"totalUpdates"`
	SuccessfulUpdates int       `json:"successfulUpdates"`
	FailedUpdates     int       `json:"failedUpdates"`
	LastUpdateDate    time.Time `json:"lastUpdateDate"`
	SecurityLevel     string    `json:"securityLevel"`
}

// Stats aggregates history into a stats snapshot.
func (o *Orchestrator) Stats() (*SecurityStats, error) {
	entries, err := o.history.Entries()
	if err != nil {
		return nil, err
	}

	stats := &SecurityStats{SecurityLevel: o.securityLevel()}
	for _, e := range entries {
		stats.TotalUpdates++
		if e.Success {
			stats.SuccessfulUpdates++
		} else {
			stats.FailedUpdates++
		}
		if e.Timestamp.After(stats.LastUpdateDate) {
			stats.LastUpdateDate = e.Timestamp
		}
	}
	return stats, nil
}

// securityLevel grades the active configuration.
func (o *Orchestrator) securityLevel() string {
	hardened := 0
	if o.cfg.Rollback.Enabled && !o.cfg.Rollback.AllowDowngrade {
		hardened++
	}
	if o.cfg.Integrity.RequireTimestampValidation {
		hardened++
	}
	if o.cfg.Integrity.EnableDoubleHashing {
		hardened++
	}
	if o.cfg.CodeSigning.RequireValidChain && !o.cfg.CodeSigning.AllowSelfSigned {
		hardened++
	}

	switch {
	case hardened == 4:
		return "high"
	case hardened >= 2:
		return "medium"
	default:
		return "low"
	}
}

// auditDetail flattens a verification result for the audit log.
func auditDetail(r *descriptor.VerificationResult) string {
	switch {
	case len(r.Errors) > 0:
		return fmt.Sprintf("errors: %v; warnings: %v", r.Errors, r.Warnings)
	case len(r.Warnings) > 0:
		return fmt.Sprintf("warnings: %v", r.Warnings)
	default:
		return "all checks passed"
	}
}
