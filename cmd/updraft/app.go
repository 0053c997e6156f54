package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/updraft-sys/updraft/internal/config"
	"github.com/updraft-sys/updraft/internal/platform"
	"github.com/updraft-sys/updraft/internal/store"
	"github.com/updraft-sys/updraft/internal/transport"
	"github.com/updraft-sys/updraft/internal/trust"
	"github.com/updraft-sys/updraft/internal/update"
)

// appOptions are the shared flags every subcommand accepts.
type appOptions struct {
	configPath string
	baseDir    string
	target     string
	appVersion string
	keyring    string
}

// parseSharedFlags consumes recognized "--flag value" pairs and returns the
// remaining positional arguments.
func parseSharedFlags(args []string) (appOptions, []string, error) {
	opts := appOptions{appVersion: Version}
	var rest []string

	for i := 0; i < len(args); i++ {
		flagsWithValue := map[string]*string{
			"--config":      &opts.configPath,
			"--dir":         &opts.baseDir,
			"--target":      &opts.target,
			"--app-version": &opts.appVersion,
			"--keyring":     &opts.keyring,
		}
		if dst, ok := flagsWithValue[args[i]]; ok {
			if i+1 >= len(args) {
				return opts, nil, fmt.Errorf("%s requires a value", args[i])
			}
			*dst = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}

	if opts.baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return opts, nil, fmt.Errorf("resolve home directory: %w", err)
		}
		opts.baseDir = filepath.Join(home, ".local", "share", "updraft")
	}
	if opts.configPath == "" {
		opts.configPath = filepath.Join(opts.baseDir, "config.yaml")
	}
	if opts.target == "" {
		exe, err := os.Executable()
		if err != nil {
			return opts, nil, fmt.Errorf("resolve install target: %w", err)
		}
		opts.target = exe
	}

	return opts, rest, nil
}

// app bundles the wired pipeline for a CLI invocation.
type app struct {
	cfg      *config.TrustConfig
	orch     *update.Orchestrator
	trust    *trust.Store
	platform *platform.Info
	options  appOptions
}

// buildApp loads configuration, detects the platform and wires the
// orchestrator.
func buildApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", opts.configPath, err)
	}

	info, err := platform.NewDetector().Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect platform: %w", err)
	}

	state, err := store.NewFileStore(filepath.Join(opts.baseDir, "state"))
	if err != nil {
		return nil, err
	}
	backups, err := store.NewBackupManager(filepath.Join(opts.baseDir, "backups"), state, cfg.Rollback.MaxRollbackVersions)
	if err != nil {
		return nil, err
	}

	trustStore := trust.NewStore(cfg.Keys.Primary, cfg.Keys.Backup, cfg.Keys.Emergency)

	downloader := transport.NewDownloader(cfg.MaxUpdateSize)
	downloader.OnProgress = printProgress

	orch, err := update.New(update.Options{
		Config:         cfg,
		Store:          state,
		TrustStore:     trustStore,
		Platform:       info,
		AppVersion:     opts.appVersion,
		Downloader:     downloader,
		Applier:        update.NewFileApplier(opts.target, 0o755),
		Backups:        backups,
		WorkDir:        filepath.Join(opts.baseDir, "work"),
		PGPKeyringPath: opts.keyring,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		orch:     orch,
		trust:    trustStore,
		platform: info,
		options:  opts,
	}, nil
}

// printProgress renders a single-line progress indicator.
func printProgress(p transport.Progress) {
	fmt.Printf("\rDownloading... %5.1f%% (%d/%d bytes)", p.Percent, p.Written, p.Total)
	if p.Written >= p.Total {
		fmt.Println()
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
