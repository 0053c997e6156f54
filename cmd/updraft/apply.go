package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/updraft-sys/updraft/internal/descriptor"
)

// runApply runs the full pipeline for a descriptor file: verify, download,
// check integrity, back up and install.
func runApply(args []string) (int, error) {
	opts, rest, err := parseSharedFlags(args)
	if err != nil {
		return 1, err
	}
	if len(rest) != 1 {
		return 1, fmt.Errorf("usage: updraft apply [flags] <descriptor.json>")
	}

	data, err := os.ReadFile(rest[0])
	if err != nil {
		return 1, fmt.Errorf("read descriptor: %w", err)
	}
	d, err := descriptor.Parse(data)
	if err != nil {
		return 1, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, opts)
	if err != nil {
		return 1, err
	}

	result := a.orch.Execute(ctx, d)
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if !result.Success {
		if result.RolledBack {
			fmt.Println("The previous version was restored from backup.")
		}
		return 1, result.Err
	}

	if result.FromVersion == "" {
		fmt.Printf("Installed %s.\n", result.Version)
	} else {
		fmt.Printf("Updated %s -> %s.\n", result.FromVersion, result.Version)
	}
	return 0, nil
}
