package main

import (
	"context"
	"fmt"

	"github.com/updraft-sys/updraft/internal/platform"
)

// runInfo prints the installed version and host identity.
func runInfo(args []string) (int, error) {
	opts, _, err := parseSharedFlags(args)
	if err != nil {
		return 1, err
	}

	ctx := context.Background()
	a, err := buildApp(ctx, opts)
	if err != nil {
		return 1, err
	}

	fmt.Printf("App version:  %s\n", opts.appVersion)
	fmt.Printf("Platform:     %s\n", a.platform.ID())
	fmt.Printf("Fingerprint:  %s\n", platform.Fingerprint(a.platform))
	fmt.Printf("Target:       %s\n", opts.target)

	marker, err := a.orch.CurrentUpdateInfo()
	if err != nil {
		return 1, err
	}
	if marker == nil {
		fmt.Println("Installed:    no update applied yet")
	} else {
		fmt.Printf("Installed:    %s (%s)\n", marker.Version, formatTime(marker.UpdatedAt))
	}
	return 0, nil
}

// runHistory prints past update attempts, oldest first.
func runHistory(args []string) (int, error) {
	opts, _, err := parseSharedFlags(args)
	if err != nil {
		return 1, err
	}

	a, err := buildApp(context.Background(), opts)
	if err != nil {
		return 1, err
	}

	entries, err := a.orch.History()
	if err != nil {
		return 1, err
	}
	if len(entries) == 0 {
		fmt.Println("No updates recorded.")
		return 0, nil
	}

	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "FAILED"
		}
		from := e.FromVersion
		if from == "" {
			from = "(none)"
		}
		fmt.Printf("%s  %-6s  %s -> %s", formatTime(e.Timestamp), status, from, e.Version)
		if e.Error != "" {
			fmt.Printf("  (%s)", e.Error)
		}
		fmt.Println()
	}
	return 0, nil
}

// runLogs prints or clears the security audit log.
func runLogs(args []string) (int, error) {
	clearLog := false
	var rest []string
	for _, arg := range args {
		if arg == "--clear" {
			clearLog = true
			continue
		}
		rest = append(rest, arg)
	}

	opts, _, err := parseSharedFlags(rest)
	if err != nil {
		return 1, err
	}

	a, err := buildApp(context.Background(), opts)
	if err != nil {
		return 1, err
	}

	if clearLog {
		if err := a.orch.ClearSecurityLogs(); err != nil {
			return 1, err
		}
		fmt.Println("Security log cleared.")
		return 0, nil
	}

	entries, err := a.orch.SecurityLogs()
	if err != nil {
		return 1, err
	}
	if len(entries) == 0 {
		fmt.Println("Security log is empty.")
		return 0, nil
	}

	for _, e := range entries {
		fmt.Printf("%s  %-8s  %s", formatTime(e.Time), e.Severity, e.Event)
		if e.Version != "" {
			fmt.Printf("  v%s", e.Version)
		}
		if e.Detail != "" {
			fmt.Printf("  %s", e.Detail)
		}
		fmt.Println()
	}
	return 0, nil
}

// runStats prints aggregate update statistics.
func runStats(args []string) (int, error) {
	opts, _, err := parseSharedFlags(args)
	if err != nil {
		return 1, err
	}

	a, err := buildApp(context.Background(), opts)
	if err != nil {
		return 1, err
	}

	stats, err := a.orch.Stats()
	if err != nil {
		return 1, err
	}

	fmt.Printf("Total updates:      %d\n", stats.TotalUpdates)
	fmt.Printf("Successful:         %d\n", stats.SuccessfulUpdates)
	fmt.Printf("Failed:             %d\n", stats.FailedUpdates)
	fmt.Printf("Last update:        %s\n", formatTime(stats.LastUpdateDate))
	fmt.Printf("Security level:     %s\n", stats.SecurityLevel)
	return 0, nil
}
