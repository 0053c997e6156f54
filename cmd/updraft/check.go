package main

import (
	"context"
	"fmt"
	"time"

	"github.com/updraft-sys/updraft/internal/platform"
	"github.com/updraft-sys/updraft/internal/transport"
)

// runCheck asks the update server whether anything newer is available.
// Exit code 0 means an update was found, 2 means up to date.
func runCheck(args []string) (int, error) {
	var server string
	var rest []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--server" {
			if i+1 >= len(args) {
				return 1, fmt.Errorf("--server requires a value")
			}
			server = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	if server == "" {
		return 1, fmt.Errorf("check requires --server <url>")
	}

	opts, _, err := parseSharedFlags(rest)
	if err != nil {
		return 1, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := buildApp(ctx, opts)
	if err != nil {
		return 1, err
	}

	current := ""
	if marker, err := a.orch.CurrentUpdateInfo(); err == nil && marker != nil {
		current = marker.Version
	}

	client := transport.NewCheckClient(server, a.trust)
	d, err := client.Check(ctx, transport.CheckRequest{
		CurrentVersion:      current,
		Platform:            a.platform.ID(),
		Fingerprint:         platform.Fingerprint(a.platform),
		Timestamp:           time.Now().UnixMilli(),
		SupportedAlgorithms: transport.SupportedAlgorithms(),
	})
	if err != nil {
		return 1, fmt.Errorf("check for update: %w", err)
	}
	if d == nil {
		fmt.Println("Up to date.")
		return 2, nil
	}

	fmt.Printf("Update available: %s\n", d.Version)
	fmt.Printf("  URL:       %s\n", d.URL)
	fmt.Printf("  Size:      %d bytes\n", d.Size)
	fmt.Printf("  Mandatory: %v\n", d.Mandatory)
	if d.ReleaseNotes != "" {
		fmt.Printf("  Notes:     %s\n", d.ReleaseNotes)
	}
	return 0, nil
}
