package main

import (
	"context"
	"fmt"
	"os"

	"github.com/updraft-sys/updraft/internal/descriptor"
)

// runVerify checks a descriptor file against the trust configuration
// without downloading anything. Exit code 0 means it passed.
func runVerify(args []string) (int, error) {
	opts, rest, err := parseSharedFlags(args)
	if err != nil {
		return 1, err
	}
	if len(rest) != 1 {
		return 1, fmt.Errorf("usage: updraft verify [flags] <descriptor.json>")
	}

	data, err := os.ReadFile(rest[0])
	if err != nil {
		return 1, fmt.Errorf("read descriptor: %w", err)
	}
	d, err := descriptor.Parse(data)
	if err != nil {
		return 1, err
	}

	ctx := context.Background()
	a, err := buildApp(ctx, opts)
	if err != nil {
		return 1, err
	}

	result := a.orch.Verify(ctx, d)
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if !result.Valid {
		for _, e := range result.Errors {
			fmt.Printf("error: %s\n", e)
		}
		return 1, fmt.Errorf("descriptor for %s failed verification", d.Version)
	}

	fmt.Printf("Descriptor for %s verified.\n", d.Version)
	return 0, nil
}
