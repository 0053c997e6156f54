package main

import (
	"fmt"
	"os"
)

// Version will be set at build time via -ldflags
var Version = "0.1.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version":
			fmt.Printf("updraft %s\n", Version)
			return
		case "check":
			exit(runCheck(os.Args[2:]))
			return
		case "verify":
			exit(runVerify(os.Args[2:]))
			return
		case "apply":
			exit(runApply(os.Args[2:]))
			return
		case "info":
			exit(runInfo(os.Args[2:]))
			return
		case "history":
			exit(runHistory(os.Args[2:]))
			return
		case "logs":
			exit(runLogs(os.Args[2:]))
			return
		case "stats":
			exit(runStats(os.Args[2:]))
			return
		}
	}

	fmt.Println("updraft - verified software updates")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  updraft --version                Show version information")
	fmt.Println("  updraft check --server <url>     Ask the update server for an update")
	fmt.Println("  updraft verify <descriptor>      Verify an update descriptor")
	fmt.Println("  updraft apply <descriptor>       Verify, download and install an update")
	fmt.Println("  updraft info                     Show the installed version")
	fmt.Println("  updraft history                  Show past update attempts")
	fmt.Println("  updraft logs [--clear]           Show or clear the security audit log")
	fmt.Println("  updraft stats                    Show update statistics")
	fmt.Println()
	fmt.Println("Shared flags:")
	fmt.Println("  --config <path>       Trust configuration (default <dir>/config.yaml)")
	fmt.Println("  --dir <path>          State directory (default ~/.local/share/updraft)")
	fmt.Println("  --target <path>       Install target (default this executable)")
	fmt.Println("  --app-version <v>     Running application version")
	fmt.Println("  --keyring <path>      OpenPGP keyring for detached artifact signatures")
}

func exit(code int, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}
