// Command duressd is the main entry point for the duress-PIN
// authentication service. It dispatches to the server, seed, status,
// and verify-ledger subcommands.
package main

import (
	"fmt"
	"os"

	"duressauth/internal/cmd/seed"
	"duressauth/internal/cmd/server"
	"duressauth/internal/cmd/status"
	"duressauth/internal/cmd/verifyledger"
	"duressauth/internal/version"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// run parses argv and invokes the matching subcommand handler.
func run(argv []string) error {
	if len(argv) < 2 {
		usage()
		return fmt.Errorf("missing subcommand")
	}

	switch argv[1] {
	case "server":
		return server.Run(argv[2:])
	case "seed":
		return seed.Run(argv[2:])
	case "status":
		return status.Run(argv[2:])
	case "verify-ledger":
		return verifyledger.Run(argv[2:])
	case "version":
		fmt.Printf("duressd %s\n", version.Version)
		return nil
	case "-h", "--help", "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown subcommand %q", argv[1])
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: duressd <subcommand> [flags]

subcommands:
  server         run the authentication service
  seed           provision an account
  status         show sessions and incidents from a running server
  verify-ledger  check the audit ledger hash chain
  version        print version`)
}
