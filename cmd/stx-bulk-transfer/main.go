// Command stx-bulk-transfer builds, signs and optionally broadcasts bulk STX
// transfers.
//
// Usage:
//
//	stx-bulk-transfer send-many ADDRESS,AMOUNT... -k KEY [-n testnet] [-b]
//	stx-bulk-transfer send-many-memo ADDRESS,AMOUNT,MEMO... -k KEY
//	stx-bulk-transfer send-many-memo-safe ADDRESS,AMOUNT[,MEMO]... -k KEY
//	stx-bulk-transfer deploy-contract send-many|send-many-memo|memo-expected -k KEY
//	stx-bulk-transfer set-memo-expected -k KEY
//	stx-bulk-transfer validate-address ADDRESS [-n mainnet] [-v]
//
// Every flag bound to configuration can also be set through the environment
// with the STX_BULK_ prefix, e.g. STX_BULK_PRIVATE_KEY. A .env file in the
// working directory is loaded first.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	if err := loadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// loadDotEnv loads .env, or the given files, into the environment. A missing
// file is fine; a malformed one is an error.
func loadDotEnv(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}

// exitError ends the command with a specific exit code. A nil err means the
// output has already been written.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }
