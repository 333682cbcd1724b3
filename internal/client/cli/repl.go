package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// executor runs one command line. The real App satisfies it; tests can
// provide a lightweight stub.
type executor interface {
	Execute(ctx context.Context, cmd string, args []string) error
}

const helpText = `Available commands:
  register          register this installation (done automatically on first use)
  status            show tier, locked tier and progress
  tier              show the current tier
  heartbeat         record today's activity
  profile           mark the profile as complete
  link [credential] link an account; prompts when the credential is omitted
  refer <code>      attribute a referral code to this user
  id                show the installation id
  forget            wipe local data; the next command registers anew
  exit | quit       leave the program`

// runREPL reads command lines from scanner and dispatches them to a until
// EOF or "exit". Command errors are reported and the loop continues.
func runREPL(ctx context.Context, a executor, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("tg %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch cmd := parts[0]; cmd {
		case "help":
			printlnFn(helpText)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			if err := a.Execute(ctx, cmd, parts[1:]); err != nil {
				printlnFn("Error:", err)
			}
		}

		if ctx.Err() != nil {
			return
		}
	}
}
