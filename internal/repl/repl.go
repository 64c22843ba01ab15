// Package repl implements the interactive prompt: one VM, reused across
// every line so globals, the intern table, and the heap persist for the
// life of the session, matching how a real script's top-level state
// would behave rather than resetting per line.
package repl

import (
	"bufio"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"sentra/internal/vm"
)

// Start runs the prompt loop until stdin closes or the user types exit.
func Start() {
	machine := vm.New()

	prompt := "> "
	if isatty.IsTerminal(os.Stdout.Fd()) {
		prompt = "\033[36m>\033[0m "
	}

	fmt.Printf("sentra %s — session %s\n", "0.1", machine.SessionID())
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := scanner.Text()
		switch line {
		case "exit", "quit":
			return
		case "":
			continue
		case ":stats":
			printStats(machine)
			continue
		}

		machine.Interpret(line)
	}
}

// printStats answers the REPL's `:stats` command: session identity (for
// correlating a pasted crash trace with the REPL run that produced it)
// plus a humanized view of the heap's collector bookkeeping.
func printStats(machine *vm.VM) {
	s := machine.Stats()
	fmt.Printf("session %s, up %s\n", s.SessionID, s.Uptime.Round(1e6))
	fmt.Printf("heap %s, next gc at %s\n",
		humanize.Bytes(uint64(s.BytesAllocated)), humanize.Bytes(uint64(s.NextGC)))
	fmt.Printf("frames %d, stack depth %d\n", s.FrameCount, s.StackDepth)
}
