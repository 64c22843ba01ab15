// Command sentra is the CLI front end: no arguments starts the REPL,
// one file argument compiles and runs it, mapping the result to the
// process exit code the shell expects (spec §4.9).
package main

import (
	"flag"
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"

	"sentra/internal/repl"
	"sentra/internal/vm"
)

const (
	exitOK           = 0
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

// version is the CLI's own release string, printed by -version. It is
// not tied to a running VM, so it carries no session UUID or heap stats —
// those belong to the REPL's :stats command instead.
const version = "0.1"

func main() {
	gcLog := flag.Bool("gc-log", false, "log a summary after every garbage collection")
	showVersion := flag.Bool("version", false, "print the sentra version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sentra %s\n", version)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		repl.Start()
		return
	}

	os.Exit(runFile(args[0], *gcLog))
}

func runFile(path string, gcLog bool) int {
	source, err := os.ReadFile(path)
	if err != nil {
		wrapped := pkgerrors.Wrapf(err, "reading %s", path)
		fmt.Fprintln(os.Stderr, wrapped)
		return exitIOError
	}

	machine := vm.New()
	if gcLog {
		machine.EnableGCLog()
	}

	switch machine.Interpret(string(source)) {
	case vm.InterpretCompileError:
		return exitCompileError
	case vm.InterpretRuntimeError:
		return exitRuntimeError
	default:
		return exitOK
	}
}
