// Package errors models the three disjoint error outcomes a compile-or-run
// cycle can produce (spec §4.7): a compile error (one or more syntax
// diagnostics, reported directly by the compiler as it parses), a
// runtime error (an unwound call stack with a trace), or a host error
// (I/O failure reading a script, wrapped with github.com/pkg/errors so
// the underlying os error is never swallowed).
package errors

import (
	"fmt"
	"strings"
)

// Kind distinguishes which of the three outcome classes an error
// belongs to.
type Kind string

const (
	CompileErrorKind Kind = "CompileError"
	RuntimeErrorKind Kind = "RuntimeError"
	HostErrorKind     Kind = "HostError"
)

// StackFrame is one entry of a runtime error's call-stack trace,
// innermost frame first, matching the "[line N] in <name>" format the
// VM prints per spec §4.7.
type StackFrame struct {
	Function string
	Line     int
}

// SentraError carries a diagnostic message, the source line it
// happened at (0 for errors with no single source line, such as a
// compile error already reported token-by-token), and — for runtime
// errors — the unwound call stack.
type SentraError struct {
	Kind    Kind
	Message string
	Line    int
	Stack   []StackFrame
}

func (e *SentraError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, frame := range e.Stack {
		sb.WriteByte('\n')
		if frame.Function == "script" {
			sb.WriteString(fmt.Sprintf("[line %d] in script", frame.Line))
		} else {
			sb.WriteString(fmt.Sprintf("[line %d] in %s()", frame.Line, frame.Function))
		}
	}
	return sb.String()
}

// NewRuntimeError builds a runtime error for the line the failing
// instruction came from; WithStack attaches the unwound frame trace.
func NewRuntimeError(message string, line int) *SentraError {
	return &SentraError{Kind: RuntimeErrorKind, Message: message, Line: line}
}

// NewHostError wraps a host-level failure (file not found, permission
// denied, out of memory) that happens outside the compile/run pipeline
// entirely.
func NewHostError(message string) *SentraError {
	return &SentraError{Kind: HostErrorKind, Message: message}
}

func (e *SentraError) WithStack(stack []StackFrame) *SentraError {
	e.Stack = stack
	return e
}
