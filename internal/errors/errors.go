// Package errors implements the three-tier error taxonomy of the
// debugger: ProgramBug (fatal, aborts the process), UserDebuggerError
// (recoverable, surfaced to the console), and IRGenError (recoverable
// at compile time, prevents the debugger from starting).
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Position is a 1-based source location, used by IRGenError and the
// diagnostic reporter.
type Position struct {
	Line   int
	Column int
}

// ProgramBug wraps a panic raised deep in the sample/exec layers with
// a stack trace, so the top-level recover in cmd/sl-debug can print a
// useful diagnostic before aborting. ProgramBug conditions can never
// arise from valid IR; they indicate an IRGen or verifier bug.
type ProgramBug struct {
	cause error
}

func NewProgramBug(format string, args ...interface{}) *ProgramBug {
	return &ProgramBug{cause: pkgerrors.New(fmt.Sprintf(format, args...))}
}

func WrapProgramBug(cause interface{}) *ProgramBug {
	if err, ok := cause.(error); ok {
		return &ProgramBug{cause: pkgerrors.WithStack(err)}
	}
	return &ProgramBug{cause: pkgerrors.New(fmt.Sprintf("%v", cause))}
}

func (e *ProgramBug) Error() string { return "program bug: " + e.cause.Error() }
func (e *ProgramBug) Unwrap() error { return e.cause }

// UserDebuggerErrorKind enumerates the recoverable debugger-command
// error conditions.
type UserDebuggerErrorKind int

const (
	MultipleBranches UserDebuggerErrorKind = iota
	AtBranchInstruction
	AlreadyTerminated
	EmptyStateStack
	NoLiveSamplesInBranch
	UnknownCommand
	BadArgument
)

func (k UserDebuggerErrorKind) String() string {
	switch k {
	case MultipleBranches:
		return "MultipleBranches"
	case AtBranchInstruction:
		return "AtBranchInstruction"
	case AlreadyTerminated:
		return "AlreadyTerminated"
	case EmptyStateStack:
		return "EmptyStateStack"
	case NoLiveSamplesInBranch:
		return "NoLiveSamplesInBranch"
	case UnknownCommand:
		return "UnknownCommand"
	case BadArgument:
		return "BadArgument"
	default:
		return "UnknownDebuggerError"
	}
}

// UserDebuggerError is returned to the console layer, which prints a
// human-readable message and re-prompts; it never aborts the process.
type UserDebuggerError struct {
	Kind   UserDebuggerErrorKind
	Detail string
}

func NewUserDebuggerError(kind UserDebuggerErrorKind, detail string) *UserDebuggerError {
	return &UserDebuggerError{Kind: kind, Detail: detail}
}

func (e *UserDebuggerError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// IRGenError is a compile-time error from the SL front end: parse
// failure, type mismatch, use-before-declaration, duplicate
// declaration, or a discrete-distribution table whose probabilities
// don't sum to 1. It prevents the debugger from ever starting.
type IRGenError struct {
	Message  string
	Position Position
}

func NewIRGenError(pos Position, format string, args ...interface{}) *IRGenError {
	return &IRGenError{Message: fmt.Sprintf(format, args...), Position: pos}
}

func (e *IRGenError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Position.Line, e.Position.Column, e.Message)
}
