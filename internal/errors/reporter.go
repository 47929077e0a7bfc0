package errors

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Reporter formats IRGenError diagnostics with Rust-style caret context
// pointing at the offending source line, and UserDebuggerError as a
// single colored line without source context.
type Reporter struct {
	filename string
	lines    []string
	noColor  bool
}

func NewReporter(filename, source string) *Reporter {
	return &Reporter{filename: filename, lines: strings.Split(source, "\n")}
}

func (r *Reporter) SetNoColor(v bool) { r.noColor = v }

// FormatIRGenError renders a parse/lowering error with a caret under
// the offending column.
func (r *Reporter) FormatIRGenError(err *IRGenError) string {
	bold := r.paint(color.Bold)
	dim := r.paint(color.Faint)
	red := r.paint(color.FgRed)

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", red("error"), err.Message)
	fmt.Fprintf(&b, "  %s %s:%d:%d\n", dim("-->"), r.filename, err.Position.Line, err.Position.Column)

	line := err.Position.Line
	if line >= 1 && line <= len(r.lines) {
		content := r.lines[line-1]
		fmt.Fprintf(&b, "%s %s %s\n", bold(fmt.Sprintf("%4d", line)), dim("|"), content)
		col := err.Position.Column
		if col < 1 {
			col = 1
		}
		marker := strings.Repeat(" ", col-1) + red("^")
		fmt.Fprintf(&b, "     %s %s\n", dim("|"), marker)
	}
	return b.String()
}

// FormatUserError renders a recoverable debugger-command error for
// the console.
func (r *Reporter) FormatUserError(err *UserDebuggerError) string {
	yellow := r.paint(color.FgYellow)
	return fmt.Sprintf("%s: %s\n", yellow("error"), err.Error())
}

func (r *Reporter) paint(attr color.Attribute) func(string) string {
	if r.noColor {
		return func(s string) string { return s }
	}
	sprint := color.New(attr).SprintFunc()
	return func(s string) string { return sprint(s) }
}
