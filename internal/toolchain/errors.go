package toolchain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// CompileError is returned when the source does not compile.
type CompileError struct {
	// Diagnostic is the one-line summary shown to the user.
	Diagnostic string
	Stderr     string
}

func (e *CompileError) Error() string {
	return "compilation error: " + e.Diagnostic
}

// RuntimeError is returned when the program exits non-zero or runs out of time.
type RuntimeError struct {
	Stderr   string
	ExitCode int
	TimedOut bool
	Timeout  time.Duration
}

func (e *RuntimeError) Error() string {
	return "runtime error: " + e.Message()
}

// Message is the text reported to the user for this failure.
func (e *RuntimeError) Message() string {
	switch {
	case e.TimedOut:
		return fmt.Sprintf("time limit exceeded (%s)", e.Timeout)
	case strings.TrimSpace(e.Stderr) != "":
		return e.Stderr
	default:
		return fmt.Sprintf("Process exited with code %d", e.ExitCode)
	}
}

const unknownDiagnostic = "Unknown compilation error"

var compilerLocation = regexp.MustCompile(`:(\d+)(?::(\d+))?: (?:fatal )?error: (.*)`)

// ParseDiagnostic turns compiler output into "Line L, Char C: message".
// Output without a location falls back to its first non-empty line.
func ParseDiagnostic(output string) string {
	if m := compilerLocation.FindStringSubmatch(output); m != nil {
		msg := strings.TrimSpace(m[3])
		if m[2] != "" {
			return fmt.Sprintf("Line %s, Char %s: %s", m[1], m[2], msg)
		}
		return fmt.Sprintf("Line %s: %s", m[1], msg)
	}

	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}

	return unknownDiagnostic
}
