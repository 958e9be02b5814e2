// Package testutils holds assertion helpers shared by the package tests.
package testutils

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT matches the methods we need from testing.T.
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
}

// TextOptions controls normalization before line-oriented comparison.
// Output like CSV rows and status lines compares trimmed by default; exact
// byte comparison belongs to plain equality assertions.
type TextOptions struct {
	TrimSpace                bool `default:"true"`
	IgnoreTrailingWhitespace bool `default:"true"`
	IgnoreEmptyLines         bool `default:"false"`
	Colors                   bool `default:"false"`
}

// TextOption mutates TextOptions.
type TextOption func(*TextOptions)

// WithExactWhitespace disables all whitespace normalization.
func WithExactWhitespace() TextOption {
	return func(o *TextOptions) {
		o.TrimSpace = false
		o.IgnoreTrailingWhitespace = false
	}
}

// WithIgnoreEmptyLines drops blank lines before comparing.
func WithIgnoreEmptyLines() TextOption {
	return func(o *TextOptions) { o.IgnoreEmptyLines = true }
}

// WithColors colorizes the unified diff on failure.
func WithColors() TextOption {
	return func(o *TextOptions) { o.Colors = true }
}

// AssertText compares actual against expected line by line and reports a
// unified diff on mismatch.
func AssertText(t TestingT, actual, expected string, opts ...TextOption) bool {
	t.Helper()

	var o TextOptions
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}

	na, ne := normalize(actual, o), normalize(expected, o)
	if na == ne {
		return true
	}

	edits := myers.ComputeEdits("", ne, na)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", ne, edits))
	t.Errorf("text mismatch:\n%s", colorize(unified, o))
	return false
}

func normalize(text string, o TextOptions) string {
	if o.TrimSpace {
		text = strings.TrimSpace(text)
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if o.IgnoreEmptyLines && strings.TrimSpace(line) == "" {
			continue
		}
		if o.IgnoreTrailingWhitespace {
			line = strings.TrimRight(line, " \t")
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func colorize(diff string, o TextOptions) string {
	if !o.Colors {
		return diff
	}

	red := color.New(color.FgRed)
	red.EnableColor()
	green := color.New(color.FgGreen)
	green.EnableColor()
	cyan := color.New(color.FgCyan)
	cyan.EnableColor()

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(line)
		}
	}
	return strings.Join(lines, "\n")
}
