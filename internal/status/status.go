// Package status renders the node's link condition to the terminal, the
// software stand-in for the rig's RGB status LED: yellow while searching,
// green when connected, red for the one unrecoverable condition (local
// stack init failure).
package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/Cfabcher22/forcelink/internal/link"
)

var (
	searchingColor = color.New(color.FgYellow)
	connectedColor = color.New(color.FgGreen)
	fatalColor     = color.New(color.FgRed, color.Bold)
)

// Indicator prints one line per observed link state change. Safe for use as
// an observer on multiple links at once.
type Indicator struct {
	mu  sync.Mutex
	out io.Writer
}

// NewIndicator writes state lines to out.
func NewIndicator(out io.Writer) *Indicator {
	return &Indicator{out: out}
}

// Observer returns a link.Observer that reports transitions under the given
// label ("upstream", "downstream").
func (ind *Indicator) Observer(label string) link.Observer {
	return func(_, to link.State) {
		ind.mu.Lock()
		defer ind.mu.Unlock()

		switch to {
		case link.StateReady:
			_, _ = connectedColor.Fprintf(ind.out, "[%s] connected\n", label)
		case link.StateDiscovering, link.StateNegotiating:
			_, _ = searchingColor.Fprintf(ind.out, "[%s] searching\n", label)
		case link.StateIdle:
			_, _ = fmt.Fprintf(ind.out, "[%s] idle\n", label)
		}
	}
}

// Fatal reports the terminal failure state. The node is expected to exit
// after calling this; there is no recovery once the local stack is down.
func (ind *Indicator) Fatal(reason error) {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	_, _ = fatalColor.Fprintf(ind.out, "FATAL: %v\n", reason)
}
