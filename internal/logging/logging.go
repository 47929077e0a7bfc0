// Package logging centralizes the debugger's structured-logging
// bootstrap so only this file touches commonlog's configuration API
// directly.
package logging

import (
	"github.com/tliron/commonlog"

	// The simple backend registers itself as commonlog's default
	// logging implementation; importing it for side effects is the
	// idiom commonlog's own consumers use.
	_ "github.com/tliron/commonlog/simple"
)

var configured bool

// Configure sets up commonlog's default logger at the given verbosity
// (0 = quiet, higher = more verbose). It is safe to call more than
// once; only the first call takes effect.
func Configure(verbosity int) {
	if configured {
		return
	}
	configured = true
	commonlog.Configure(verbosity, nil)
}

// Logger is a named structured logger for one subsystem.
type Logger = commonlog.Logger

// Get returns the named logger, e.g. Get("executor") or
// Get("debugger.controller").
func Get(name string) Logger {
	return commonlog.GetLogger(name)
}
