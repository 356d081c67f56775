// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logutil provides the small leveled logger the heap's collector
// uses to report diagnostics, in the spirit of the plain
// log.Fatalf/fmt.Fprintf diagnostics scattered through the teacher's cmd and
// ogle demo programs — just collected behind one switch so the CLI's
// --gctrace flag can turn collector chatter on and off.
package logutil

import (
	"fmt"
	"io"
	"os"
)

// A Logger writes leveled diagnostics to an underlying writer.
type Logger struct {
	out   io.Writer
	debug bool
}

// New returns a Logger that writes to w. If debug is false, Debugf calls are
// discarded.
func New(w io.Writer, debug bool) *Logger {
	return &Logger{out: w, debug: debug}
}

// Default is a Logger writing to stderr with debug logging disabled. Package
// heap does not use it: NewHeap builds its own stderr Logger when the caller
// does not supply one.
var Default = New(os.Stderr, false)

// SetDebug toggles debug-level logging.
func (l *Logger) SetDebug(v bool) {
	l.debug = v
}

// Debugf logs a debug-level message if debug logging is enabled.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	fmt.Fprintf(l.out, "debug: "+format+"\n", args...)
}

// Errorf logs an error-level message.
func (l *Logger) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(l.out, "error: "+format+"\n", args...)
}
