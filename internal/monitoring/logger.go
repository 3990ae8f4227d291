package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// Tracef carries per-frame detail (scheduler decisions, metric readings). It is
// muted by default so normal runs stay quiet; EnableTrace routes it to Logf.
var Tracef func(format string, v ...interface{}) = func(string, ...interface{}) {}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// EnableTrace turns per-frame trace logging on or off.
func EnableTrace(on bool) {
	if on {
		Tracef = func(format string, v ...interface{}) { Logf(format, v...) }
		return
	}
	Tracef = func(string, ...interface{}) {}
}
