package monitoring

import "log"

// #region logger

// Logf is the process-wide diagnostic logger used by the pipeline packages.
// Component code prefixes messages with a bracketed tag, e.g. "[ORCH] ...".
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger swaps the logger. A nil func mutes all output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Mute silences the logger and returns a func that restores the previous one.
func Mute() (restore func()) {
	prev := Logf
	SetLogger(nil)
	return func() { Logf = prev }
}

// #endregion logger
