package logging

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu           sync.RWMutex
	out          = log.New(os.Stderr, "", log.LstdFlags)
	debugEnabled = os.Getenv("DEBUG") == "true"
)

// SetOutput redirects log output. Defaults to stderr. Useful for testing and
// for keeping diagnostics off the terminal while the TUI is active.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = log.New(w, "", log.LstdFlags)
}

// Info logs an informational message (always shown).
func Info(subsystem, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	out.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
}

// Warn logs a recoverable failure.
func Warn(subsystem, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	out.Printf("[%s] warn: "+format, append([]any{subsystem}, args...)...)
}

// Debug logs a debug message (only shown if DEBUG=true).
func Debug(subsystem, format string, args ...any) {
	if !debugEnabled {
		return
	}
	mu.RLock()
	defer mu.RUnlock()
	out.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
}
