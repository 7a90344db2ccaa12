package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/muesli/termenv"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (style loaded, export written)
	LevelLive    = 2 // Live info (requests, color and image changes)
	LevelVerbose = 3 // Verbose (framing details, bounds, decode steps)
	LevelTrace   = 4 // Trace (asset reads, accessor decoding)
)

var (
	mu     sync.RWMutex
	level  int
	logger *log.Logger
	out    *termenv.Output
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (style loaded, export written)
// 2 = live info (requests, color and image changes)
// 3 = verbose (framing, bounds, decode steps)
// 4 = trace (asset reads, very low level)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	if level > LevelOff {
		setOutputLocked(os.Stdout)
	} else {
		logger = nil
		out = nil
	}
}

// SetOutput redirects debug output to w. Level tags are only colored when w
// is a terminal.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if level > LevelOff {
		setOutputLocked(w)
	}
}

func setOutputLocked(w io.Writer) {
	out = termenv.NewOutput(w)
	logger = log.New(w, "[FrameGo] ", log.LstdFlags|log.Lmicroseconds)
}

// Level returns the current debug level.
func Level() int {
	mu.RLock()
	defer mu.RUnlock()
	return level
}

// IsEnabled returns true if debug level is >= the requested level.
func IsEnabled(minLevel int) bool {
	return Level() >= minLevel
}

// tag colors a level tag for terminals; "1" red .. "6" cyan.
func tag(name, color string) string {
	if out == nil {
		return "[" + name + "]"
	}
	return out.String("[" + name + "]").Foreground(out.Color(color)).String()
}

func printf(minLevel int, tagName, color, format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if level >= minLevel && logger != nil {
		logger.Printf(tag(tagName, color)+" "+format, args...)
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	printf(LevelInfo, "INFO", "6", format, args...)
}

// Summary prints an important summary (level 1).
func Summary(title string) {
	mu.RLock()
	defer mu.RUnlock()
	if level >= LevelInfo && logger != nil {
		logger.Printf("═══════════════════════════════════════")
		logger.Printf("  %s", title)
		logger.Printf("═══════════════════════════════════════")
	}
}

// Loaded prints a completed model load (level 1).
func Loaded(style, file string, request uint64) {
	printf(LevelInfo, "INFO", "6", "Style %q loaded from %s (request %d)", style, file, request)
}

// Exported prints a written export (level 1).
func Exported(format string, size int) {
	printf(LevelInfo, "INFO", "6", "Exported %s: %d bytes", format, size)
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	printf(LevelLive, "LIVE", "2", format, args...)
}

// Request prints an incoming style request (level 2).
func Request(style string, request uint64) {
	printf(LevelLive, "LIVE", "2", "Style request %d: %s", request, style)
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	printf(LevelVerbose, "VERBOSE", "4", format, args...)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	printf(LevelVerbose, "VERBOSE", "4", "%s: %+v", name, v)
}

// Section prints a section separator (level 3).
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if level >= LevelVerbose && logger != nil {
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		logger.Printf("  %s", name)
		logger.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	}
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	printf(LevelVerbose, "VERBOSE", "4", "Step %d: %s", num, description)
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	printf(LevelInfo, "INFO", "6", "  %s = %v", name, value)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace).
func Trace(format string, args ...interface{}) {
	printf(LevelTrace, "TRACE", "5", format, args...)
}

// Asset prints an asset read (level 4).
func Asset(operation, name string, size int) {
	printf(LevelTrace, "ASSET", "5", "%s %s (%d bytes)", operation, name, size)
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	printf(LevelInfo, "ERROR", "1", "%v", err)
}

// Fmt is a helper function that returns a formatted string
// only if debug is enabled (to avoid unnecessary allocations).
func Fmt(format string, args ...interface{}) string {
	if Level() > 0 {
		return fmt.Sprintf(format, args...)
	}
	return ""
}
