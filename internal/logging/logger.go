// Package logging provides categorized file-based logging for agentvault.
// Each category writes to its own dated file under the configured log
// directory. Logging is controlled by a debug-mode master toggle - when
// off, every logger is a no-op and no files are created.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup/initialization
	CategorySession   Category = "session"   // Facade session operations
	CategoryStore     Category = "store"     // Relational adapter
	CategoryDocument  Category = "document"  // Document adapter
	CategoryVector    Category = "vector"    // Vector adapter
	CategoryTxn       Category = "txn"       // Transaction coordinator
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategoryPool      Category = "pool"      // Worker pools
)

// Options configures the logging subsystem. The caller (usually config
// loading) supplies them so this package stays free of config imports.
type Options struct {
	Dir        string          // Log directory; created on demand
	DebugMode  bool            // Master toggle - false means no logging at all
	Level      string          // debug, info, warn, error
	Categories map[string]bool // Per-category toggles; empty = all enabled
}

// Logger wraps a zap sugared logger for one category. A Logger with a nil
// core is a no-op.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	loggers = make(map[Category]*Logger)
	opts    Options
	ready   bool
	level   zapcore.Level
)

// Initialize sets up the logging directory and options. Should be called
// once at startup; calling Get before Initialize yields no-op loggers.
func Initialize(o Options) error {
	mu.Lock()
	defer mu.Unlock()

	opts = o
	loggers = make(map[Category]*Logger)

	switch o.Level {
	case "debug", "":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		return fmt.Errorf("unknown log level: %s", o.Level)
	}

	if !o.DebugMode {
		ready = true
		return nil // Silent no-op in production mode
	}
	if o.Dir == "" {
		return fmt.Errorf("log directory required when debug mode is on")
	}
	if err := os.MkdirAll(o.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	ready = true
	return nil
}

// IsCategoryEnabled reports whether a category emits logs under the
// current options.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabled(category)
}

func categoryEnabled(category Category) bool {
	if !ready || !opts.DebugMode {
		return false
	}
	if len(opts.Categories) == 0 {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}

// Get returns (or creates) the logger for the given category. Returns a
// no-op logger if logging is disabled or the category is off.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	enabled := categoryEnabled(category)
	mu.RUnlock()

	if !enabled {
		return &Logger{category: category}
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date-prefixed file name for easy rotation by external tooling.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(opts.Dir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(file), level)
	sugar := zap.New(core).Named(string(category)).Sugar()

	l := &Logger{category: category, sugar: sugar}
	loggers[category] = l
	return l
}

// Sync flushes buffered log entries for every open category logger.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	for _, l := range loggers {
		if l.sugar != nil {
			_ = l.sugar.Sync()
		}
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Debugf(format, args...)
	}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Infof(format, args...)
	}
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Warnf(format, args...)
	}
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar != nil {
		l.sugar.Errorf(format, args...)
	}
}

// =============================================================================
// CATEGORY CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// Session logs to the session category
func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }

// SessionDebug logs debug to the session category
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

// Store logs to the store category
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// Document logs to the document category
func Document(format string, args ...interface{}) { Get(CategoryDocument).Info(format, args...) }

// DocumentDebug logs debug to the document category
func DocumentDebug(format string, args ...interface{}) { Get(CategoryDocument).Debug(format, args...) }

// Vector logs to the vector category
func Vector(format string, args ...interface{}) { Get(CategoryVector).Info(format, args...) }

// VectorDebug logs debug to the vector category
func VectorDebug(format string, args ...interface{}) { Get(CategoryVector).Debug(format, args...) }

// Txn logs to the txn category
func Txn(format string, args ...interface{}) { Get(CategoryTxn).Info(format, args...) }

// TxnDebug logs debug to the txn category
func TxnDebug(format string, args ...interface{}) { Get(CategoryTxn).Debug(format, args...) }

// Embedding logs to the embedding category
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }

// EmbeddingDebug logs debug to the embedding category
func EmbeddingDebug(format string, args ...interface{}) { Get(CategoryEmbedding).Debug(format, args...) }

// Pool logs to the pool category
func Pool(format string, args ...interface{}) { Get(CategoryPool).Info(format, args...) }

// PoolDebug logs debug to the pool category
func PoolDebug(format string, args ...interface{}) { Get(CategoryPool).Debug(format, args...) }

// =============================================================================
// PERFORMANCE TIMERS
// =============================================================================

// Timer measures the duration of an operation.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
