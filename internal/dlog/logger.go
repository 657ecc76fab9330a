// Package dlog provides structured logging for the loader using zap.
package dlog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with loader-specific helpers.
type Logger struct {
	*zap.Logger
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Lifecycle logs an open/relocate/init/close lifecycle event for a library.
func (l *Logger) Lifecycle(stage, shortName string, fields ...zap.Field) {
	l.Info("lifecycle", append([]zap.Field{
		zap.String("stage", stage),
		zap.String("lib", shortName),
	}, fields...)...)
}

// Reloc logs a single relocation application at debug level.
func (l *Logger) Reloc(shortName string, offset uint64, relType uint32, symbol string) {
	l.Debug("reloc",
		zap.String("lib", shortName),
		zap.String("offset", Hex(offset)),
		zap.Uint32("type", relType),
		zap.String("sym", symbol),
	)
}

// Registry logs registry insert/remove events.
func (l *Logger) Registry(op, shortName string, global bool) {
	l.Debug("registry",
		zap.String("op", op),
		zap.String("lib", shortName),
		zap.Bool("global", global),
	)
}

// WithLib returns a logger with the library short-name field preset.
func (l *Logger) WithLib(shortName string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("lib", shortName))}
}

// Hex formats a uint64 as a hex string for logging.
func Hex(addr uint64) string {
	return "0x" + hexString(addr)
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Addr creates an address field.
func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

// Fn creates a function name field.
func Fn(name string) zap.Field {
	return zap.String("fn", name)
}
