package utils

// logger.go - structured logging setup.
//
// Built on zap. Wraps *zap.Logger in a thin Logger type carrying both the
// structured logger and a sugared view, plus a process-wide singleton used
// by the package-level Debug/Info/Warn/Error helpers so call sites that
// don't hold a *Logger reference (init-time code, background goroutines
// started before the rest of the process is wired up) can still log.

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls logger construction. Zero value is valid and produces
// a JSON-to-stderr, info-level logger.
type LogConfig struct {
	Level       string // debug, info, warn, error, fatal
	Format      string // json, text (text uses zap's console encoder)
	Output      string // file path; empty means stderr
	Development bool   // enables stack traces on warn+ and caller info
}

// Logger wraps zap.Logger with both structured and sugared access.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

// InitLogger builds a Logger from cfg, falling back to sane defaults for
// any zero-valued field. It never returns nil and never panics: an
// unopenable Output falls back to stderr.
func InitLogger(cfg LogConfig) *Logger {
	level := parseLevel(cfg.Level)

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	writer := zapcore.AddSync(os.Stderr)
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			writer = zapcore.AddSync(f)
		}
	}

	core := zapcore.NewCore(encoder, writer, level)

	opts := []zap.Option{zap.AddCallerSkip(1)}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddCaller(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		opts = append(opts, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug", "DEBUG":
		return zapcore.DebugLevel
	case "info", "INFO":
		return zapcore.InfoLevel
	case "warn", "WARN", "warning", "WARNING":
		return zapcore.WarnLevel
	case "error", "ERROR":
		return zapcore.ErrorLevel
	case "fatal", "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sugar returns the sugared logger for printf-style call sites.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// With returns a child Logger with the given fields attached to every
// subsequent entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	child := l.Logger.With(fields...)
	return &Logger{Logger: child, sugar: child.Sugar()}
}

// WithComponent tags log entries with the originating subsystem
// (subscription, feed, optionchain, execution, ...).
func (l *Logger) WithComponent(name string) *Logger {
	return l.With(Component(name))
}

// WithExchange tags log entries with the venue (NSE, BSE, MCX).
func (l *Logger) WithExchange(exchange string) *Logger {
	return l.With(Exchange(exchange))
}

// WithSymbol tags log entries with the instrument/underlying symbol.
func (l *Logger) WithSymbol(symbol string) *Logger {
	return l.With(Symbol(symbol))
}

// WithPairID tags log entries with a numeric correlation id (order id,
// subscription id, basket id — whatever the caller is tracking).
func (l *Logger) WithPairID(id int) *Logger {
	return l.With(PairID(id))
}

// ============================================================
// Global logger
// ============================================================

var (
	globalMu     sync.Mutex
	globalLogger *Logger
)

// GetGlobalLogger returns the process-wide logger, lazily initializing it
// with defaults on first use.
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// InitGlobalLogger builds a Logger from cfg and installs it as the global
// logger, returning it.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger installs l as the global logger.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// L is a short alias for GetGlobalLogger, convenient at call sites.
func L() *Logger {
	return GetGlobalLogger()
}

// ============================================================
// Package-level logging functions (operate on the global logger)
// ============================================================

func Debug(msg string, fields ...zap.Field) { GetGlobalLogger().Logger.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { GetGlobalLogger().Logger.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetGlobalLogger().Logger.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetGlobalLogger().Logger.Error(msg, fields...) }

func Debugf(template string, args ...interface{}) { GetGlobalLogger().sugar.Debugf(template, args...) }
func Infof(template string, args ...interface{})  { GetGlobalLogger().sugar.Infof(template, args...) }
func Warnf(template string, args ...interface{})  { GetGlobalLogger().sugar.Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { GetGlobalLogger().sugar.Errorf(template, args...) }

// ============================================================
// Domain field constructors
// ============================================================

func Exchange(v string) zap.Field  { return zap.String("exchange", v) }
func Symbol(v string) zap.Field    { return zap.String("symbol", v) }
func PairID(v int) zap.Field       { return zap.Int("pair_id", v) }
func OrderID(v string) zap.Field   { return zap.String("order_id", v) }
func Price(v float64) zap.Field    { return zap.Float64("price", v) }
func Volume(v float64) zap.Field   { return zap.Float64("volume", v) }
func Spread(v float64) zap.Field   { return zap.Float64("spread", v) }
func PNL(v float64) zap.Field      { return zap.Float64("pnl", v) }
func Side(v string) zap.Field      { return zap.String("side", v) }
func State(v string) zap.Field     { return zap.String("state", v) }
func Latency(v float64) zap.Field  { return zap.Float64("latency_ms", v) }
func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func UserID(v int) zap.Field       { return zap.Int("user_id", v) }
func Component(v string) zap.Field { return zap.String("component", v) }

// Token tags log entries with a subscription/feed instrument token.
func Token(v string) zap.Field { return zap.String("token", v) }

// Underlying tags log entries with an option-chain underlying.
func Underlying(v string) zap.Field { return zap.String("underlying", v) }

// Strike tags log entries with an option strike price.
func Strike(v float64) zap.Field { return zap.Float64("strike", v) }

// OrderStatus tags log entries with an order's lifecycle status.
func OrderStatus(v string) zap.Field { return zap.String("order_status", v) }

// ============================================================
// Re-exported zap field constructors, so call sites only import this
// package rather than reaching for go.uber.org/zap directly.
// ============================================================

func String(key, val string) zap.Field      { return zap.String(key, val) }
func Int(key string, val int) zap.Field     { return zap.Int(key, val) }
func Int64(key string, val int64) zap.Field { return zap.Int64(key, val) }
func Float64(key string, val float64) zap.Field {
	return zap.Float64(key, val)
}
func Bool(key string, val bool) zap.Field { return zap.Bool(key, val) }
func Err(err error) zap.Field             { return zap.Error(err) }
func Any(key string, val interface{}) zap.Field { return zap.Any(key, val) }

// fieldsToInterface flattens zap.Field values into alternating key/value
// pairs, used when bridging to sugared-logger call sites that want a
// variadic keysAndValues slice instead of typed Fields.
func fieldsToInterface(fields []zap.Field) []interface{} {
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)
		out = append(out, f.Key, enc.Fields[f.Key])
	}
	return out
}
