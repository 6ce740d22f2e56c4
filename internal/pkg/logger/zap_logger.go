package logger

import (
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type ILogger interface {
	Debug(module, message string, details map[string]interface{})
	Info(module, message string, details map[string]interface{})
	Warn(module, message string, details map[string]interface{})
	Error(module, message string, details map[string]interface{})
	Sync() error
}

// ErrorForwarder receives every ERROR entry after it has been written.
type ErrorForwarder func(module, message string)

type ZapLogger struct {
	logger  *zap.Logger
	forward atomic.Pointer[ErrorForwarder]
}

type Options struct {
	FilePath     string
	ConsoleLevel string
	FileLevel    string
	Production   bool
}

func NewZapLogger(opts Options) *ZapLogger {
	// 1. Configure Rotation (Lumberjack)
	rotator := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    10,   // Megabytes
		MaxBackups: 5,    // Files
		MaxAge:     30,   // Days
		Compress:   true, // gzip
	}

	// 2. Configure Encoder (JSON)
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)

	fileCore := zapcore.NewCore(
		jsonEncoder,
		zapcore.AddSync(rotator),
		ParseLevel(opts.FileLevel, zap.DebugLevel),
	)

	var consoleEncoder zapcore.Encoder
	if opts.Production {
		consoleEncoder = jsonEncoder
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	consoleCore := zapcore.NewCore(
		consoleEncoder,
		zapcore.Lock(os.Stdout),
		ParseLevel(opts.ConsoleLevel, zap.InfoLevel),
	)

	core := zapcore.NewTee(fileCore, consoleCore)

	return &ZapLogger{
		logger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)), // Skip 1 to point to caller of wrapper
	}
}

// NewNopLogger discards everything. Used by tests and tools.
func NewNopLogger() *ZapLogger {
	return &ZapLogger{logger: zap.NewNop()}
}

// ParseLevel understands zap level names as well as the Python-style
// WARNING/CRITICAL names used by older deployments.
func ParseLevel(value string, fallback zapcore.Level) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "":
		return fallback
	case "WARNING":
		return zap.WarnLevel
	case "CRITICAL":
		return zap.ErrorLevel
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(value))
	if err != nil {
		return fallback
	}
	return lvl
}

// SetErrorForwarder installs fn to receive ERROR entries, e.g. to page the owner chat.
// fn must not log at ERROR itself.
func (l *ZapLogger) SetErrorForwarder(fn ErrorForwarder) {
	if fn == nil {
		l.forward.Store(nil)
		return
	}
	l.forward.Store(&fn)
}

func (l *ZapLogger) Debug(module, message string, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	l.logger.Debug(message, zap.String("module", module), zap.Any("details", details))
}

func (l *ZapLogger) Info(module, message string, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	l.logger.Info(message, zap.String("module", module), zap.Any("details", details))
}

func (l *ZapLogger) Warn(module, message string, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	l.logger.Warn(message, zap.String("module", module), zap.Any("details", details))
}

func (l *ZapLogger) Error(module, message string, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	if err, ok := details["error"]; ok {
		l.logger.Error(message, zap.String("module", module), zap.Any("details", details), zap.Any("error_ref", err))
	} else {
		l.logger.Error(message, zap.String("module", module), zap.Any("details", details))
	}
	if fn := l.forward.Load(); fn != nil {
		(*fn)(module, message)
	}
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}
