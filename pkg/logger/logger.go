package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger
var sugar *zap.SugaredLogger

// New builds a logger without touching the global one.
// Environment can be "dev", "uat", or "prod".
func New(service, env, level string) (*zap.Logger, error) {
	var cfg zap.Config

	if env == "dev" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	// Level override
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", service)), nil
}

// Init initializes the global logger.
func Init(service, env, level string) {
	logger, err := New(service, env, level)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	log = logger
	sugar = logger.Sugar()

	sugar.Infow("logger initialized",
		"env", env,
		"level", level,
	)
}

// L returns the base structured Zap logger (for performance-sensitive paths).
func L() *zap.Logger {
	if log == nil {
		Init("unknown", "dev", "info")
	}
	return log
}

// S returns the Sugared logger (for convenience).
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init("unknown", "dev", "info")
	}
	return sugar
}

// Sync flushes any buffered logs (defer this in main()).
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
