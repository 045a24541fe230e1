package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapConfig describes the zap backend used by the launcher binaries
type ZapConfig struct {
	Level  string `mapstructure:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // "json", "console"
	Output string `mapstructure:"output"` // "stdout", "stderr" or a file path

	// Rotation settings, only used for file output
	MaxSizeMB  int `mapstructure:"max_size_mb"`
	MaxBackups int `mapstructure:"max_backups"`
	MaxAgeDays int `mapstructure:"max_age_days"`

	Caller bool `mapstructure:"caller"`
}

// ZapBackend owns a zap logger and exposes it through LogFuncs
type ZapBackend struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

// NewZapBackend creates a zap logger from configuration
func NewZapBackend(config ZapConfig) *ZapBackend {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var writeSyncer zapcore.WriteSyncer
	switch config.Output {
	case "stdout", "":
		writeSyncer = zapcore.Lock(zapcore.AddSync(os.Stdout))
	case "stderr":
		writeSyncer = zapcore.Lock(zapcore.AddSync(os.Stderr))
	default:
		writeSyncer = zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.Output,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
		})
	}

	opts := []zap.Option{}
	if config.Caller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(2))
	}

	logger := zap.New(zapcore.NewCore(encoder, writeSyncer, level), opts...)

	return &ZapBackend{
		logger: logger,
		sugar:  logger.Sugar(),
	}
}

// Funcs returns the backend as LogFuncs for NewLogger
func (z *ZapBackend) Funcs() LogFuncs {
	return LogFuncs{
		Debugf: z.sugar.Debugf,
		Infof:  z.sugar.Infof,
		Warnf:  z.sugar.Warnf,
		Errorf: z.sugar.Errorf,
	}
}

// Named returns a prefixed Logger writing to this backend
func (z *ZapBackend) Named(module string) Logger {
	return NewLogger(ModulePrefix(module), z.Funcs())
}

// Sync flushes buffered entries
func (z *ZapBackend) Sync() error {
	return z.logger.Sync()
}
