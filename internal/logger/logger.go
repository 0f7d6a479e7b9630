package logger

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every log entry
const ServiceName = "fotoljay"

// New builds the process logger. Production writes sampled JSON lines, other
// environments write colored console output at debug. A non-empty level
// overrides the environment default.
func New(env, level string) (*zap.Logger, error) {
	production := env == "production"

	threshold := zapcore.DebugLevel
	if production {
		threshold = zapcore.InfoLevel
	}
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		threshold = parsed
	}

	var encoder zapcore.Encoder
	if production {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.MessageKey = "message"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(threshold))
	if production {
		core = zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
	}

	return zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
		zap.Fields(zap.String("service", ServiceName), zap.String("env", env)),
	), nil
}

// CaptureStdLog sends the standard library logger through log, which is
// where the storage and migration libraries write. Call the returned func to
// restore it.
func CaptureStdLog(log *zap.Logger) func() {
	return zap.RedirectStdLog(log.Named("stdlog"))
}
