package logger

import (
	"log"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestProperty_LevelThresholdIsRespected(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("entries below the configured level are disabled", prop.ForAll(
		func(env string, configured string, requested string) bool {
			logger, err := New(env, configured)
			if err != nil {
				t.Logf("FAIL: New(%s, %s): %v", env, configured, err)
				return false
			}
			defer logger.Sync()

			threshold, _ := zapcore.ParseLevel(configured)
			level, _ := zapcore.ParseLevel(requested)

			return logger.Core().Enabled(level) == (level >= threshold)
		},
		gen.OneConstOf("development", "production"),
		gen.OneConstOf("debug", "info", "warn", "error"),
		gen.OneConstOf("debug", "info", "warn", "error"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("development", "loud"); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestDefaultLevels(t *testing.T) {
	dev, err := New("development", "")
	if err != nil {
		t.Fatalf("Failed to create development logger: %v", err)
	}
	if !dev.Core().Enabled(zapcore.DebugLevel) {
		t.Error("development logger should enable debug")
	}

	prod, err := New("production", "")
	if err != nil {
		t.Fatalf("Failed to create production logger: %v", err)
	}
	if prod.Core().Enabled(zapcore.DebugLevel) {
		t.Error("production logger should not enable debug")
	}
}

func TestCaptureStdLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := CaptureStdLog(zap.New(core))

	log.Print("goose: no migrations to run")
	restore()
	log.Print("after restore")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 captured entry, got %d", len(entries))
	}
	if entries[0].Message != "goose: no migrations to run" || entries[0].LoggerName != "stdlog" {
		t.Errorf("unexpected entry %+v", entries[0])
	}
}
