package pwmix

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/MixyLabs/pwmix/pkg/pwmix/util"
)

const (
	logDirectory = "logs"
	logFilename  = "pwmix-latest-run.log"

	// environment variable controlling log verbosity (debug/info/warn/error)
	envLogLevel = "PWMIX_LOG"

	buildTypeRelease = "release"
)

// NewLogger provides a logger instance for the whole program
func NewLogger(buildType string) (*zap.SugaredLogger, error) {
	var loggerConfig zap.Config

	if buildType == buildTypeRelease {
		if err := util.EnsureDirExists(logDirectory); err != nil {
			return nil, fmt.Errorf("ensure log directory exists: %w", err)
		}

		loggerConfig = zap.NewProductionConfig()
		loggerConfig.Encoding = "console"
		loggerConfig.OutputPaths = []string{"stderr", filepath.Join(logDirectory, logFilename)}
	} else {
		loggerConfig = zap.NewDevelopmentConfig()
	}

	// verbosity comes from the environment, defaulting to info
	if levelName := os.Getenv(envLogLevel); levelName != "" {
		level, err := zapcore.ParseLevel(levelName)
		if err != nil {
			return nil, fmt.Errorf("parse %s level %q: %w", envLogLevel, levelName, err)
		}

		loggerConfig.Level = zap.NewAtomicLevelAt(level)
	}

	// all logging in this project is with sugared loggers
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("create zap logger: %w", err)
	}

	return logger.Sugar(), nil
}
