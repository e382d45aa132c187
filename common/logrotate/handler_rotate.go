// Package logrotate writes log records to size-rotated files.
package logrotate

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type RotateConfig struct {
	LogDir     string `toml:",omitempty"`
	Filename   string `toml:",omitempty"`
	MaxAge     int    `toml:",omitempty"` // days
	MaxSize    int    `toml:",omitempty"` // MB
	MaxBackups int    `toml:",omitempty"`
}

var DefaultConfig = RotateConfig{
	LogDir:     "logs",
	Filename:   "gasfill.log",
	MaxSize:    100,
	MaxAge:     7,
	MaxBackups: 10,
}

// NewFileRotateHandler returns a handler writing to LogDir/Filename. The
// directory is created if needed.
func NewFileRotateHandler(config RotateConfig, format log.Format) (log.Handler, error) {
	if len(config.LogDir) == 0 {
		return nil, fmt.Errorf("empty log directory")
	}
	logDir, err := filepath.Abs(config.LogDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}
	if config.Filename == "" {
		config.Filename = DefaultConfig.Filename
	}

	w := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, config.Filename),
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		LocalTime:  true,
		Compress:   true,
	}
	return log.StreamHandler(w, format), nil
}
