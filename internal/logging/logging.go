package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const logFileName = "tsimport.log"

// New builds the process logger: text formatted with timestamps, written to
// stdout and appended to a durable log file under logFolder. The returned
// closer releases the file handle.
func New(level string, logFolder string) (*logrus.Logger, func() error, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	if err := os.MkdirAll(logFolder, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log folder %q: %w", logFolder, err)
	}

	path := filepath.Join(logFolder, logFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %q: %w", path, err)
	}

	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return logger, file.Close, nil
}
