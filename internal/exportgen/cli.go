package exportgen

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/vitals/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) (io.Closer, error) {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "exportgen_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.InitWithOptions(logger.Options{Output: io.MultiWriter(os.Stdout, file)}); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the exportgen tool.
func ShowHelp() {
	os.Stdout.WriteString(`Vitals Export Generator
=======================

Generates a synthetic Apple Health export with planted correlations
(daily steps against resting heart rate, sleep against HRV).

Usage:
  go run ./cmd/exportgen [options]

Options:
  -days int
        Number of days to generate (default 60)
  -seed uint
        Random seed (default 1)
  -format string
        Output format, xml or json (default "xml")
  -out string
        Output file (default: export_TIMESTAMP.xml|json)
  -dups int
        Exact duplicate records to append
  -bad int
        Invalid records to append
  -lb
        Write body mass in pounds
  -url string
        Upload and commit to a running service at this base URL
  -timeout duration
        HTTP request timeout (default 30s)
  -help
        Show this help message

Examples:
  go run ./cmd/exportgen -days 90 -format json -out export.json
  go run ./cmd/exportgen -dups 20 -bad 5 -url http://localhost:9090
`)
}
