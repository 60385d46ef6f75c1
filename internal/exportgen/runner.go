package exportgen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/vitals/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0640
)

// RunConfig drives the exportgen command.
type RunConfig struct {
	Export     Config
	Format     string        // "xml" or "json"
	OutputFile string        // Written when set
	BaseURL    string        // Uploaded and committed when set
	Source     string        // Source id sent with the upload
	Timeout    time.Duration // HTTP request timeout
}

// Write encodes e in format.
func Write(w io.Writer, format string, e Export) error {
	switch format {
	case "xml":
		return WriteXML(w, e)
	case "json", "":
		return WriteJSON(w, e)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// Run generates an export, writes it to disk and optionally uploads it.
func Run(ctx context.Context, cfg RunConfig) (Stats, error) {
	log := logger.Named("exportgen")
	stats := Stats{StartTime: time.Now()}

	export := Generate(cfg.Export)
	stats.Records = len(export.Records)
	log.Info(ctx, "generated export",
		logger.Int("records", stats.Records),
		logger.Int("days", cfg.Export.Days),
		logger.Int("duplicates", cfg.Export.Duplicates),
		logger.Int("bad", cfg.Export.BadRecords),
	)

	var buf bytes.Buffer
	if err := Write(&buf, cfg.Format, export); err != nil {
		return stats, err
	}

	if cfg.OutputFile != "" {
		if err := saveFile(cfg.OutputFile, buf.Bytes()); err != nil {
			return stats, err
		}
		log.Info(ctx, "export saved to file", logger.String("filename", cfg.OutputFile))
	}

	if cfg.BaseURL != "" {
		client := NewClient(cfg.BaseURL, cfg.Timeout)
		if err := client.CheckHealth(ctx); err != nil {
			return stats, err
		}
		staged, err := client.Stage(ctx, cfg.Format, cfg.Source, bytes.NewReader(buf.Bytes()))
		if err != nil {
			return stats, fmt.Errorf("upload failed: %w", err)
		}
		stats.Accepted, stats.Rejected, stats.Duplicate = staged.Accepted, staged.Rejected, staged.Duplicate

		committed, err := client.Commit(ctx, staged.ID)
		if err != nil {
			return stats, fmt.Errorf("commit failed: %w", err)
		}
		stats.Inserted, stats.Skipped = committed.Inserted, committed.Skipped
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "final statistics",
		logger.Int("records", stats.Records),
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("inserted", stats.Inserted),
		logger.Int("skipped", stats.Skipped),
		logger.String("duration", stats.Duration.String()),
	)
	return stats, nil
}

func saveFile(name string, data []byte) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(name, data, filePermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
