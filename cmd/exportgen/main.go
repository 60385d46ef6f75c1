package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/vitals/internal/exportgen"
)

// Default configuration constants.
const (
	defaultDays       = 60
	defaultSeed       = 1
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		days       = flag.Int("days", defaultDays, "Number of days to generate")
		seed       = flag.Uint64("seed", defaultSeed, "Random seed")
		format     = flag.String("format", "xml", "Output format: xml or json")
		outputFile = flag.String("out", "", "Output file (default: export_TIMESTAMP.xml|json)")
		dups       = flag.Int("dups", 0, "Exact duplicate records to append")
		bad        = flag.Int("bad", 0, "Invalid records to append")
		pounds     = flag.Bool("lb", false, "Write body mass in pounds")
		baseURL    = flag.String("url", "", "Upload and commit to the service at this base URL")
		source     = flag.String("source", "exportgen", "Source id sent with the upload")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile    = flag.String("log", "", "Log file (default: exportgen_TIMESTAMP.log)")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		exportgen.ShowHelp()
		return
	}

	closer, err := exportgen.SetupLogging(*logFile)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	if *outputFile == "" {
		*outputFile = "export_" + time.Now().Format("20060102_150405") + "." + *format
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	cfg := exportgen.DefaultConfig()
	cfg.Days = *days
	cfg.Seed = *seed
	cfg.Duplicates = *dups
	cfg.BadRecords = *bad
	cfg.PoundsMass = *pounds

	if _, err := exportgen.Run(ctx, exportgen.RunConfig{
		Export:     cfg,
		Format:     *format,
		OutputFile: *outputFile,
		BaseURL:    *baseURL,
		Source:     *source,
		Timeout:    *timeout,
	}); err != nil {
		os.Stderr.WriteString("Run failed: " + err.Error() + "\n")
		cancel()
		closer.Close()
		os.Exit(1)
	}
}
