// Command verify checks credential files from the command line and prints a
// JSON report or writes an xlsx/pdf summary.
//
//	verify [-type license|degree|<lexicon type>] [-name "Dr. A"] [-out report.xlsx] [-concurrency 4] files...
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/credential-verifier/internal/bootstrap"
	"github.com/kirillkom/credential-verifier/internal/config"
	"github.com/kirillkom/credential-verifier/internal/observability/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}

	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(stderr, "verify", cfg.LogLevel)

	bundle, err := bootstrap.NewVerifier(cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	defer bundle.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runBatch(ctx, bundle.Verifier, opts, stdout); err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (batchOptions, error) {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts batchOptions
	docType := fs.String("type", "license", "document type: license, degree or any type in the lexicon")
	fs.StringVar(&opts.DoctorName, "name", "", "doctor name attached to each result")
	fs.StringVar(&opts.Out, "out", "", "write the report to this .xlsx, .pdf or .json file instead of stdout")
	fs.IntVar(&opts.Concurrency, "concurrency", 4, "documents verified in parallel")
	if err := fs.Parse(args); err != nil {
		return batchOptions{}, err
	}

	opts.Type = *docType
	opts.Files = fs.Args()
	if err := opts.validate(); err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		fs.Usage()
		return batchOptions{}, err
	}
	return opts, nil
}
