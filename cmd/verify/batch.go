package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/report"
)

type batchOptions struct {
	Type        string
	DoctorName  string
	Out         string
	Concurrency int
	Files       []string

	docType domain.DocumentType
}

func (o *batchOptions) validate() error {
	docType, ok := domain.ParseDocumentType(o.Type)
	if !ok {
		return fmt.Errorf("malformed document type %q", o.Type)
	}
	o.docType = docType
	if len(o.Files) == 0 {
		return errors.New("at least one file is required")
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	return nil
}

// runBatch verifies every file and writes the report. Rows keep the input
// order regardless of completion order.
func runBatch(ctx context.Context, verifier ports.DocumentVerifier, opts batchOptions, stdout io.Writer) error {
	if !verifier.Supports(opts.docType) {
		return fmt.Errorf("document type %q has no lexicon; supported: %v", opts.docType, verifier.DocumentTypes())
	}
	rows := make([]report.Row, len(opts.Files))
	doctor := domain.DoctorMetadata{Name: opts.DoctorName}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, path := range opts.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d := doctor
			rows[i] = report.Row{File: path, Result: verifier.Verify(gctx, path, opts.docType, &d)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("verify batch: %w", err)
	}

	if opts.Out == "" {
		return report.WriteJSON(stdout, rows)
	}
	if err := report.WriteFile(opts.Out, rows); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d results to %s\n", len(rows), opts.Out)
	return nil
}
