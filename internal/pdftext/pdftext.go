// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdftext extracts plain text from downloaded PDFs so summaries can
// see more than the abstract. It runs poppler's pdftotext from the host
// PATH, or inside a container image when the binary is missing.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/pdiddy/arxiv-zotero/internal/container"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

const binPdftotext = "pdftotext"

// lookPath and detectRuntime are package vars for test substitution.
var (
	lookPath      = exec.LookPath
	detectRuntime = container.DetectRuntime
)

// toolArgs writes UTF-8 text for the input to stdout, without warnings.
func toolArgs(input string) []string {
	return []string{"-q", "-enc", "UTF-8", input, "-"}
}

// Extractor runs pdftotext one PDF at a time. Safe for concurrent use.
type Extractor struct {
	source string
	run    func(ctx context.Context, path string, stdout io.Writer) error
}

// New picks the host binary when available, otherwise image through the
// detected container runtime. With neither, it returns an ErrConfiguration.
func New(ctx context.Context, image string) (*Extractor, error) {
	if bin, err := lookPath(binPdftotext); err == nil {
		return newHost(bin), nil
	}
	if image == "" {
		return nil, fmt.Errorf("%w: %s not found on PATH and no container image configured", types.ErrConfiguration, binPdftotext)
	}
	rt, err := detectRuntime(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found on PATH: %v", types.ErrConfiguration, binPdftotext, err)
	}
	if err := rt.ImageExists(ctx, image); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
	}
	return newContainer(rt, image), nil
}

func newHost(bin string) *Extractor {
	return &Extractor{
		source: bin,
		run: func(ctx context.Context, path string, stdout io.Writer) error {
			cmd := exec.CommandContext(ctx, bin, toolArgs(path)...)
			cmd.Stdout = stdout
			return cmd.Run()
		},
	}
}

func newContainer(rt container.Runtime, image string) *Extractor {
	return &Extractor{
		source: rt.Name() + ":" + image,
		run: func(ctx context.Context, path string, stdout io.Writer) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return rt.Run(ctx, image, append([]string{binPdftotext}, toolArgs("-")...), f, stdout)
		},
	}
}

// Source names the binary or runtime:image in use.
func (e *Extractor) Source() string { return e.source }

// Extract returns the text of the PDF at path with whitespace runs
// collapsed. A PDF without a text layer is an error.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	var out bytes.Buffer
	if err := e.run(ctx, path, &out); err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", path, err)
	}
	text := strings.Join(strings.Fields(out.String()), " ")
	if text == "" {
		return "", fmt.Errorf("extracting text from %s: no text layer", path)
	}
	return text, nil
}
