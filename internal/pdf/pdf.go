// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdf downloads paper PDFs into scoped temporary directories. A
// download hands back a File that the caller must Release once the upload
// finished or failed for good; Release removes the scratch directory or
// moves the PDF into the keep directory.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/arxiv-zotero/internal/httputil"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

const (
	defaultTimeout       = 60 * time.Second
	defaultMaxConcurrent = 2
	maxSlugLen           = 80
)

var (
	pdfMagic  = []byte("%PDF-")
	errNotPDF = errors.New("response is not a PDF")
)

// Manager downloads PDFs with a per-request timeout, bounded retries on
// transient failures, and a cap on simultaneous downloads.
type Manager struct {
	client    *http.Client
	dir       string
	keepDir   string
	userAgent string
	retry     httputil.Policy
	sem       chan struct{}
}

// NewManager builds a Manager, creating the scratch and keep directories
// when they are configured.
func NewManager(cfg types.PDFConfig) (*Manager, error) {
	for _, dir := range []string{cfg.Dir, cfg.KeepDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: creating directory %s: %v", types.ErrConfiguration, dir, err)
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = defaultMaxConcurrent
	}
	return &Manager{
		client:    &http.Client{Timeout: timeout},
		dir:       cfg.Dir,
		keepDir:   cfg.KeepDir,
		userAgent: cfg.UserAgent,
		retry:     httputil.Policy{MaxAttempts: cfg.MaxRetries},
		sem:       make(chan struct{}, limit),
	}, nil
}

// File is a downloaded PDF owned by the caller until Release.
type File struct {
	Path     string
	Filename string
	Size     int64

	dir     string
	keepDir string
	once    sync.Once
	err     error
}

// Release deletes the file and its scratch directory, or moves the file to
// the keep directory when one is configured. It is safe to call more than once.
func (f *File) Release() error {
	f.once.Do(func() {
		if f.keepDir != "" {
			if err := moveFile(f.Path, filepath.Join(f.keepDir, f.Filename)); err != nil {
				f.err = fmt.Errorf("keeping %s: %w", f.Filename, err)
			}
		}
		if f.dir != "" {
			if err := os.RemoveAll(f.dir); err != nil && f.err == nil {
				f.err = err
			}
			return
		}
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) && f.err == nil {
			f.err = err
		}
	})
	return f.err
}

// Download fetches url into a fresh scratch directory. A 404 or a non-PDF
// response fails immediately; network errors and 5xx are retried. Every
// failure is an ErrDownload and leaves nothing on disk.
func (m *Manager) Download(ctx context.Context, url, title, id string) (*File, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: no PDF URL for %s", types.ErrDownload, id)
	}

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", types.ErrDownload, ctx.Err())
	}
	defer func() { <-m.sem }()

	dir, err := os.MkdirTemp(m.dir, "arxiv-zotero-*")
	if err != nil {
		return nil, fmt.Errorf("%w: creating scratch directory: %w", types.ErrDownload, err)
	}

	f := &File{
		Filename: Filename(title, id),
		dir:      dir,
		keepDir:  m.keepDir,
	}
	f.Path = filepath.Join(dir, f.Filename)

	err = m.retry.Do(ctx, func(ctx context.Context) error {
		n, err := m.fetch(ctx, url, dir, f.Path)
		f.Size = n
		return err
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: %s: %w", types.ErrDownload, url, err)
	}
	return f, nil
}

// fetch performs one GET, writing to a temp file renamed to dest on success.
func (m *Manager) fetch(ctx context.Context, url, dir, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, httputil.Permanent(fmt.Errorf("creating request: %w", err))
	}
	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	if err := httputil.CheckStatus(resp); err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if !pdfContentType(resp.Header.Get("Content-Type")) {
		return 0, httputil.Permanent(fmt.Errorf("%w: content type %q", errNotPDF, resp.Header.Get("Content-Type")))
	}

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(resp.Body, head); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, httputil.Permanent(fmt.Errorf("%w: body too short", errNotPDF))
		}
		return 0, err
	}
	if !bytes.Equal(head, pdfMagic) {
		return 0, httputil.Permanent(fmt.Errorf("%w: missing %%PDF- header", errNotPDF))
	}

	tmpFile, err := os.CreateTemp(dir, ".download-*.tmp")
	if err != nil {
		return 0, httputil.Permanent(fmt.Errorf("creating temp file: %w", err))
	}
	tmpPath := tmpFile.Name()

	n, copyErr := io.Copy(tmpFile, io.MultiReader(bytes.NewReader(head), resp.Body))
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp file: %w", closeErr)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("short download (%d of %d bytes): %w", n, resp.ContentLength, io.ErrUnexpectedEOF)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return 0, httputil.Permanent(fmt.Errorf("renaming temp file: %w", err))
	}
	return n, nil
}

// pdfContentType accepts PDF and generic binary types, and a missing header.
// The %PDF- magic check still applies in every case.
func pdfContentType(ct string) bool {
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/pdf" || mt == "application/x-pdf" || mt == "application/octet-stream"
}

// Filename builds "<slug-of-title>_<id>.pdf". The slug is ASCII, lowercase,
// and filesystem safe; the identifier keeps papers with equal titles apart.
func Filename(title, id string) string {
	slug := Slug(title)
	safeID := strings.NewReplacer("/", "_", ":", "_", "\\", "_").Replace(id)
	switch {
	case slug == "" && safeID == "":
		return "paper.pdf"
	case slug == "":
		return safeID + ".pdf"
	case safeID == "":
		return slug + ".pdf"
	}
	return slug + "_" + safeID + ".pdf"
}

// Slug folds accents, lowercases, and collapses every run of characters
// other than ASCII letters and digits into one hyphen.
func Slug(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if len(out) > maxSlugLen {
		out = strings.TrimRight(out[:maxSlugLen], "-")
	}
	return out
}

// moveFile renames src to dst, copying when they sit on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
