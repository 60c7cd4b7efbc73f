// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package collect

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pdiddy/arxiv-zotero/internal/mapping"
	"github.com/pdiddy/arxiv-zotero/internal/pdf"
	"github.com/pdiddy/arxiv-zotero/internal/search"
	"github.com/pdiddy/arxiv-zotero/internal/summarize"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

const (
	journalTemplateType = "journalArticle"
	cancelledReason     = "run cancelled"
)

// Library is the subset of the Zotero client the processor writes through.
type Library interface {
	CheckDuplicate(ctx context.Context, identifier, field string) (string, bool, error)
	CreateItem(ctx context.Context, templateType string, fields map[string]any) (string, error)
	UploadAttachment(ctx context.Context, parentKey, path, filename string) error
	AttachNote(ctx context.Context, parentKey, html string) error
}

// Mapper turns a paper into library fields for one item type.
type Mapper interface {
	MapFor(p types.Paper, itemType string) (map[string]any, error)
}

// Downloader fetches a paper's PDF to local disk.
type Downloader interface {
	Download(ctx context.Context, url, title, id string) (*pdf.File, error)
}

// Summarizer generates the text of a summary note.
type Summarizer interface {
	Summarize(ctx context.Context, title, text string) (string, error)
	Backend() string
}

// TextExtractor pulls plain text out of a downloaded PDF.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// FullTextSource fetches a paper's body text from the web.
type FullTextSource interface {
	Fetch(ctx context.Context, p types.Paper) (string, error)
}

// Archiver keeps a copy of a downloaded PDF outside the library.
type Archiver interface {
	Store(ctx context.Context, p types.Paper, localPath, filename string) (string, error)
}

// SeenCache remembers papers already present in the library.
type SeenCache interface {
	Lookup(ctx context.Context, p types.Paper) (string, bool, error)
	Remember(ctx context.Context, p types.Paper, itemKey string) error
}

// Deps are the collaborators of a Processor. Library and Mapper are
// required; a nil optional collaborator disables its step.
type Deps struct {
	Library    Library
	Mapper     Mapper
	PDFs       Downloader
	Summarizer Summarizer
	Text       TextExtractor
	FullText   FullTextSource
	Archive    Archiver
	Seen       SeenCache
}

// Processor runs the per-paper state machine:
//
//	Start → DuplicateChecked → ItemCreated → MetadataAttached →
//	(PDFAttached | PDFSkippedOrFailed) →
//	(SummaryAttached | SummarySkippedOrFailed) → Done
//
// Errors before the item exists fail the paper. Errors after it exists only
// degrade the outcome. A Processor is safe for concurrent use.
type Processor struct {
	deps              Deps
	templateType      string
	templateByContent bool
	w                 io.Writer
}

// NewProcessor validates deps and returns a Processor that writes progress
// lines to w. Concurrent Process calls never interleave within a line.
func NewProcessor(deps Deps, cfg types.ZoteroConfig, w io.Writer) (*Processor, error) {
	if deps.Library == nil {
		return nil, fmt.Errorf("%w: no library client", types.ErrConfiguration)
	}
	if deps.Mapper == nil {
		return nil, fmt.Errorf("%w: no metadata mapper", types.ErrConfiguration)
	}
	tt := cfg.TemplateType
	if tt == "" {
		tt = mapping.DefaultItemType
	}
	return &Processor{
		deps:              deps,
		templateType:      tt,
		templateByContent: cfg.TemplateByContent,
		w:                 syncWriter(w),
	}, nil
}

// Process takes one paper through the state machine and returns its
// outcome. It never returns an error: every failure is recorded on the
// outcome. Once the item exists, cancellation of ctx no longer interrupts
// the paper; its remaining steps run to completion under per-call timeouts.
func (p *Processor) Process(ctx context.Context, paper types.Paper, downloadPDFs bool) types.Outcome {
	start := time.Now()
	o := types.Outcome{
		PaperID: paper.ID,
		Title:   paper.Title,
		State:   types.StateStart,
		PDF:     types.StepNotRequested,
		Summary: types.StepNotRequested,
	}
	finish := func() types.Outcome {
		o.Duration = time.Since(start)
		return o
	}

	if ctx.Err() != nil {
		p.fail(&o, cancelledReason)
		return finish()
	}

	if key, found := p.lookupSeen(ctx, paper); found {
		o.State = types.StateDuplicateChecked
		p.skip(&o, key, "seen cache")
		return finish()
	}

	key, found, err := p.checkDuplicate(ctx, paper)
	if err != nil {
		p.fail(&o, err.Error())
		return finish()
	}
	o.State = types.StateDuplicateChecked
	if found {
		p.remember(ctx, paper, key)
		p.skip(&o, key, "library")
		return finish()
	}

	itemType := p.itemType(paper)
	fields, err := p.deps.Mapper.MapFor(paper, itemType)
	if err != nil {
		p.fail(&o, err.Error())
		return finish()
	}
	key, err = p.deps.Library.CreateItem(ctx, itemType, fields)
	if err != nil {
		p.fail(&o, err.Error())
		return finish()
	}
	o.ItemKey = key
	// Item creation carries the mapped metadata, so both states are reached.
	o.State = types.StateMetadataAttached

	// The item exists; finish its attachments even if the run is cancelled.
	ctx = context.WithoutCancel(ctx)
	p.remember(ctx, paper, key)

	pdfText := p.attachPDF(ctx, paper, &o, downloadPDFs)
	o.State = stepState(o.PDF, types.StatePDFAttached, types.StatePDFSkippedOrFailed)
	p.attachSummary(ctx, paper, &o, pdfText)
	o.State = stepState(o.Summary, types.StateSummaryAttached, types.StateSummarySkippedOrFailed)

	o.State = types.StateDone
	o.Status = types.StatusSuccess
	p.logf("created: %s %q (%s)%s\n", paper.ID, paper.Title, key, degradedSuffix(o))
	return finish()
}

// checkDuplicate looks the paper up by DOI, then by arXiv identifier.
func (p *Processor) checkDuplicate(ctx context.Context, paper types.Paper) (string, bool, error) {
	if paper.DOI != "" {
		key, found, err := p.deps.Library.CheckDuplicate(ctx, paper.DOI, "DOI")
		if err != nil || found {
			return key, found, err
		}
	}
	return p.deps.Library.CheckDuplicate(ctx, paper.ArchiveID(), "archiveID")
}

// itemType picks the template for a paper.
func (p *Processor) itemType(paper types.Paper) string {
	if p.templateByContent && search.Classify(paper) == types.ContentJournal {
		return journalTemplateType
	}
	return p.templateType
}

// attachPDF runs the PDF step and returns text extracted from the file for
// the summary step, or "" when none is available.
func (p *Processor) attachPDF(ctx context.Context, paper types.Paper, o *types.Outcome, requested bool) string {
	if !requested {
		return ""
	}
	if paper.PDFURL == "" || p.deps.PDFs == nil {
		o.PDF = types.StepSkipped
		o.Notes = append(o.Notes, "pdf: no PDF URL")
		return ""
	}

	f, err := p.deps.PDFs.Download(ctx, paper.PDFURL, paper.Title, paper.ID)
	if err != nil {
		p.degrade(o, &o.PDF, "pdf", err)
		return ""
	}
	defer func() {
		if err := f.Release(); err != nil {
			p.logf("  warning: %s: releasing PDF: %v\n", paper.ID, err)
		}
	}()

	if p.deps.Archive != nil {
		if loc, err := p.deps.Archive.Store(ctx, paper, f.Path, f.Filename); err != nil {
			o.Notes = append(o.Notes, "archive: "+err.Error())
			p.logf("  warning: %s: %v\n", paper.ID, err)
		} else {
			p.logf("  archived: %s -> %s\n", paper.ID, loc)
		}
	}

	if err := p.deps.Library.UploadAttachment(ctx, o.ItemKey, f.Path, f.Filename); err != nil {
		p.degrade(o, &o.PDF, "pdf", err)
	} else {
		o.PDF = types.StepAttached
	}

	if p.deps.Summarizer == nil || p.deps.Text == nil {
		return ""
	}
	text, err := p.deps.Text.Extract(ctx, f.Path)
	if err != nil {
		p.logf("  warning: %s: %v\n", paper.ID, err)
		return ""
	}
	return text
}

// attachSummary runs the summary step.
func (p *Processor) attachSummary(ctx context.Context, paper types.Paper, o *types.Outcome, pdfText string) {
	if p.deps.Summarizer == nil {
		return
	}

	body := pdfText
	if body == "" && p.deps.FullText != nil {
		text, err := p.deps.FullText.Fetch(ctx, paper)
		if err != nil {
			p.logf("  warning: %s: %v\n", paper.ID, err)
		}
		body = text
	}
	input := summaryInput(paper.Abstract, body)

	summary, err := p.deps.Summarizer.Summarize(ctx, paper.Title, input)
	if err != nil {
		p.degrade(o, &o.Summary, "summary", err)
		return
	}
	html := summarize.NoteHTML(p.deps.Summarizer.Backend(), summary)
	if err := p.deps.Library.AttachNote(ctx, o.ItemKey, html); err != nil {
		p.degrade(o, &o.Summary, "summary", err)
		return
	}
	o.Summary = types.StepAttached
}

// stepState resolves the state a finished step leaves the paper in.
func stepState(step types.StepStatus, attached, otherwise types.State) types.State {
	if step == types.StepAttached {
		return attached
	}
	return otherwise
}

func summaryInput(abstract, body string) string {
	abstract = strings.TrimSpace(abstract)
	body = strings.TrimSpace(body)
	switch {
	case abstract == "":
		return body
	case body == "":
		return "Abstract:\n" + abstract
	default:
		return "Abstract:\n" + abstract + "\n\nFull text:\n" + body
	}
}

func (p *Processor) lookupSeen(ctx context.Context, paper types.Paper) (string, bool) {
	if p.deps.Seen == nil {
		return "", false
	}
	key, found, err := p.deps.Seen.Lookup(ctx, paper)
	if err != nil {
		p.logf("  warning: %v\n", err)
		return "", false
	}
	return key, found
}

func (p *Processor) remember(ctx context.Context, paper types.Paper, key string) {
	if p.deps.Seen == nil {
		return
	}
	if err := p.deps.Seen.Remember(ctx, paper, key); err != nil {
		p.logf("  warning: %v\n", err)
	}
}

func (p *Processor) skip(o *types.Outcome, key, source string) {
	o.Status = types.StatusSkippedDuplicate
	o.ItemKey = key
	o.Reason = "duplicate of " + key + " (" + source + ")"
	p.logf("skipped: %s %q duplicate of %s\n", o.PaperID, o.Title, key)
}

func (p *Processor) fail(o *types.Outcome, reason string) {
	o.Status = types.StatusFailed
	o.Reason = reason
	p.logf("failed: %s %q: %s\n", o.PaperID, o.Title, reason)
}

func (p *Processor) degrade(o *types.Outcome, step *types.StepStatus, name string, err error) {
	*step = types.StepFailed
	o.Notes = append(o.Notes, name+": "+err.Error())
	p.logf("  warning: %s: %s: %v\n", o.PaperID, name, err)
}

func (p *Processor) logf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func degradedSuffix(o types.Outcome) string {
	var lost []string
	if o.PDF == types.StepFailed {
		lost = append(lost, "no PDF")
	}
	if o.Summary == types.StepFailed {
		lost = append(lost, "no summary")
	}
	if len(lost) == 0 {
		return ""
	}
	return " [" + strings.Join(lost, ", ") + "]"
}
