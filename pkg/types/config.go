package types

import (
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings used by every component that makes
// network requests.
type HTTPConfig struct {
	// Timeout is the per-request timeout. It bounds one call, not one paper.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "arxiv-zotero/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// SearchConfig holds settings for the arXiv client.
type SearchConfig struct {
	HTTPConfig `yaml:",inline"`

	// PageSize is the number of entries requested per arXiv call (default 100).
	PageSize int `json:"page_size" yaml:"page_size"`

	// RequestDelay is the pause between consecutive arXiv calls (default 3s).
	RequestDelay time.Duration `json:"request_delay" yaml:"request_delay"`

	// MaxRetries is the number of attempts for rate-limited or 5xx calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ZoteroConfig holds settings for the library client.
type ZoteroConfig struct {
	HTTPConfig `yaml:",inline"`

	// LibraryType is "user" (default) or "group".
	LibraryType string `json:"library_type" yaml:"library_type"`

	// TemplateType is the item type papers are created as (default "preprint").
	TemplateType string `json:"template_type" yaml:"template_type"`

	// TemplateByContent switches papers with a journal-ref to journalArticle.
	TemplateByContent bool `json:"template_by_content" yaml:"template_by_content"`

	// MappingFile optionally replaces the built-in field mapping table.
	MappingFile string `json:"mapping_file,omitempty" yaml:"mapping_file,omitempty"`

	// MaxRetries bounds retries of transient write failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// PDFConfig holds settings for PDF downloads.
type PDFConfig struct {
	HTTPConfig `yaml:",inline"`

	// Dir is the scratch directory for downloads (default: system temp dir).
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`

	// KeepDir, when set, receives released PDFs instead of deleting them.
	KeepDir string `json:"keep_dir,omitempty" yaml:"keep_dir,omitempty"`

	// MaxRetries bounds retries of transient download failures (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// MaxConcurrent caps simultaneous downloads (default 2).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`
}

// SummaryBackend selects the generative text API.
type SummaryBackend string

const (
	BackendClaude SummaryBackend = "claude"
	BackendCohere SummaryBackend = "cohere"
)

// AIConfig holds shared settings for calls to a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier.
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"-" yaml:"-"`

	// MaxRetries is the number of attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// SummaryConfig holds settings for the optional summarizer.
type SummaryConfig struct {
	AIConfig `yaml:",inline"`

	Enabled bool           `json:"enabled" yaml:"enabled"`
	Backend SummaryBackend `json:"backend" yaml:"backend"`

	// Prompt is a text/template with {{.Title}} and {{.Text}} available.
	Prompt string `json:"prompt" yaml:"prompt"`

	// MaxLength caps the stored summary in characters (default 2000).
	MaxLength int `json:"max_length" yaml:"max_length"`

	// MaxInput caps the text sent to the model in characters (default 20000).
	MaxInput int `json:"max_input" yaml:"max_input"`

	// Delay is the minimum spacing between consecutive summarizer calls.
	Delay time.Duration `json:"delay" yaml:"delay"`

	// Timeout bounds one summarizer call (default 120s).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// PDFText feeds text extracted from the downloaded PDF to the model.
	PDFText bool `json:"pdf_text" yaml:"pdf_text"`

	// PDFTextImage is a container image used when no pdftotext binary exists.
	PDFTextImage string `json:"pdf_text_image,omitempty" yaml:"pdf_text_image,omitempty"`

	// FullText falls back to the arXiv HTML rendering when no PDF text exists.
	FullText bool `json:"full_text" yaml:"full_text"`
}

// ArchiveConfig configures the optional S3 copy of downloaded PDFs.
type ArchiveConfig struct {
	S3Bucket     string `json:"s3_bucket,omitempty" yaml:"s3_bucket,omitempty"`
	S3Prefix     string `json:"s3_prefix,omitempty" yaml:"s3_prefix,omitempty"`
	S3Region     string `json:"s3_region,omitempty" yaml:"s3_region,omitempty"`
	S3Profile    string `json:"s3_profile,omitempty" yaml:"s3_profile,omitempty"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// CacheConfig configures the optional Redis seen-identifier cache.
type CacheConfig struct {
	RedisAddr     string        `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword string        `json:"-" yaml:"-"`
	RedisDB       int           `json:"redis_db" yaml:"redis_db"`
	KeyPrefix     string        `json:"key_prefix" yaml:"key_prefix"`
	TTL           time.Duration `json:"ttl" yaml:"ttl"`
}

// CollectConfig holds orchestration settings.
type CollectConfig struct {
	// DownloadPDFs toggles the PDF attachment step.
	DownloadPDFs bool `json:"download_pdfs" yaml:"download_pdfs"`

	// Concurrency caps papers in flight (default 3).
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// Config groups every component's settings. It is assembled once at startup
// and passed by value; nothing mutates it afterwards.
type Config struct {
	Search  SearchConfig  `json:"search" yaml:"search"`
	Zotero  ZoteroConfig  `json:"zotero" yaml:"zotero"`
	PDF     PDFConfig     `json:"pdf" yaml:"pdf"`
	Summary SummaryConfig `json:"summary" yaml:"summary"`
	Archive ArchiveConfig `json:"archive" yaml:"archive"`
	Cache   CacheConfig   `json:"cache" yaml:"cache"`
	Collect CollectConfig `json:"collect" yaml:"collect"`

	// LedgerPath is the SQLite operation log (default "arxiv-zotero.db").
	LedgerPath string `json:"ledger_path" yaml:"ledger_path"`

	// LogFile receives a copy of progress output (default "arxiv_zotero.log").
	LogFile string `json:"log_file" yaml:"log_file"`
}

// Credentials holds the library and summarizer secrets. Loaded once,
// read-only afterwards, and never printed.
type Credentials struct {
	LibraryID     string
	APIKey        string
	CollectionKey string
	SummaryAPIKey string
}

// Validate fails when the required library credentials are absent.
func (c Credentials) Validate() error {
	if c.LibraryID == "" {
		return fmt.Errorf("%w: ZOTERO_LIBRARY_ID is not set", ErrConfiguration)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: ZOTERO_API_KEY is not set", ErrConfiguration)
	}
	return nil
}

// String redacts secrets so credentials can never leak through %v.
func (c Credentials) String() string {
	mask := func(s string) string {
		if s == "" {
			return "<unset>"
		}
		return "<redacted>"
	}
	return fmt.Sprintf("Credentials{LibraryID:%s APIKey:%s CollectionKey:%s SummaryAPIKey:%s}",
		mask(c.LibraryID), mask(c.APIKey), mask(c.CollectionKey), mask(c.SummaryAPIKey))
}

// GoString applies the same redaction for %#v.
func (c Credentials) GoString() string { return c.String() }
