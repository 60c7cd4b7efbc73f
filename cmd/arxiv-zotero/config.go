// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/arxiv-zotero/internal/search"
	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// envKeyReplacer maps nested keys to environment names, so search.max_results
// is read from ARXIV_ZOTERO_SEARCH_MAX_RESULTS.
var envKeyReplacer = strings.NewReplacer(".", "_")

func setDefaults() {
	viper.SetDefault("user_agent", "arxiv-zotero/"+version)
	viper.SetDefault("ledger_path", "arxiv-zotero.db")
	viper.SetDefault("log_file", "arxiv_zotero.log")

	viper.SetDefault("search.max_results", search.DefaultMaxResults)
	viper.SetDefault("search.content_type", string(types.ContentAny))
	viper.SetDefault("search.page_size", 100)
	viper.SetDefault("search.request_delay", 3*time.Second)
	viper.SetDefault("search.max_retries", 3)
	viper.SetDefault("search.timeout", 30*time.Second)

	viper.SetDefault("zotero.library_type", "user")
	viper.SetDefault("zotero.template_type", "preprint")
	viper.SetDefault("zotero.max_retries", 3)
	viper.SetDefault("zotero.timeout", 30*time.Second)

	viper.SetDefault("pdf.timeout", 60*time.Second)
	viper.SetDefault("pdf.max_retries", 3)
	viper.SetDefault("pdf.max_concurrent", 2)

	viper.SetDefault("summary.backend", string(types.BackendClaude))
	viper.SetDefault("summary.max_length", 2000)
	viper.SetDefault("summary.max_input", 20000)
	viper.SetDefault("summary.delay", time.Second)
	viper.SetDefault("summary.timeout", 120*time.Second)
	viper.SetDefault("summary.max_retries", 3)

	viper.SetDefault("cache.ttl", 30*24*time.Hour)

	viper.SetDefault("collect.download_pdfs", true)
	viper.SetDefault("collect.concurrency", 3)
}

// flagKeys maps command-line flags to their configuration keys.
var flagKeys = map[string]string{
	"log-file":           "log_file",
	"ledger":             "ledger_path",
	"keywords":           "search.keywords",
	"title":              "search.title",
	"categories":         "search.categories",
	"author":             "search.author",
	"start-date":         "search.start_date",
	"end-date":           "search.end_date",
	"content-type":       "search.content_type",
	"max-results":        "search.max_results",
	"all":                "search.all",
	"request-delay":      "search.request_delay",
	"download-pdfs":      "collect.download_pdfs",
	"concurrency":        "collect.concurrency",
	"template-type":      "zotero.template_type",
	"mapping-file":       "zotero.mapping_file",
	"keep-pdfs":          "pdf.keep_dir",
	"summarize":          "summary.enabled",
	"summary-backend":    "summary.backend",
	"summary-model":      "summary.model",
	"summary-prompt":     "summary.prompt",
	"summary-max-length": "summary.max_length",
	"summary-delay":      "summary.delay",
	"pdf-text":           "summary.pdf_text",
	"full-text":          "summary.full_text",
	"s3-bucket":          "archive.s3_bucket",
	"redis-addr":         "cache.redis_addr",
}

// bindFlags binds the running command's flags to their keys. Binding at run
// time keeps commands that share flag names from overwriting each other.
func bindFlags(cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// addSearchFlags registers the search filter flags.
func addSearchFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringSlice("keywords", nil, "keywords searched in all fields, OR-combined (comma-separated)")
	fs.String("title", "", "terms that must all appear in the title")
	fs.StringSlice("categories", nil, "arXiv categories, OR-combined (e.g. cs.AI,quant-ph)")
	fs.String("author", "", "terms that must all appear in the author list")
	fs.String("start-date", "", "earliest publication date, inclusive (YYYY-MM-DD)")
	fs.String("end-date", "", "latest publication date, inclusive (YYYY-MM-DD)")
	fs.String("content-type", "", "journal, conference, preprint, or any")
	fs.Int("max-results", 0, "maximum papers to accept (default 50)")
	fs.Bool("all", false, "allow a search with no filters")
	fs.Duration("request-delay", 0, "pause between arXiv requests (default 3s)")
	fs.String("query-file", "", "read filters from a saved query file instead of flags")
}

// addCollectFlags registers the flags shared by collect and watch.
func addCollectFlags(cmd *cobra.Command) {
	addSearchFlags(cmd)
	fs := cmd.Flags()
	fs.Bool("download-pdfs", true, "attach each paper's PDF")
	fs.Int("concurrency", 0, "papers processed at once (default 3)")
	fs.String("template-type", "", "Zotero item type for new items (default preprint)")
	fs.String("mapping-file", "", "YAML field mapping table replacing the built-in one")
	fs.String("keep-pdfs", "", "move downloaded PDFs here instead of deleting them")
	fs.Bool("summarize", false, "attach an AI summary note to each new item")
	fs.String("summary-backend", "", "summarizer backend: claude or cohere")
	fs.String("summary-model", "", "summarizer model name")
	fs.String("summary-prompt", "", "summary prompt template ({{.Title}}, {{.Text}})")
	fs.Int("summary-max-length", 0, "maximum summary length in characters (default 2000)")
	fs.Duration("summary-delay", 0, "minimum pause between summarizer calls (default 1s)")
	fs.Bool("pdf-text", false, "include text extracted from the PDF in the summary input")
	fs.Bool("full-text", false, "use the arXiv HTML rendering when no PDF text is available")
	fs.String("s3-bucket", "", "also archive downloaded PDFs to this S3 bucket")
	fs.String("redis-addr", "", "Redis address of the seen-paper cache")
}

// loadConfig assembles the immutable run configuration from defaults, the
// config file, the environment, and bound flags.
func loadConfig() (types.Config, error) {
	backend := types.SummaryBackend(strings.ToLower(viper.GetString("summary.backend")))
	switch backend {
	case types.BackendClaude, types.BackendCohere:
	default:
		return types.Config{}, fmt.Errorf("%w: unknown summary.backend %q (want claude or cohere)", types.ErrConfiguration, backend)
	}

	userAgent := viper.GetString("user_agent")
	httpCfg := func(prefix string) types.HTTPConfig {
		return types.HTTPConfig{Timeout: viper.GetDuration(prefix + ".timeout"), UserAgent: userAgent}
	}

	cfg := types.Config{
		Search: types.SearchConfig{
			HTTPConfig:   httpCfg("search"),
			PageSize:     viper.GetInt("search.page_size"),
			RequestDelay: viper.GetDuration("search.request_delay"),
			MaxRetries:   viper.GetInt("search.max_retries"),
		},
		Zotero: types.ZoteroConfig{
			HTTPConfig:        httpCfg("zotero"),
			LibraryType:       viper.GetString("zotero.library_type"),
			TemplateType:      viper.GetString("zotero.template_type"),
			TemplateByContent: viper.GetBool("zotero.template_by_content"),
			MappingFile:       viper.GetString("zotero.mapping_file"),
			MaxRetries:        viper.GetInt("zotero.max_retries"),
		},
		PDF: types.PDFConfig{
			HTTPConfig:    httpCfg("pdf"),
			Dir:           viper.GetString("pdf.dir"),
			KeepDir:       viper.GetString("pdf.keep_dir"),
			MaxRetries:    viper.GetInt("pdf.max_retries"),
			MaxConcurrent: viper.GetInt("pdf.max_concurrent"),
		},
		Summary: types.SummaryConfig{
			AIConfig: types.AIConfig{
				Model:      viper.GetString("summary.model"),
				MaxRetries: viper.GetInt("summary.max_retries"),
			},
			Enabled:      viper.GetBool("summary.enabled"),
			Backend:      backend,
			Prompt:       viper.GetString("summary.prompt"),
			MaxLength:    viper.GetInt("summary.max_length"),
			MaxInput:     viper.GetInt("summary.max_input"),
			Delay:        viper.GetDuration("summary.delay"),
			Timeout:      viper.GetDuration("summary.timeout"),
			PDFText:      viper.GetBool("summary.pdf_text"),
			PDFTextImage: viper.GetString("summary.pdf_text_image"),
			FullText:     viper.GetBool("summary.full_text"),
		},
		Archive: types.ArchiveConfig{
			S3Bucket:     viper.GetString("archive.s3_bucket"),
			S3Prefix:     viper.GetString("archive.s3_prefix"),
			S3Region:     viper.GetString("archive.s3_region"),
			S3Profile:    viper.GetString("archive.s3_profile"),
			UsePathStyle: viper.GetBool("archive.use_path_style"),
		},
		Cache: types.CacheConfig{
			RedisAddr:     viper.GetString("cache.redis_addr"),
			RedisPassword: viper.GetString("cache.redis_password"),
			RedisDB:       viper.GetInt("cache.redis_db"),
			KeyPrefix:     viper.GetString("cache.key_prefix"),
			TTL:           viper.GetDuration("cache.ttl"),
		},
		Collect: types.CollectConfig{
			DownloadPDFs: viper.GetBool("collect.download_pdfs"),
			Concurrency:  viper.GetInt("collect.concurrency"),
		},
		LedgerPath: viper.GetString("ledger_path"),
		LogFile:    viper.GetString("log_file"),
	}

	switch cfg.Zotero.LibraryType {
	case "user", "group":
	default:
		return types.Config{}, fmt.Errorf("%w: zotero.library_type must be user or group, got %q", types.ErrConfiguration, cfg.Zotero.LibraryType)
	}
	if cfg.Collect.Concurrency < 0 {
		return types.Config{}, fmt.Errorf("%w: concurrency must be positive, got %d", types.ErrConfiguration, cfg.Collect.Concurrency)
	}
	return cfg, nil
}

// searchParams reads the filters from a saved query file when --query-file
// is given, otherwise from flags and configuration.
func searchParams(cmd *cobra.Command) (search.Params, error) {
	if path, _ := cmd.Flags().GetString("query-file"); path != "" {
		qf, err := search.ReadQueryFile(path)
		if err != nil {
			return search.Params{}, fmt.Errorf("%w: %v", types.ErrConfiguration, err)
		}
		p, err := qf.Query.ToParams()
		if err != nil {
			return search.Params{}, err
		}
		return p, p.Validate()
	}

	ct, err := types.ParseContentType(viper.GetString("search.content_type"))
	if err != nil {
		return search.Params{}, err
	}
	p := search.Params{
		Keywords:          viper.GetStringSlice("search.keywords"),
		Title:             viper.GetString("search.title"),
		Categories:        viper.GetStringSlice("search.categories"),
		Author:            viper.GetString("search.author"),
		ContentType:       ct,
		MaxResults:        viper.GetInt("search.max_results"),
		AllowUnrestricted: viper.GetBool("search.all"),
	}
	if p.StartDate, err = search.ParseDate(viper.GetString("search.start_date")); err != nil {
		return p, err
	}
	if p.EndDate, err = search.ParseDate(viper.GetString("search.end_date")); err != nil {
		return p, err
	}
	return p, p.Validate()
}
