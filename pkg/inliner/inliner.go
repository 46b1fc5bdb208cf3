package inliner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/derpies/inliner/internal/config"
	"github.com/derpies/inliner/internal/css"
	"github.com/derpies/inliner/internal/fetch"
	"github.com/derpies/inliner/internal/html"
	"github.com/derpies/inliner/internal/resolver"
	"github.com/derpies/inliner/internal/stylesheet"
)

type (
	// Config holds the inlining options
	Config = config.InlinerConfig

	// Fetcher retrieves documents and external stylesheets
	Fetcher = fetch.Fetcher

	// FetchError is returned when a document or stylesheet cannot be retrieved
	FetchError = fetch.Error

	// UnsupportedSelectorError is returned for selectors that cannot be
	// evaluated unless Config.IgnoreUnsupportedSelectors is set
	UnsupportedSelectorError = html.UnsupportedSelectorError
)

// DefaultConfig returns a configuration with every optional behavior disabled
func DefaultConfig() Config {
	return config.Default()
}

// Source is a document to inline together with the bases used to resolve
// its <link rel="stylesheet"> references.
type Source struct {
	Markup      string
	RootURL     string // scheme://host, used when RelativeURL is empty
	RelativeURL string // directory of the document, ending with "/"
}

// Inliner is the CSS inlining engine. It holds only configuration and
// collaborators, so a single Inliner may be used concurrently.
type Inliner struct {
	config    Config
	log       *zap.Logger
	fetcher   Fetcher
	parser    *css.Parser
	collector *stylesheet.Collector
	resolver  *resolver.Resolver
}

// Option customizes an Inliner
type Option func(*Inliner)

// WithLogger sets the logger, by default nothing is logged
func WithLogger(log *zap.Logger) Option {
	return func(i *Inliner) {
		i.log = log
	}
}

// WithFetcher replaces the collaborator retrieving documents and external
// stylesheets, by default an HTTP and file fetcher
func WithFetcher(f Fetcher) Option {
	return func(i *Inliner) {
		i.fetcher = f
	}
}

// New creates a new CSS inliner with the given configuration
func New(cfg Config, opts ...Option) *Inliner {
	i := &Inliner{config: cfg}
	for _, opt := range opts {
		opt(i)
	}
	if i.log == nil {
		i.log = zap.NewNop()
	}
	if i.fetcher == nil {
		i.fetcher = fetch.NewHTTPFetcher(i.log)
	}
	i.parser = css.NewParser(i.log)
	i.collector = stylesheet.NewCollector(i.parser, i.fetcher, i.log)
	i.resolver = resolver.New(i.log)
	return i
}

// NewWithDefaults creates a new CSS inliner with default configuration
func NewWithDefaults(opts ...Option) *Inliner {
	return New(DefaultConfig(), opts...)
}

// InlineResult contains the result of CSS inlining operation
type InlineResult struct {
	HTML            string          // Final HTML with inlined styles
	InlinedStyles   int             // Number of elements that received inline styles
	PreservedRules  int             // Number of CSS rules preserved in <style> tags
	Warnings        []error         // Recoverable problems: CSS parse errors, skipped selectors
	ProcessingStats ProcessingStats // Performance and processing statistics
}

// ProcessingStats contains performance metrics from the inlining process
type ProcessingStats struct {
	CSSRulesParsed        int   // Top level CSS rules parsed from all sources
	HTMLElementsProcessed int   // Elements in the document
	SelectorsMatched      int   // Total (selector, element) matches found
	SkippedSelectors      int   // Unsupported selectors ignored
	LinksInlined          int   // <link> elements replaced by their stylesheet
	LinksSkipped          int   // <link> elements whose target had no rules
	StyleTagsRemoved      int   // <style> elements consumed
	StyleTagsRetained     int   // <style> elements kept for preserved rules
	ProcessingTimeMs      int64 // Processing time in milliseconds
}

// Err combines all warnings into a single error, nil when there are none
func (r *InlineResult) Err() error {
	return multierr.Combine(r.Warnings...)
}

// Inline moves the CSS of src (and any extraCSS, applied last) into style
// attributes. Nothing is returned on error, the partially processed
// document is discarded.
func (i *Inliner) Inline(ctx context.Context, src Source, extraCSS ...string) (*InlineResult, error) {
	start := time.Now()

	doc, err := html.Parse(src.Markup)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	collected, err := i.collector.Collect(ctx, doc, stylesheet.Options{
		PreserveMediaQueries: i.config.PreserveMediaQueries,
		PreserveUnknownRules: i.config.PreserveUnknownRules,
		RootURL:              src.RootURL,
		RelativeURL:          src.RelativeURL,
	}, extraCSS...)
	if err != nil {
		return nil, fmt.Errorf("failed to extract CSS: %w", err)
	}

	sheet := i.parser.Parse(collected.CSS, "document")

	elements := doc.Index()
	applied, err := i.resolver.Apply(doc, sheet, resolver.Options{
		IgnoreUnsupportedSelectors: i.config.IgnoreUnsupportedSelectors,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply styles: %w", err)
	}

	out, err := doc.HTML()
	if err != nil {
		return nil, err
	}
	if i.config.AllowConditionalComments {
		out = html.RestoreConditionalComments(out)
	}

	result := &InlineResult{
		HTML:           out,
		InlinedStyles:  applied.Stats.ElementsStyled,
		PreservedRules: collected.Stats.PreservedRules,
		ProcessingStats: ProcessingStats{
			CSSRulesParsed:        len(sheet.Rules),
			HTMLElementsProcessed: elements,
			SelectorsMatched:      applied.Stats.SelectorsMatched,
			SkippedSelectors:      applied.Stats.SkippedSelectors,
			LinksInlined:          collected.Stats.LinksInlined,
			LinksSkipped:          collected.Stats.LinksSkipped,
			StyleTagsRemoved:      collected.Stats.StyleTagsRemoved,
			StyleTagsRetained:     collected.Stats.StyleTagsRetained,
		},
	}
	for _, w := range sheet.Warnings {
		result.Warnings = append(result.Warnings, errors.New("css: "+w))
	}
	result.Warnings = append(result.Warnings, applied.Warnings...)
	result.ProcessingStats.ProcessingTimeMs = time.Since(start).Milliseconds()

	i.log.Debug("Document inlined",
		zap.Bool("fragment", doc.IsFragment()),
		zap.Int("rules", result.ProcessingStats.CSSRulesParsed),
		zap.Int("styled", result.InlinedStyles),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// InlineString is a convenience method that inlines CSS in an HTML string
func (i *Inliner) InlineString(ctx context.Context, markup string, extraCSS ...string) (string, error) {
	result, err := i.Inline(ctx, Source{Markup: markup}, extraCSS...)
	if err != nil {
		return "", err
	}
	return result.HTML, nil
}

// InlineURL retrieves the document at url and inlines it. Relative
// stylesheet links resolve against the document's directory.
func (i *Inliner) InlineURL(ctx context.Context, url string, extraCSS ...string) (*InlineResult, error) {
	data, err := i.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve document: %w", err)
	}
	root, relative := fetch.Bases(url)
	return i.Inline(ctx, Source{Markup: string(data), RootURL: root, RelativeURL: relative}, extraCSS...)
}

// InlineCSS is a convenience function that inlines CSS with default configuration
func InlineCSS(markup string) (string, error) {
	return NewWithDefaults().InlineString(context.Background(), markup)
}

// InlineCSSWithConfig is a convenience function that inlines CSS with custom configuration
func InlineCSSWithConfig(markup string, cfg Config) (string, error) {
	return New(cfg).InlineString(context.Background(), markup)
}
