// Package stylesheet gathers the CSS that applies to a document from its
// <link> and <style> elements and caller supplied sources.
package stylesheet

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/derpies/inliner/internal/css"
	"github.com/derpies/inliner/internal/fetch"
	"github.com/derpies/inliner/internal/html"
)

// Options controls how stylesheet sources are collected.
type Options struct {
	// PreserveMediaQueries keeps @media, @import and @font-face rules in
	// their <style> tags instead of consuming the whole tag.
	PreserveMediaQueries bool
	// PreserveUnknownRules additionally keeps at-rules the parser does not
	// recognize. Only effective with PreserveMediaQueries.
	PreserveUnknownRules bool

	// Bases for resolving <link href>, the relative one wins when set.
	RootURL     string
	RelativeURL string
}

// Stats counts what happened to the document's stylesheet elements.
type Stats struct {
	LinksInlined      int // <link> elements consumed
	LinksSkipped      int // <link> elements left because their target had no rules
	StyleTagsRemoved  int // <style> elements consumed
	StyleTagsRetained int // <style> elements rewritten to hold preserved rules
	PreservedRules    int // rules kept in retained <style> elements
}

// Result is the collected CSS.
type Result struct {
	CSS   string // all inlineable CSS in cascade order
	Stats Stats
}

// Collector extracts CSS from documents.
type Collector struct {
	parser  *css.Parser
	fetcher fetch.Fetcher
	log     *zap.Logger
}

// NewCollector creates a collector. The fetcher retrieves external
// stylesheets and may be nil for documents without <link> elements.
func NewCollector(parser *css.Parser, fetcher fetch.Fetcher, log *zap.Logger) *Collector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{
		parser:  parser,
		fetcher: fetcher,
		log:     log.Named("stylesheet"),
	}
}

// Preserved reports whether rule stays in its <style> element when media
// queries are preserved.
func Preserved(rule css.Rule, preserveUnknown bool) bool {
	switch rule.Type {
	case css.MediaRule, css.ImportRule, css.FontFaceRule:
		return true
	case css.UnknownRule:
		return preserveUnknown
	default:
		return false
	}
}

// Collect removes consumed stylesheet elements from doc and returns their CSS
// in cascade order: external stylesheets, then <style> contents, then
// extraCSS, each group in document or call order. A failed fetch aborts
// collection with a *fetch.Error, leaving doc partially modified.
func (c *Collector) Collect(ctx context.Context, doc *html.Document, opts Options, extraCSS ...string) (*Result, error) {
	res := &Result{}
	var buf strings.Builder

	if err := c.external(ctx, doc, opts, &buf, &res.Stats); err != nil {
		return nil, err
	}
	c.internal(doc, opts, &buf, &res.Stats)

	for _, extra := range extraCSS {
		buf.WriteString(extra)
		buf.WriteString("\n")
	}

	res.CSS = buf.String()
	c.log.Debug("Collected stylesheets",
		zap.Int("bytes", len(res.CSS)),
		zap.Int("links", res.Stats.LinksInlined),
		zap.Int("styles", res.Stats.StyleTagsRemoved+res.Stats.StyleTagsRetained),
		zap.Int("extra", len(extraCSS)))
	return res, nil
}

func (c *Collector) external(ctx context.Context, doc *html.Document, opts Options, buf *strings.Builder, stats *Stats) error {
	for _, link := range doc.LinkTags() {
		href, ok := link.Attr("href")
		if !ok {
			continue
		}
		target := fetch.Resolve(href, opts.RelativeURL, opts.RootURL)
		if c.fetcher == nil {
			return &fetch.Error{URL: target, Err: errNoFetcher}
		}

		data, err := c.fetcher.Fetch(ctx, target)
		if err != nil {
			return err
		}
		content := string(data)

		// not a stylesheet, leave the element alone
		if len(c.parser.Parse(content, target).Rules) == 0 {
			c.log.Debug("Skipping link without rules", zap.String("href", target), zap.String("element", link.OuterHTML()))
			stats.LinksSkipped++
			continue
		}

		buf.WriteString(content)
		buf.WriteString("\n")
		link.Remove()
		stats.LinksInlined++
	}
	return nil
}

func (c *Collector) internal(doc *html.Document, opts Options, buf *strings.Builder, stats *Stats) {
	for _, tag := range doc.StyleTags() {
		content := tag.Text()

		if !opts.PreserveMediaQueries {
			buf.WriteString(content)
			buf.WriteString("\n")
			tag.Remove()
			stats.StyleTagsRemoved++
			continue
		}

		sheet := c.parser.Parse(content, "<style>")
		preserved, cascaded := sheet.Partition(func(r css.Rule) bool {
			return Preserved(r, opts.PreserveUnknownRules)
		})

		if len(preserved.Rules) == 0 {
			buf.WriteString(content)
			buf.WriteString("\n")
			tag.Remove()
			stats.StyleTagsRemoved++
			continue
		}

		tag.ReplaceWithStyle("\n" + preserved.String() + "\n")
		buf.WriteString(cascaded.String())
		buf.WriteString("\n")
		stats.StyleTagsRetained++
		stats.PreservedRules += len(preserved.Rules)
		c.log.Debug("Retained style element", zap.Int("preserved", len(preserved.Rules)), zap.Int("cascaded", len(cascaded.Rules)))
	}
}
