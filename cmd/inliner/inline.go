package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/derpies/inliner/internal/fetch"
	"github.com/derpies/inliner/pkg/inliner"
)

// runInline is the action of the inline subcommand
func runInline(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)

	if cmd.Args().Len() > 2 {
		e.Log.Warn("Malformed command line, too many arguments", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}
	src, dst := cmd.Args().Get(0), cmd.Args().Get(1)

	cfg := buildConfig(e.Cfg.Inliner, cmd)

	var extraCSS []string
	for _, name := range cmd.StringSlice("css") {
		data, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("unable to read stylesheet '%s': %w", name, err)
		}
		extraCSS = append(extraCSS, string(data))
	}

	fetcher := fetch.NewHTTPFetcher(e.Log,
		fetch.WithTimeout(e.Cfg.Fetch.Timeout),
		fetch.WithUserAgent(e.Cfg.Fetch.UserAgent))
	engine := inliner.New(cfg, inliner.WithLogger(e.Log), inliner.WithFetcher(fetcher))

	if len(src) > 0 {
		if fi, err := os.Stat(src); err == nil && fi.IsDir() {
			if len(dst) == 0 {
				return fmt.Errorf("destination directory required when source '%s' is a directory", src)
			}
			return runBatchProcessing(ctx, e.Log, engine, src, dst, cmd.Bool("stats"), extraCSS)
		}
	}

	result, err := inlineSource(ctx, engine, src, extraCSS)
	if err != nil {
		return err
	}
	if err := writeOutput(result.HTML, dst); err != nil {
		return err
	}
	reportResult(e.Log, result, src, cmd.Bool("stats"))
	return nil
}

// buildConfig overlays command line flags on configured options
func buildConfig(cfg inliner.Config, cmd *cli.Command) inliner.Config {
	if cmd.IsSet("preserve-media") {
		cfg.PreserveMediaQueries = cmd.Bool("preserve-media")
	}
	if cmd.IsSet("preserve-unknown") {
		cfg.PreserveUnknownRules = cmd.Bool("preserve-unknown")
	}
	if cmd.IsSet("conditional-comments") {
		cfg.AllowConditionalComments = cmd.Bool("conditional-comments")
	}
	if cmd.IsSet("ignore-unsupported") {
		cfg.IgnoreUnsupportedSelectors = cmd.Bool("ignore-unsupported")
	}
	return cfg
}

// inlineSource converts a single document from STDIN, URL or file
func inlineSource(ctx context.Context, engine *inliner.Inliner, src string, extraCSS []string) (*inliner.InlineResult, error) {
	switch {
	case len(src) == 0:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return engine.Inline(ctx, inliner.Source{Markup: string(data)}, extraCSS...)

	case isURL(src):
		return engine.InlineURL(ctx, src, extraCSS...)

	default:
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file %s: %w", src, err)
		}
		base, err := fetch.FileBase(src)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve input file %s: %w", src, err)
		}
		return engine.Inline(ctx, inliner.Source{Markup: string(data), RelativeURL: base}, extraCSS...)
	}
}

func isURL(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// runBatchProcessing processes all HTML files in a directory, a failing file
// does not stop the others
func runBatchProcessing(ctx context.Context, log *zap.Logger, engine *inliner.Inliner, inputDir, outputDir string, stats bool, extraCSS []string) error {
	htmlFiles, err := findHTMLFiles(inputDir)
	if err != nil {
		return fmt.Errorf("failed to find HTML files: %w", err)
	}
	if len(htmlFiles) == 0 {
		return fmt.Errorf("no HTML files found in directory: %s", inputDir)
	}

	var (
		total  inliner.ProcessingStats
		failed int
	)
	for i, inputPath := range htmlFiles {
		log.Debug("Processing", zap.Int("file", i+1), zap.Int("of", len(htmlFiles)), zap.String("path", inputPath))

		result, err := inlineSource(ctx, engine, inputPath, extraCSS)
		if err != nil {
			log.Warn("Unable to process file", zap.String("path", inputPath), zap.Error(err))
			failed++
			continue
		}

		relPath, _ := filepath.Rel(inputDir, inputPath)
		outputPath := filepath.Join(outputDir, relPath)
		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			log.Warn("Unable to create output directory", zap.String("path", filepath.Dir(outputPath)), zap.Error(err))
			failed++
			continue
		}
		if err := writeOutput(result.HTML, outputPath); err != nil {
			log.Warn("Unable to write file", zap.String("path", outputPath), zap.Error(err))
			failed++
			continue
		}
		reportResult(log, result, inputPath, false)

		total.CSSRulesParsed += result.ProcessingStats.CSSRulesParsed
		total.HTMLElementsProcessed += result.ProcessingStats.HTMLElementsProcessed
		total.SelectorsMatched += result.ProcessingStats.SelectorsMatched
		total.ProcessingTimeMs += result.ProcessingStats.ProcessingTimeMs
	}

	if stats {
		log.Info("Batch processing summary",
			zap.Int("files", len(htmlFiles)),
			zap.Int("failed", failed),
			zap.Int("css rules parsed", total.CSSRulesParsed),
			zap.Int("html elements processed", total.HTMLElementsProcessed),
			zap.Int("selectors matched", total.SelectorsMatched),
			zap.Int64("processing time ms", total.ProcessingTimeMs))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(htmlFiles))
	}
	return nil
}

// findHTMLFiles finds all HTML files in a directory
func findHTMLFiles(dir string) ([]string, error) {
	var htmlFiles []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			ext := strings.ToLower(filepath.Ext(path))
			if ext == ".html" || ext == ".htm" {
				htmlFiles = append(htmlFiles, path)
			}
		}
		return nil
	})
	return htmlFiles, err
}

// createOutput opens the named file or STDOUT when name is empty. The
// returned closer folds the close error into *err.
func createOutput(name string) (io.Writer, func(*error), error) {
	if len(name) == 0 {
		return os.Stdout, func(*error) {}, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create destination file '%s': %w", name, err)
	}
	return f, func(err *error) {
		*err = multierr.Append(*err, f.Close())
	}, nil
}

// writeOutput writes content to a file or STDOUT
func writeOutput(content, name string) (err error) {
	out, closer, err := createOutput(name)
	if err != nil {
		return err
	}
	defer closer(&err)

	if _, err = io.WriteString(out, content); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// reportResult logs warnings and, if requested, processing statistics
func reportResult(log *zap.Logger, result *inliner.InlineResult, source string, stats bool) {
	if len(source) == 0 {
		source = "STDIN"
	}
	for _, w := range result.Warnings {
		log.Warn("Inlining problem", zap.String("source", source), zap.Error(w))
	}
	if !stats {
		return
	}
	log.Info("Processing statistics",
		zap.String("source", source),
		zap.Int("inlined styles", result.InlinedStyles),
		zap.Int("preserved rules", result.PreservedRules),
		zap.Int("css rules parsed", result.ProcessingStats.CSSRulesParsed),
		zap.Int("html elements processed", result.ProcessingStats.HTMLElementsProcessed),
		zap.Int("selectors matched", result.ProcessingStats.SelectorsMatched),
		zap.Int("links inlined", result.ProcessingStats.LinksInlined),
		zap.Int("style tags retained", result.ProcessingStats.StyleTagsRetained),
		zap.Int64("processing time ms", result.ProcessingStats.ProcessingTimeMs))
}
