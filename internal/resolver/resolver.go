package resolver

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/derpies/inliner/internal/css"
	"github.com/derpies/inliner/internal/html"
)

// Matcher evaluates selectors against an indexed element tree.
type Matcher interface {
	// Select returns the indices of matching elements in document order
	Select(selector string) ([]int, error)
	// Specificity returns the specificity of a single selector
	Specificity(selector string) css.Specificity
}

// Tree is an indexed element tree whose style attributes can be rewritten.
type Tree interface {
	Matcher
	Style(i int) (string, bool)
	SetStyle(i int, value string)
}

// Options controls cascade resolution.
type Options struct {
	// IgnoreUnsupportedSelectors skips selectors the matcher cannot evaluate
	// instead of failing.
	IgnoreUnsupportedSelectors bool
}

// Stats describes the work done by Apply.
type Stats struct {
	StyleRules       int // top level style rules considered
	SelectorsMatched int // (selector, element) matches
	ElementsStyled   int // elements whose style attribute was written
	SkippedSelectors int // unsupported selectors ignored
}

// Result is the outcome of Apply.
type Result struct {
	Stats    Stats
	Warnings []error // skipped selectors, one *html.UnsupportedSelectorError each
}

// Resolver handles CSS cascade resolution and writes the computed styles of
// elements into their style attributes
type Resolver struct {
	log *zap.Logger
}

// New creates a new style resolver
func New(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log.Named("resolver")}
}

// entry is one rule's contribution to one element
type entry struct {
	specificity  int
	declarations []css.Declaration
}

// SpecificityOf returns the specificity of rule as the sum of the collapsed
// specificities of every selector in its group, no matter which of them
// matched.
func SpecificityOf(rule css.Rule, m Matcher) int {
	total := 0
	for _, sel := range rule.Selectors {
		total += m.Specificity(sel).Int()
	}
	return total
}

// Apply matches every top level style rule of sheet against tree and
// prepends the merged declarations to each matched element's style
// attribute. All matching is done before the first attribute is written, so
// an error leaves the tree unchanged.
func (r *Resolver) Apply(tree Tree, sheet *css.Stylesheet, opts Options) (*Result, error) {
	res := &Result{}
	accumulator := make(map[int][]entry)
	var order []int // elements in order of first match
	var warnings error

	for _, rule := range sheet.StyleRules() {
		res.Stats.StyleRules++
		specificity := SpecificityOf(rule, tree)

		for _, sel := range rule.Selectors {
			matches, err := tree.Select(sel)
			if err != nil {
				var unsupported *html.UnsupportedSelectorError
				if !errors.As(err, &unsupported) || !opts.IgnoreUnsupportedSelectors {
					return nil, fmt.Errorf("failed to match rule %q: %w", rule.SelectorText(), err)
				}
				r.log.Warn("Skipping unsupported selector", zap.String("selector", sel), zap.Error(unsupported.Err))
				warnings = multierr.Append(warnings, unsupported)
				res.Stats.SkippedSelectors++
				continue
			}

			for _, i := range matches {
				if _, ok := accumulator[i]; !ok {
					order = append(order, i)
				}
				accumulator[i] = append(accumulator[i], entry{specificity: specificity, declarations: rule.Declarations})
			}
			res.Stats.SelectorsMatched += len(matches)
		}
	}

	for _, i := range order {
		computed := merge(accumulator[i]).Format(css.InlineFormat)
		if computed == "" {
			continue
		}
		if existing, ok := tree.Style(i); ok {
			tree.SetStyle(i, computed+";"+existing)
		} else {
			tree.SetStyle(i, computed)
		}
		res.Stats.ElementsStyled++
	}

	res.Warnings = multierr.Errors(warnings)
	r.log.Debug("Cascade applied",
		zap.Int("rules", res.Stats.StyleRules),
		zap.Int("matches", res.Stats.SelectorsMatched),
		zap.Int("elements", res.Stats.ElementsStyled),
		zap.Int("skipped", res.Stats.SkippedSelectors))
	return res, nil
}

// merge applies entries in ascending specificity, equal specificities in
// source order. A later declaration replaces an earlier one of the same
// property, !important included.
func merge(entries []entry) *css.DeclarationList {
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].specificity < entries[b].specificity
	})

	var merged css.DeclarationList
	for _, e := range entries {
		for _, d := range e.declarations {
			merged.Set(d)
		}
	}
	return &merged
}
