package resolver_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/derpies/inliner/internal/css"
	"github.com/derpies/inliner/internal/html"
	"github.com/derpies/inliner/internal/resolver"
)

func apply(t *testing.T, markup, stylesheet string, opts resolver.Options) (string, *resolver.Result, error) {
	t.Helper()

	doc, err := html.Parse(markup)
	require.NoError(t, err)
	doc.Index()

	log := zaptest.NewLogger(t)
	sheet := css.NewParser(log).Parse(stylesheet)
	res, applyErr := resolver.New(log).Apply(doc, sheet, opts)

	out, err := doc.HTML()
	require.NoError(t, err)
	return out, res, applyErr
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		markup   string
		css      string
		expected string
	}{
		{
			name:     "basic",
			markup:   `<h1>Hello World!</h1>`,
			css:      `h1 { color: #ffcc00; }`,
			expected: `<h1 style="color:#ffcc00">Hello World!</h1>`,
		},
		{
			name:     "specificity ordering",
			markup:   `<h1 id="test">x</h1>`,
			css:      `#test { color: red } h1 { color: blue }`,
			expected: `<h1 id="test" style="color:red">x</h1>`,
		},
		{
			name:     "source order on tie",
			markup:   `<p>x</p>`,
			css:      `p { color: red } p { color: blue }`,
			expected: `<p style="color:blue">x</p>`,
		},
		{
			name:     "group specificity is summed",
			markup:   `<span class="b1 c">x</span>`,
			css:      `.b1,.b2 { font-weight:bold; } .c {color: red}`,
			expected: `<span class="b1 c" style="color:red;font-weight:bold">x</span>`,
		},
		{
			name:     "existing style wins",
			markup:   `<h1 style="color: #fff">x</h1>`,
			css:      `h1 { color: #000 }`,
			expected: `<h1 style="color:#000;color: #fff">x</h1>`,
		},
		{
			name:     "duplicate selectors",
			markup:   `<p>x</p>`,
			css:      `p, p { color: red }`,
			expected: `<p style="color:red">x</p>`,
		},
		{
			name:     "later declaration replaces important",
			markup:   `<p id="x">x</p>`,
			css:      `p { color: red !important } #x { color: blue }`,
			expected: `<p id="x" style="color:blue">x</p>`,
		},
		{
			name:     "later rule replaces important",
			markup:   `<h1>x</h1>`,
			css:      `h1 {color:red !important} h1 {color:blue}`,
			expected: `<h1 style="color:blue">x</h1>`,
		},
		{
			name:     "important flag kept on winner",
			markup:   `<h1>x</h1>`,
			css:      `h1 {color:red} h1 {color:blue !important}`,
			expected: `<h1 style="color:blue !important">x</h1>`,
		},
		{
			name:     "overwrite keeps first position",
			markup:   `<p id="x">x</p>`,
			css:      `p { color: red; margin: 0 } #x { color: blue }`,
			expected: `<p id="x" style="color:blue;margin:0">x</p>`,
		},
		{
			name:     "empty rule leaves element alone",
			markup:   `<p>x</p>`,
			css:      `p {}`,
			expected: `<p>x</p>`,
		},
		{
			name:     "nested rules are not cascaded",
			markup:   `<p>x</p>`,
			css:      `@media print { p { color: red } }`,
			expected: `<p>x</p>`,
		},
		{
			name:     "unicode",
			markup:   `<h1>Hello World! ☃</h1>`,
			css:      `h1 { color: #ffcc00; }`,
			expected: `<h1 style="color:#ffcc00">Hello World! ☃</h1>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := apply(t, tt.markup, tt.css, resolver.Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestApply_Stats(t *testing.T) {
	_, res, err := apply(t, `<p>a</p><p>b</p><h1>c</h1>`, `p { color: red } h1, p { margin: 0 } table { border: 0 }`, resolver.Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Stats.StyleRules)
	assert.Equal(t, 5, res.Stats.SelectorsMatched)
	assert.Equal(t, 3, res.Stats.ElementsStyled)
	assert.Empty(t, res.Warnings)
}

func TestApply_UnsupportedSelector(t *testing.T) {
	markup := `<section><span>x</span></section>`
	stylesheet := `span { margin: 0 } section > span:css4-selector { color: red }`

	out, _, err := apply(t, markup, stylesheet, resolver.Options{})
	require.Error(t, err)
	var unsupported *html.UnsupportedSelectorError
	require.True(t, errors.As(err, &unsupported))
	// nothing written before the failure
	assert.Equal(t, markup, out)

	out, res, err := apply(t, markup, stylesheet, resolver.Options{IgnoreUnsupportedSelectors: true})
	require.NoError(t, err)
	assert.Equal(t, `<section><span style="margin:0">x</span></section>`, out)
	assert.Equal(t, 1, res.Stats.SkippedSelectors)
	require.Len(t, res.Warnings, 1)
	assert.True(t, errors.As(res.Warnings[0], &unsupported))
	assert.Equal(t, "section > span:css4-selector", unsupported.Selector)
}

type fakeMatcher map[string]css.Specificity

func (m fakeMatcher) Select(string) ([]int, error) { return nil, nil }

func (m fakeMatcher) Specificity(sel string) css.Specificity { return m[sel] }

func TestSpecificityOf(t *testing.T) {
	m := fakeMatcher{
		"#a":   {IDs: 1},
		"p.b":  {Classes: 1, Elements: 1},
		"span": {Elements: 1},
	}

	assert.Equal(t, 100, resolver.SpecificityOf(css.Rule{Selectors: []string{"#a"}}, m))
	assert.Equal(t, 111, resolver.SpecificityOf(css.Rule{Selectors: []string{"#a", "p.b"}}, m))
	assert.Equal(t, 12, resolver.SpecificityOf(css.Rule{Selectors: []string{"p.b", "span"}}, m))
	assert.Equal(t, 0, resolver.SpecificityOf(css.Rule{}, m))
}
