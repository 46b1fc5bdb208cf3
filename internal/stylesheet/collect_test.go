package stylesheet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/derpies/inliner/internal/css"
	"github.com/derpies/inliner/internal/fetch"
	"github.com/derpies/inliner/internal/html"
)

func newCollector(t *testing.T, f fetch.Fetcher) *Collector {
	t.Helper()
	log := zaptest.NewLogger(t)
	return NewCollector(css.NewParser(log), f, log)
}

func staticFetcher(content string, seen *[]string) fetch.Fetcher {
	return fetch.FetcherFunc(func(_ context.Context, url string) ([]byte, error) {
		if seen != nil {
			*seen = append(*seen, url)
		}
		return []byte(content), nil
	})
}

func parse(t *testing.T, markup string) *html.Document {
	t.Helper()
	doc, err := html.Parse(markup)
	require.NoError(t, err)
	return doc
}

func render(t *testing.T, doc *html.Document) string {
	t.Helper()
	out, err := doc.HTML()
	require.NoError(t, err)
	return out
}

func TestCollect_StyleTags(t *testing.T) {
	doc := parse(t, `<style>h1 { color: #ffcc00; }</style><h1>Hello World!</h1>`)

	res, err := newCollector(t, nil).Collect(context.Background(), doc, Options{})
	require.NoError(t, err)

	assert.Equal(t, "h1 { color: #ffcc00; }\n", res.CSS)
	assert.Equal(t, 1, res.Stats.StyleTagsRemoved)
	assert.Equal(t, `<h1>Hello World!</h1>`, render(t, doc))
}

func TestCollect_ExternalFirst(t *testing.T) {
	doc := parse(t, `<style>h1 {color: #fc0;}</style><link rel="stylesheet" href="test.css"><h1>Hello World!</h1>`)

	var seen []string
	c := newCollector(t, staticFetcher("p {color: #999}", &seen))
	res, err := c.Collect(context.Background(), doc, Options{
		RootURL:     "http://server.com",
		RelativeURL: "http://server.com/parent/child/",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"http://server.com/parent/child/test.css"}, seen)
	assert.Equal(t, "p {color: #999}\nh1 {color: #fc0;}\n", res.CSS)
	assert.Equal(t, 1, res.Stats.LinksInlined)
	assert.Equal(t, `<h1>Hello World!</h1>`, render(t, doc))
}

func TestCollect_LinkWithoutRules(t *testing.T) {
	doc := parse(t, `<link rel="stylesheet" href="empty.css"><h1>x</h1>`)

	res, err := newCollector(t, staticFetcher("/* not a stylesheet */", nil)).Collect(context.Background(), doc, Options{})
	require.NoError(t, err)

	assert.Empty(t, res.CSS)
	assert.Equal(t, 1, res.Stats.LinksSkipped)
	assert.Equal(t, `<link rel="stylesheet" href="empty.css"/><h1>x</h1>`, render(t, doc))
}

func TestCollect_LinkWithoutHref(t *testing.T) {
	doc := parse(t, `<link rel="stylesheet"><h1>x</h1>`)

	res, err := newCollector(t, nil).Collect(context.Background(), doc, Options{})
	require.NoError(t, err)

	assert.Empty(t, res.CSS)
	assert.Len(t, doc.LinkTags(), 1)
}

func TestCollect_FetchError(t *testing.T) {
	doc := parse(t, `<link rel="stylesheet" href="http://example.com/a.css"><h1>x</h1>`)

	failing := fetch.FetcherFunc(func(_ context.Context, url string) ([]byte, error) {
		return nil, &fetch.Error{URL: url, Err: errors.New("boom")}
	})
	_, err := newCollector(t, failing).Collect(context.Background(), doc, Options{})
	require.Error(t, err)

	var fe *fetch.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "http://example.com/a.css", fe.URL)

	// without a fetcher the link cannot be resolved either
	_, err = newCollector(t, nil).Collect(context.Background(), doc, Options{})
	require.True(t, errors.As(err, &fe))
	assert.ErrorIs(t, err, errNoFetcher)
}

func TestCollect_PreserveMediaQueries(t *testing.T) {
	doc := parse(t, `<style>@media print { p { color: red } } h1 { color: blue }</style><style>h2 { color: green }</style><h1>x</h1>`)

	opts := Options{PreserveMediaQueries: true}
	res, err := newCollector(t, nil).Collect(context.Background(), doc, opts)
	require.NoError(t, err)

	assert.Contains(t, res.CSS, "h1 {")
	assert.Contains(t, res.CSS, "color: blue;")
	assert.Contains(t, res.CSS, "h2 { color: green }")
	assert.NotContains(t, res.CSS, "@media")
	assert.Equal(t, 1, res.Stats.StyleTagsRetained)
	assert.Equal(t, 1, res.Stats.StyleTagsRemoved)
	assert.Equal(t, 1, res.Stats.PreservedRules)

	styles := doc.StyleTags()
	require.Len(t, styles, 1)
	assert.Contains(t, styles[0].Text(), "@media print {")
	assert.NotContains(t, styles[0].Text(), "h1")
	assert.NotContains(t, styles[0].Text(), "h2")

	// a second pass finds the same preserved rules and nothing to cascade
	first := render(t, doc)
	res, err = newCollector(t, nil).Collect(context.Background(), doc, opts)
	require.NoError(t, err)
	assert.Equal(t, first, render(t, doc))
	assert.Empty(t, res.Stats.StyleTagsRemoved)
}

func TestCollect_SameMarkupSameSplit(t *testing.T) {
	markup := `<style>
@import url("base.css");
@media screen and (min-width: 480px) { #a > p, .b + span { width: 480px } }
h1,  h2 ~ p { font: 12px / 1.5 "A B", serif !important }
@font-face { font-family: Foo; src: url(foo.woff) }
</style><style>p { margin: 0 auto }</style><h1>x</h1>`

	split := func() (string, []string) {
		doc := parse(t, markup)
		res, err := newCollector(t, nil).Collect(context.Background(), doc, Options{PreserveMediaQueries: true})
		require.NoError(t, err)
		var retained []string
		for _, s := range doc.StyleTags() {
			retained = append(retained, s.Text())
		}
		return res.CSS, retained
	}

	cssA, retainedA := split()
	cssB, retainedB := split()
	assert.Equal(t, cssA, cssB)
	assert.Equal(t, retainedA, retainedB)

	require.Len(t, retainedA, 1)
	assert.Contains(t, retainedA[0], "@media screen and (min-width: 480px) {")
	assert.Contains(t, retainedA[0], "#a > p, .b + span {")
	assert.Contains(t, cssA, "h1, h2 ~ p {")
	assert.Contains(t, cssA, `font: 12px / 1.5 "A B", serif !important;`)
	assert.Contains(t, cssA, "p { margin: 0 auto }")
}

func TestCollect_PreserveUnknownRules(t *testing.T) {
	markup := `<style>@keyframes spin { from { opacity: 0 } } p { color: red }</style><p>x</p>`

	res, err := newCollector(t, nil).Collect(context.Background(), parse(t, markup), Options{PreserveMediaQueries: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.StyleTagsRemoved)

	doc := parse(t, markup)
	res, err = newCollector(t, nil).Collect(context.Background(), doc, Options{PreserveMediaQueries: true, PreserveUnknownRules: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.StyleTagsRetained)
	require.Len(t, doc.StyleTags(), 1)
	assert.Contains(t, doc.StyleTags()[0].Text(), "@keyframes")
}

func TestCollect_ExtraCSS(t *testing.T) {
	doc := parse(t, `<style>h1 { color: red }</style><h1>x</h1>`)

	res, err := newCollector(t, nil).Collect(context.Background(), doc, Options{}, "h1 { color: blue }", "p { margin: 0 }")
	require.NoError(t, err)

	assert.Equal(t, "h1 { color: red }\nh1 { color: blue }\np { margin: 0 }\n", res.CSS)
}

func TestPreserved(t *testing.T) {
	tests := []struct {
		typ             css.RuleType
		preserveUnknown bool
		expected        bool
	}{
		{css.MediaRule, false, true},
		{css.ImportRule, false, true},
		{css.FontFaceRule, false, true},
		{css.StyleRule, true, false},
		{css.UnknownRule, false, false},
		{css.UnknownRule, true, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Preserved(css.Rule{Type: tt.typ}, tt.preserveUnknown), "type %v unknown %v", tt.typ, tt.preserveUnknown)
	}
}
