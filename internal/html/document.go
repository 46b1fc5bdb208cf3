package html

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/derpies/inliner/internal/css"
)

// markup containing any of these is treated as a complete document,
// everything else is parsed and serialized as a body fragment
var documentRegex = regexp.MustCompile(`(?i)<(!doctype|html|head|body)[\s>/]`)

// Document wraps goquery.Document with the operations the inliner needs:
// stylesheet tag access, an element arena for selector matching and
// serialization.
type Document struct {
	doc      *goquery.Document
	fragment bool

	// element arena, filled by Index in document order
	elements []*html.Node
	index    map[*html.Node]int

	selectors map[string]compiled
}

type compiled struct {
	sel cascadia.Sel
	err error
}

// Node wraps goquery.Selection holding a single element
type Node struct {
	selection *goquery.Selection
}

// Parse parses markup into a Document. Markup without html, head, body or
// doctype tags is parsed as a fragment so it serializes without the implied
// document structure.
func Parse(markup string) (*Document, error) {
	d := &Document{selectors: make(map[string]compiled)}

	if documentRegex.MatchString(markup) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if err != nil {
			return nil, fmt.Errorf("failed to parse HTML: %w", err)
		}
		d.doc = doc
		return d, nil
	}

	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML fragment: %w", err)
	}
	root := &html.Node{Type: html.DocumentNode}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	d.doc = goquery.NewDocumentFromNode(root)
	d.fragment = true
	return d, nil
}

// IsFragment reports whether the markup was parsed as a body fragment.
func (d *Document) IsFragment() bool {
	return d.fragment
}

// LinkTags returns all <link rel="stylesheet"> elements in document order.
func (d *Document) LinkTags() []*Node {
	var nodes []*Node
	d.doc.Find("link").Each(func(_ int, s *goquery.Selection) {
		rel, _ := s.Attr("rel")
		if slices.Contains(strings.Fields(strings.ToLower(rel)), "stylesheet") {
			nodes = append(nodes, &Node{selection: s})
		}
	})
	return nodes
}

// StyleTags returns all <style> elements in document order.
func (d *Document) StyleTags() []*Node {
	var nodes []*Node
	d.doc.Find("style").Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, &Node{selection: s})
	})
	return nodes
}

// HTML returns the complete HTML document as string
func (d *Document) HTML() (string, error) {
	out, err := d.doc.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize HTML: %w", err)
	}
	return out, nil
}

// Index assigns every element currently in the tree an index in document
// order and returns the number of elements. Elements added later are not
// visible to Select.
func (d *Document) Index() int {
	d.elements = d.elements[:0]
	d.index = make(map[*html.Node]int)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			d.index[n] = len(d.elements)
			d.elements = append(d.elements, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.doc.Get(0))
	return len(d.elements)
}

func (d *Document) compile(selector string) (cascadia.Sel, error) {
	if c, ok := d.selectors[selector]; ok {
		return c.sel, c.err
	}
	sel, err := cascadia.Parse(selector)
	if err != nil {
		err = &UnsupportedSelectorError{Selector: selector, Err: err}
	}
	d.selectors[selector] = compiled{sel: sel, err: err}
	return sel, err
}

// Select returns the indices of all indexed elements matching selector in
// document order. Selectors the engine cannot evaluate produce an
// *UnsupportedSelectorError.
func (d *Document) Select(selector string) ([]int, error) {
	if d.index == nil {
		d.Index()
	}
	sel, err := d.compile(selector)
	if err != nil {
		return nil, err
	}
	var matches []int
	for _, n := range cascadia.QueryAll(d.doc.Get(0), sel) {
		if i, ok := d.index[n]; ok {
			matches = append(matches, i)
		}
	}
	return matches, nil
}

// Specificity returns the specificity of a single selector. Selectors the
// engine cannot compile are estimated lexically.
func (d *Document) Specificity(selector string) css.Specificity {
	sel, err := d.compile(selector)
	if err != nil {
		return css.EstimateSpecificity(selector)
	}
	s := sel.Specificity()
	return css.Specificity{IDs: s[0], Classes: s[1], Elements: s[2]}
}

// Style returns the style attribute of the element at index i.
func (d *Document) Style(i int) (string, bool) {
	return attr(d.elements[i], "style")
}

// SetStyle sets the style attribute of the element at index i.
func (d *Document) SetStyle(i int, value string) {
	setAttr(d.elements[i], "style", value)
}

// Node implementation

// Attr returns the value of the named attribute
func (n *Node) Attr(name string) (string, bool) {
	return n.selection.Attr(name)
}

// Text returns the text and comment content of the element's direct
// children joined by newlines, which for <style> is the stylesheet text.
func (n *Node) Text() string {
	var parts []string
	for c := n.selection.Get(0).FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode || c.Type == html.CommentNode {
			parts = append(parts, c.Data)
		}
	}
	return strings.Join(parts, "\n")
}

// Remove detaches the element from the document
func (n *Node) Remove() {
	n.selection.Remove()
}

// ReplaceWithStyle replaces the element in place by a new <style> element
// carrying the same attributes and the given content.
func (n *Node) ReplaceWithStyle(content string) {
	old := n.selection.Get(0)
	style := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr:     slices.Clone(old.Attr),
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: content})
	n.selection.ReplaceWithNodes(style)
}

// OuterHTML returns the outer HTML content
func (n *Node) OuterHTML() string {
	out, err := goquery.OuterHtml(n.selection)
	if err != nil {
		return ""
	}
	return out
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}
