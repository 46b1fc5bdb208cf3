package css

import (
	"io"
	"strings"
)

// Format controls how declarations are turned into text.
type Format struct {
	NameSpacer string // written between property name and colon-separated value
	Separator  string // written between declarations
	Indent     string // one level of indentation inside blocks
}

var (
	// InlineFormat produces style attribute values: "color:red;margin:0".
	InlineFormat = Format{NameSpacer: "", Separator: ";", Indent: ""}
	// SheetFormat produces stylesheet text.
	SheetFormat = Format{NameSpacer: " ", Separator: ";", Indent: "    "}
)

// FormatDeclarations writes declarations as "name:value" pairs.
func FormatDeclarations(decls []Declaration, f Format) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, formatDeclaration(d, f))
	}
	return strings.Join(parts, f.Separator)
}

func formatDeclaration(d Declaration, f Format) string {
	value := d.Value
	if d.Important {
		value += " !important"
	}
	return d.Property + ":" + f.NameSpacer + value
}

// DeclarationList is an insertion ordered property map. Setting a property
// that already exists replaces its value in place.
type DeclarationList struct {
	decls []Declaration
	index map[string]int
}

// Set stores d, replacing any previous declaration of the same property.
func (l *DeclarationList) Set(d Declaration) {
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if i, ok := l.index[d.Property]; ok {
		l.decls[i] = d
		return
	}
	l.index[d.Property] = len(l.decls)
	l.decls = append(l.decls, d)
}

// Format serializes the list.
func (l *DeclarationList) Format(f Format) string {
	return FormatDeclarations(l.decls, f)
}

// WriteTo writes the stylesheet to w in source order, implementing io.WriterTo.
func (s *Stylesheet) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	for i, r := range s.Rules {
		if i > 0 {
			sb.WriteString("\n")
		}
		writeRule(&sb, r, SheetFormat, 0)
	}
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// String returns the CSS text of the stylesheet.
func (s *Stylesheet) String() string {
	var sb strings.Builder
	s.WriteTo(&sb) //nolint:errcheck
	return sb.String()
}

// String returns the CSS text of the rule.
func (r Rule) String() string {
	var sb strings.Builder
	writeRule(&sb, r, SheetFormat, 0)
	return sb.String()
}

func writeRule(sb *strings.Builder, r Rule, f Format, depth int) {
	indent := strings.Repeat(f.Indent, depth)
	sb.WriteString(indent)

	if r.Type == StyleRule {
		sb.WriteString(r.SelectorText())
		writeBlock(sb, r, f, depth)
		return
	}

	sb.WriteString(r.AtKeyword)
	if r.Prelude != "" {
		sb.WriteString(" ")
		sb.WriteString(r.Prelude)
	}
	if !r.HasBlock {
		sb.WriteString(";")
		return
	}
	writeBlock(sb, r, f, depth)
}

func writeBlock(sb *strings.Builder, r Rule, f Format, depth int) {
	indent := strings.Repeat(f.Indent, depth)
	inner := indent + f.Indent

	sb.WriteString(" {")
	for _, d := range r.Declarations {
		sb.WriteString("\n")
		sb.WriteString(inner)
		sb.WriteString(formatDeclaration(d, f))
		sb.WriteString(f.Separator)
	}
	for _, nested := range r.Rules {
		sb.WriteString("\n")
		writeRule(sb, nested, f, depth+1)
	}
	if r.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(inner)
		sb.WriteString(r.Body)
	}
	sb.WriteString("\n")
	sb.WriteString(indent)
	sb.WriteString("}")
}
