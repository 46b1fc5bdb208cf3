package css

import (
	"fmt"
	"strings"
)

// Specificity represents CSS specificity with individual components
// Following CSS specification: inline, IDs, classes/attributes/pseudo-classes, elements/pseudo-elements
type Specificity struct {
	Inline   int // style="" attribute, never set by selectors
	IDs      int // #id selectors
	Classes  int // .class, [attr], :pseudo-class
	Elements int // element, ::pseudo-element
}

// Int collapses the specificity into a single comparable number by
// concatenating the decimal digits of each component, e.g. (0,1,0,1) is 101
// and (0,0,12,1) is 121.
func (s Specificity) Int() int {
	n := 0
	for _, c := range []int{s.Inline, s.IDs, s.Classes, s.Elements} {
		shift := 10
		for v := c; v >= 10; v /= 10 {
			shift *= 10
		}
		n = n*shift + c
	}
	return n
}

func (s Specificity) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", s.Inline, s.IDs, s.Classes, s.Elements)
}

// RuleType identifies the kind of a top level stylesheet item.
type RuleType int

const (
	StyleRule RuleType = iota
	MediaRule
	ImportRule
	FontFaceRule
	CharsetRule
	PageRule
	NamespaceRule
	UnknownRule
)

func (t RuleType) String() string {
	switch t {
	case StyleRule:
		return "style"
	case MediaRule:
		return "media"
	case ImportRule:
		return "import"
	case FontFaceRule:
		return "font-face"
	case CharsetRule:
		return "charset"
	case PageRule:
		return "page"
	case NamespaceRule:
		return "namespace"
	default:
		return "unknown"
	}
}

// ruleTypeOf maps a lower-cased at-keyword (with the leading @) to its type.
func ruleTypeOf(atKeyword string) RuleType {
	switch atKeyword {
	case "@media":
		return MediaRule
	case "@import":
		return ImportRule
	case "@font-face":
		return FontFaceRule
	case "@charset":
		return CharsetRule
	case "@page":
		return PageRule
	case "@namespace":
		return NamespaceRule
	default:
		return UnknownRule
	}
}

// Rule represents a single CSS rule: either a style rule (selector group and
// declarations) or an at-rule with its prelude and nested content.
type Rule struct {
	Type         RuleType
	Selectors    []string      // style rules: selector group split on top level commas
	Declarations []Declaration // in source order
	AtKeyword    string        // at-rules: "@media", "@font-face", ...
	Prelude      string        // at-rules: text between the keyword and the block
	Rules        []Rule        // at-rules: nested rules (@media, @supports, @keyframes)
	Body         string        // at-rules: raw block content the parser did not structure
	HasBlock     bool          // at-rules: false for statements like @import
	SourceOrder  int           // position among the stylesheet's top level rules
}

// SelectorText returns the selector group as written in CSS.
func (r Rule) SelectorText() string {
	return strings.Join(r.Selectors, ", ")
}

// Declaration represents a single CSS property declaration
type Declaration struct {
	Property  string // CSS property name (normalized)
	Value     string // CSS property value
	Important bool   // !important flag
}

// Stylesheet represents the complete parsed CSS with all rules
type Stylesheet struct {
	Rules    []Rule   // All top level rules in source order
	Warnings []string // Recoverable problems met while parsing
}

// StyleRules returns the top level style rules in source order. Style rules
// nested inside at-rules are not included.
func (s *Stylesheet) StyleRules() []Rule {
	var rules []Rule
	for _, r := range s.Rules {
		if r.Type == StyleRule {
			rules = append(rules, r)
		}
	}
	return rules
}

// Partition splits the stylesheet into rules for which keep returns true and
// all others, preserving source order in both.
func (s *Stylesheet) Partition(keep func(Rule) bool) (kept, rest *Stylesheet) {
	kept, rest = &Stylesheet{}, &Stylesheet{}
	for _, r := range s.Rules {
		if keep(r) {
			kept.Rules = append(kept.Rules, r)
		} else {
			rest.Rules = append(rest.Rules, r)
		}
	}
	return kept, rest
}
