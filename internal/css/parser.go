package css

import (
	"errors"
	"io"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser handles CSS parsing into a Stylesheet
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// Parse parses CSS text into a Stylesheet. Parsing is lenient: malformed
// fragments are skipped and recorded in Stylesheet.Warnings.
// The optional source parameter identifies what's being parsed (for debug logging).
func (p *Parser) Parse(text string, source ...string) *Stylesheet {
	if len(source) > 0 && source[0] != "" {
		p.log.Debug("Parsing CSS", zap.String("source", source[0]), zap.Int("bytes", len(text)))
	}

	s := &state{
		Parser: p,
		parser: css.NewParser(parse.NewInputString(text), false),
		text:   text,
		sheet:  &Stylesheet{},
	}
	s.sheet.Rules = s.ruleList(false)
	for i := range s.sheet.Rules {
		s.sheet.Rules[i].SourceOrder = i
	}
	return s.sheet
}

// state is the grammar walk over one stylesheet
type state struct {
	*Parser
	parser *css.Parser
	text   string
	offset int
	span   string // source consumed by the last grammar step
	sheet  *Stylesheet
	done   bool
	errs   int
}

// next advances the grammar walk. The grammar drops whitespace around
// combinators and commas, so selector, prelude and value text is rebuilt
// from the consumed source span instead of the grammar values.
func (s *state) next() (css.GrammarType, []byte) {
	gt, _, data := s.parser.Next()
	end := min(max(s.parser.Offset(), s.offset), len(s.text))
	s.span = s.text[s.offset:end]
	s.offset = end
	return gt, data
}

// failed handles ErrorGrammar and reports whether the input is exhausted.
func (s *state) failed() bool {
	err := s.parser.Err()
	if err == nil || errors.Is(err, io.EOF) {
		s.done = true
		return true
	}
	s.errs++
	s.sheet.Warnings = append(s.sheet.Warnings, err.Error())
	s.log.Debug("CSS parse error", zap.Error(err))
	// every Next consumes input, this only guards against a parser stuck at the end
	if s.errs > 1<<16 {
		s.done = true
		return true
	}
	return false
}

// ruleList collects rules until the end of input or, when nested, until the
// end of the enclosing at-rule block.
func (s *state) ruleList(nested bool) []Rule {
	var (
		rules   []Rule
		pending []string
	)
	for !s.done {
		gt, data := s.next()
		switch gt {
		case css.ErrorGrammar:
			if s.failed() {
				return rules
			}
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			if nested {
				return rules
			}
		case css.AtRuleGrammar:
			rules = append(rules, s.statement(data))
		case css.BeginAtRuleGrammar:
			rules = append(rules, s.atRule(data))
		case css.QualifiedRuleGrammar:
			// one selector of a group, the last one comes with BeginRulesetGrammar
			pending = append(pending, splitSelectors(s.selectorTokens())...)
		case css.BeginRulesetGrammar:
			pending = append(pending, splitSelectors(s.selectorTokens())...)
			rule := Rule{Type: StyleRule, Selectors: pending}
			rule.Declarations, _ = s.declarations(css.EndRulesetGrammar)
			pending = nil
			if len(rule.Selectors) == 0 {
				s.sheet.Warnings = append(s.sheet.Warnings, "ruleset without selector")
				continue
			}
			rules = append(rules, rule)
		}
	}
	return rules
}

// statement builds an at-rule without a block, such as @import or @charset.
func (s *state) statement(data []byte) Rule {
	keyword := strings.ToLower(string(data))
	rule := Rule{
		Type:      ruleTypeOf(keyword),
		AtKeyword: keyword,
		Prelude:   tokensText(nil, s.preludeTokens()),
	}
	s.log.Debug("Parsed at-rule", zap.String("rule", keyword), zap.String("prelude", rule.Prelude))
	return rule
}

// atRule builds an at-rule with a block. Depending on the at-keyword the
// parser reports either nested rules, declarations or raw tokens.
func (s *state) atRule(data []byte) Rule {
	keyword := strings.ToLower(string(data))
	rule := Rule{
		Type:      ruleTypeOf(keyword),
		AtKeyword: keyword,
		Prelude:   tokensText(nil, s.preludeTokens()),
		HasBlock:  true,
	}

	var body strings.Builder
	for !s.done {
		gt, data := s.next()
		switch gt {
		case css.ErrorGrammar:
			if s.failed() {
				rule.Body = strings.TrimSpace(body.String())
				return rule
			}
		case css.EndAtRuleGrammar:
			rule.Body = strings.TrimSpace(body.String())
			s.log.Debug("Parsed at-rule block", zap.String("rule", keyword), zap.String("prelude", rule.Prelude),
				zap.Int("rules", len(rule.Rules)), zap.Int("declarations", len(rule.Declarations)))
			return rule
		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			if d, ok := declaration(gt, data, s.valueTokens(gt)); ok {
				rule.Declarations = append(rule.Declarations, d)
			}
		case css.AtRuleGrammar:
			rule.Rules = append(rule.Rules, s.statement(data))
		case css.BeginAtRuleGrammar:
			rule.Rules = append(rule.Rules, s.atRule(data))
		case css.QualifiedRuleGrammar, css.BeginRulesetGrammar:
			// hand the ruleset back to the rule list walker
			rule.Rules = append(rule.Rules, s.nestedRuleset(gt)...)
		case css.TokenGrammar:
			body.Write(data)
		}
	}
	rule.Body = strings.TrimSpace(body.String())
	return rule
}

// nestedRuleset finishes a ruleset whose first grammar event was already
// consumed by an at-rule walker.
func (s *state) nestedRuleset(gt css.GrammarType) []Rule {
	var selectors []string
	for {
		selectors = append(selectors, splitSelectors(s.selectorTokens())...)
		if gt == css.BeginRulesetGrammar {
			break
		}
		gt, _ = s.next()
		if gt == css.ErrorGrammar {
			if s.failed() {
				return nil
			}
			continue
		}
		if gt != css.QualifiedRuleGrammar && gt != css.BeginRulesetGrammar {
			return nil
		}
	}
	rule := Rule{Type: StyleRule, Selectors: selectors}
	rule.Declarations, _ = s.declarations(css.EndRulesetGrammar)
	return []Rule{rule}
}

// declarations collects declarations until the end grammar. Nested rulesets
// are parsed and dropped since they cannot be inlined as written.
func (s *state) declarations(end css.GrammarType) ([]Declaration, bool) {
	var decls []Declaration
	for !s.done {
		gt, data := s.next()
		switch gt {
		case end:
			return decls, true
		case css.ErrorGrammar:
			if s.failed() {
				return decls, false
			}
		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			if d, ok := declaration(gt, data, s.valueTokens(gt)); ok {
				decls = append(decls, d)
			}
		case css.QualifiedRuleGrammar, css.BeginRulesetGrammar:
			dropped := s.nestedRuleset(gt)
			s.log.Debug("Dropping nested ruleset", zap.Int("rules", len(dropped)))
		case css.BeginAtRuleGrammar:
			dropped := s.atRule(data)
			s.log.Debug("Dropping nested at-rule", zap.String("rule", dropped.AtKeyword))
		}
	}
	return decls, false
}

// declaration converts a declaration grammar event into a Declaration.
func declaration(gt css.GrammarType, data []byte, values []css.Token) (Declaration, bool) {
	property := string(data)
	if gt == css.DeclarationGrammar {
		property = NormalizePropertyName(property)
	}
	if property == "" {
		return Declaration{}, false
	}

	// strip trailing "! important", the parser keeps it among the value tokens
	important := false
	n := len(values)
	for n > 0 && values[n-1].TokenType == css.WhitespaceToken {
		n--
	}
	if n >= 2 && values[n-1].TokenType == css.IdentToken && strings.EqualFold(string(values[n-1].Data), "important") {
		i := n - 2
		for i >= 0 && values[i].TokenType == css.WhitespaceToken {
			i--
		}
		if i >= 0 && values[i].TokenType == css.DelimToken && string(values[i].Data) == "!" {
			important = true
			values = values[:i]
		}
	}

	value := tokensText(nil, values)
	if value == "" && gt == css.DeclarationGrammar {
		return Declaration{}, false
	}
	return Declaration{Property: property, Value: value, Important: important}, true
}

// tokensText joins raw token data, collapsing whitespace runs to one space.
func tokensText(data []byte, values []css.Token) string {
	var sb strings.Builder
	sb.Write(data)
	space := false
	for _, t := range values {
		switch t.TokenType {
		case css.WhitespaceToken:
			space = true
			continue
		case css.CommentToken:
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.Write(t.Data)
	}
	return strings.TrimSpace(sb.String())
}

// selectorTokens returns the selector tokens of the last ruleset step.
func (s *state) selectorTokens() []css.Token {
	return trimEnd(relex(s.span))
}

// preludeTokens returns the tokens between the at-keyword and the start of
// the block or the end of the statement.
func (s *state) preludeTokens() []css.Token {
	return trimEnd(after(relex(s.span), css.AtKeywordToken))
}

// valueTokens returns the tokens after the property colon. Custom property
// values already come raw from the grammar.
func (s *state) valueTokens(gt css.GrammarType) []css.Token {
	if gt == css.CustomPropertyGrammar {
		return s.parser.Values()
	}
	return trimEnd(after(relex(s.span), css.ColonToken))
}

// relex tokenizes a source span again, keeping whitespace.
func relex(span string) []css.Token {
	l := css.NewLexer(parse.NewInputString(span))
	var tokens []css.Token
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			return tokens
		}
		tokens = append(tokens, css.Token{TokenType: tt, Data: data})
	}
}

// after returns the tokens following the first token of type tt.
func after(tokens []css.Token, tt css.TokenType) []css.Token {
	for i, t := range tokens {
		if t.TokenType == tt {
			return tokens[i+1:]
		}
	}
	return nil
}

// trimEnd drops the block or statement terminator and any blanks before it.
func trimEnd(tokens []css.Token) []css.Token {
	n := len(tokens)
	for n > 0 && terminator(tokens[n-1].TokenType) {
		n--
	}
	return tokens[:n]
}

func terminator(tt css.TokenType) bool {
	switch tt {
	case css.WhitespaceToken, css.CommentToken, css.SemicolonToken, css.LeftBraceToken, css.RightBraceToken:
		return true
	}
	return false
}

// splitSelectors splits selector tokens on commas outside of parentheses
// and attribute brackets.
func splitSelectors(values []css.Token) []string {
	var (
		selectors []string
		depth     int
		start     int
	)
	flush := func(end int) {
		if sel := tokensText(nil, values[start:end]); sel != "" {
			selectors = append(selectors, sel)
		}
	}
	for i, t := range values {
		switch t.TokenType {
		case css.FunctionToken, css.LeftParenthesisToken, css.LeftBracketToken:
			depth++
		case css.RightParenthesisToken, css.RightBracketToken:
			if depth > 0 {
				depth--
			}
		case css.CommaToken:
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(values))
	return selectors
}

// NormalizePropertyName normalizes CSS property names. Custom properties are
// case sensitive and kept as written.
func NormalizePropertyName(property string) string {
	property = strings.TrimSpace(property)
	if strings.HasPrefix(property, "--") {
		return property
	}
	return strings.ToLower(property)
}
