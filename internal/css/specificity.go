package css

import (
	"regexp"
	"strings"
)

// Specificity calculation regexes (RE2 compatible)
var (
	attrRegex          = regexp.MustCompile(`\[[^\]]*\]`)
	pseudoElementRegex = regexp.MustCompile(`::[a-zA-Z0-9_-]+(\([^)]*\))?`)
	pseudoClassRegex   = regexp.MustCompile(`:[a-zA-Z0-9_-]+(\([^)]*\))?`)
	idRegex            = regexp.MustCompile(`#[a-zA-Z0-9_-]+`)
	classRegex         = regexp.MustCompile(`\.[a-zA-Z0-9_-]+`)
	elementRegex       = regexp.MustCompile(`(?:^|[\s>+~])([a-zA-Z][a-zA-Z0-9_-]*)`)
)

// CSS2 pseudo-elements that may be written with a single colon
var legacyPseudoElements = map[string]bool{
	":before": true, ":after": true, ":first-line": true, ":first-letter": true,
}

// EstimateSpecificity calculates specificity lexically by counting
// occurrences of each selector kind. It is used for selectors the matching
// engine cannot compile, so it never fails.
func EstimateSpecificity(selector string) Specificity {
	spec := Specificity{}

	// attribute values may contain '#', '.' or ':', strip them first
	spec.Classes += len(attrRegex.FindAllString(selector, -1))
	rest := attrRegex.ReplaceAllString(selector, " ")

	spec.Elements += len(pseudoElementRegex.FindAllString(rest, -1))
	rest = pseudoElementRegex.ReplaceAllString(rest, " ")

	for _, match := range pseudoClassRegex.FindAllString(rest, -1) {
		name := strings.ToLower(match)
		if i := strings.IndexByte(name, '('); i >= 0 {
			name = name[:i]
		}
		if legacyPseudoElements[name] {
			spec.Elements++
		} else {
			spec.Classes++
		}
	}
	rest = pseudoClassRegex.ReplaceAllString(rest, " ")

	spec.IDs = len(idRegex.FindAllString(rest, -1))
	rest = idRegex.ReplaceAllString(rest, " ")

	spec.Classes += len(classRegex.FindAllString(rest, -1))
	rest = classRegex.ReplaceAllString(rest, " ")

	spec.Elements += len(elementRegex.FindAllString(rest, -1))

	return spec
}
