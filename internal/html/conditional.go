package html

import (
	"regexp"
	"strings"
)

// conditional comment regions, including the form where the serializer
// escaped the closing marker
var conditionalRegex = regexp.MustCompile(`(?s)<!--\[if [^\]]+\].*?(?:<|&lt;)!\[endif\]-->`)

var unescaper = strings.NewReplacer("&gt;", ">", "&lt;", "<")

// RestoreConditionalComments unescapes angle brackets inside Outlook style
// conditional comments (<!--[if mso]> ... <![endif]-->) so the markup they
// hide survives serialization. Text outside those regions is untouched.
func RestoreConditionalComments(markup string) string {
	return conditionalRegex.ReplaceAllStringFunc(markup, unescaper.Replace)
}
