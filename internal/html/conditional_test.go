package html

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRestoreConditionalComments(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "escaped markup",
			input:    "<!--[if mso]>&lt;p&gt;special&lt;/p&gt;&lt;![endif]-->",
			expected: "<!--[if mso]><p>special</p><![endif]-->",
		},
		{
			name:     "outside untouched",
			input:    "&lt;b&gt;<!--[if mso]>&lt;i&gt;<![endif]-->&lt;/b&gt;",
			expected: "&lt;b&gt;<!--[if mso]><i><![endif]-->&lt;/b&gt;",
		},
		{
			name:     "multi line",
			input:    "<!--[if condition]>\n    &lt;p&gt;special&lt;/p&gt;\n<![endif]-->",
			expected: "<!--[if condition]>\n    <p>special</p>\n<![endif]-->",
		},
		{
			name:     "two regions",
			input:    "<!--[if a]>&gt;<![endif]-->&gt;<!--[if b]>&lt;<![endif]-->",
			expected: "<!--[if a]>><![endif]-->&gt;<!--[if b]><<![endif]-->",
		},
		{
			name:     "plain comment",
			input:    "<!-- &lt;normal&gt; -->",
			expected: "<!-- &lt;normal&gt; -->",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RestoreConditionalComments(tt.input))
		})
	}
}
