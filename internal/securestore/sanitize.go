package securestore

import (
	"regexp"
	"strings"
)

var (
	scriptBlock  = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	jsScheme     = regexp.MustCompile(`(?i)javascript:`)
	inlineHandle = regexp.MustCompile(`(?i)on\w+\s*=`)
)

// SanitizeInput strips script blocks, javascript: URLs and inline event
// handlers from user-supplied text.
func SanitizeInput(input string) string {
	out := scriptBlock.ReplaceAllString(input, "")
	out = jsScheme.ReplaceAllString(out, "")
	out = inlineHandle.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
