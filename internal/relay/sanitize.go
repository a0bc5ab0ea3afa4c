package relay

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// CleanContent strips all markup from message content. Entities the policy
// escapes are decoded again since clients render plain text.
func CleanContent(s string) string {
	return html.UnescapeString(policy.Sanitize(s))
}
