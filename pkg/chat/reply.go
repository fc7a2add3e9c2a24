package chat

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("(?s)^```[A-Za-z0-9_-]*[ \\t]*\\r?\\n(.*?)\\r?\\n?```$")

// StripCodeFence removes a single markdown code fence wrapping the whole
// reply. Anything else is returned trimmed but otherwise untouched.
func StripCodeFence(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if m := fenceRe.FindStringSubmatch(trimmed); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}
