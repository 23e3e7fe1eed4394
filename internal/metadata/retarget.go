package metadata

import (
	"regexp"
)

var directoryRe = regexp.MustCompile(`(?s)<Directory>.*?</Directory>`)

// RetargetDirectory replaces the content of every Directory element with dir
// and reports how many elements were rewritten.
func RetargetDirectory(content, dir string) (string, int) {
	n := 0
	repl := "<Directory>" + escapeText(dir) + "</Directory>"
	out := directoryRe.ReplaceAllStringFunc(content, func(string) string {
		n++
		return repl
	})
	return out, n
}
