package catalog

import (
	"strings"
	"unicode/utf8"
)

// Budget is the default maximum length of a whisper in characters.
const Budget = 499

// Chunk joins labels with ", " into messages no longer than budget
// characters. The first message begins with prefix. No label is split across
// messages; a label which alone exceeds the budget is sent by itself, and the
// prefix likewise if it leaves no room for the first label.
// The result is nil if there are no labels.
func Chunk(prefix string, labels []string, budget int) []string {
	if len(labels) == 0 {
		return nil
	}
	var r []string
	var b strings.Builder
	b.WriteString(prefix)
	n := utf8.RuneCountInString(prefix)
	empty := true
	for _, l := range labels {
		k := utf8.RuneCountInString(l)
		sep := 0
		if !empty {
			sep = len(", ")
		}
		if b.Len() > 0 && n+sep+k > budget {
			r = append(r, b.String())
			b.Reset()
			n, empty = 0, true
		}
		if !empty {
			b.WriteString(", ")
			n += sep
		}
		b.WriteString(l)
		n += k
		empty = false
	}
	return append(r, b.String())
}
