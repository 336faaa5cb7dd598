package classify

import (
	"regexp"
	"strings"
)

var (
	spaceRunRe = regexp.MustCompile(` {4,}`)
	tabRunRe   = regexp.MustCompile(`\t+`)
)

// Normalize canonicalizes whitespace in a command before storage. Space runs
// must collapse before tab runs so that the inserted escapes are not seen as
// tabs.
func Normalize(blob string) string {
	blob = spaceRunRe.ReplaceAllLiteralString(blob, `\t`)
	blob = tabRunRe.ReplaceAllLiteralString(blob, `\t`)
	blob = strings.ReplaceAll(blob, "\r", `\r`)
	return strings.TrimSpace(blob)
}
