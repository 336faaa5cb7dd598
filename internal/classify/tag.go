// Package classify decides, without executing anything, whether a captured
// command blob is a single interactive command or a multi-statement script and
// which scripting language it is most likely written in. It also provides the
// whitespace normalization applied to commands before they are stored.
//
// Everything in this package is a pure function over its inputs plus a rule
// table that is compiled once at start-up, so it is safe for concurrent use.
package classify

import "strings"

// Tag is the canonical short identifier for a language.
type Tag string

const (
	TagCmd        Tag = "cmd"
	TagPowerShell Tag = "ps1"
	TagShell      Tag = "shell"
	TagPython     Tag = "py"
	TagSQL        Tag = "sql"
	TagJavaScript Tag = "js"
	TagManual     Tag = "manual"
	TagUnknown    Tag = "unknown"
)

var knownTags = map[Tag]bool{
	TagCmd:        true,
	TagPowerShell: true,
	TagShell:      true,
	TagPython:     true,
	TagSQL:        true,
	TagJavaScript: true,
	TagManual:     true,
	TagUnknown:    true,
}

// ParseTag returns the Tag for s when s is already a canonical tag.
func ParseTag(s string) (Tag, bool) {
	t := Tag(strings.ToLower(strings.TrimSpace(s)))
	return t, knownTags[t]
}

func (t Tag) String() string {
	if t == "" {
		return string(TagUnknown)
	}
	return string(t)
}

// Known reports whether t is anything other than the unknown tag.
func (t Tag) Known() bool {
	return t != "" && t != TagUnknown
}

// Kind labels used in stored records.
const (
	KindScript  = "script"
	KindCommand = "command"
)

// Verdict is the outcome of classifying one blob. It is produced once and
// never mutated.
type Verdict struct {
	IsScript bool `json:"is_script"`
	Language Tag  `json:"language"`
}

// Kind returns "script" or "command".
func (v Verdict) Kind() string {
	if v.IsScript {
		return KindScript
	}
	return KindCommand
}
