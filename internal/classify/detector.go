package classify

import "strings"

// Signal names the first heuristic that marked a blob as a script. The
// empty signal means the blob is a single command.
type Signal string

const (
	SignalNone              Signal = ""
	SignalMultiline         Signal = "multiline"
	SignalStatementBoundary Signal = "statement-boundaries"
	SignalControlFlow       Signal = "control-flow"
	SignalAssignments       Signal = "assignments"
	SignalControlOperators  Signal = "control-operators"
)

const signalRuleSetPrefix = "ruleset:"

// RuleSetSignal is the signal reported when a language rule set matched.
func RuleSetSignal(name string) Signal {
	return Signal(signalRuleSetPrefix + name)
}

// Detector separates single interactive commands from scripts.
type Detector struct {
	rules *RuleTable
}

// NewDetector returns a Detector over the given rule table.
func NewDetector(rules *RuleTable) *Detector {
	return &Detector{rules: rules}
}

// IsScript reports whether blob is a script. It never fails; anything it
// cannot classify is a command.
func (d *Detector) IsScript(blob string) bool {
	return d.Explain(blob) != SignalNone
}

// Explain returns the first signal that fired, checking the cheap
// structural signals before the language rule sets.
func (d *Detector) Explain(blob string) Signal {
	if strings.TrimSpace(blob) == "" {
		return SignalNone
	}
	if sig := d.structural(blob); sig != SignalNone {
		return sig
	}
	for i := range d.rules.Sets {
		rs := &d.rules.Sets[i]
		if rs.Enabled && rs.MatchScript(blob) {
			return RuleSetSignal(rs.Name)
		}
	}
	return SignalNone
}

func (d *Detector) structural(blob string) Signal {
	st := &d.rules.Structural

	if countCodeLines(blob, st.CommentPrefixes) > 1 {
		return SignalMultiline
	}
	if len(st.StatementBoundary.FindAllStringIndex(blob, st.MinStatementBoundaries)) >= st.MinStatementBoundaries {
		return SignalStatementBoundary
	}
	if st.ControlFlow.MatchString(blob) {
		return SignalControlFlow
	}
	if len(st.Assignment.FindAllStringIndex(blob, st.MinAssignments)) >= st.MinAssignments {
		return SignalAssignments
	}
	if countOperators(blob, st.ControlOperators, st.MinControlOperators) >= st.MinControlOperators {
		return SignalControlOperators
	}
	return SignalNone
}

// countCodeLines counts lines that are neither blank nor comment-prefixed.
func countCodeLines(blob string, commentPrefixes []string) int {
	count := 0
	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || hasAnyPrefix(line, commentPrefixes) {
			continue
		}
		count++
	}
	return count
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// countOperators counts whitespace-delimited tokens that are control
// operators, stopping once limit is reached.
func countOperators(blob string, operators map[string]bool, limit int) int {
	count := 0
	for _, tok := range strings.Fields(blob) {
		if operators[tok] {
			count++
			if count >= limit {
				break
			}
		}
	}
	return count
}
