package classify

import (
	"strings"

	"cmdcorpus/internal/logger"
)

var classifyLog = logger.New("classify")

// Resolver infers a language from blob content. The default resolver is
// first-match-wins over the rule table; a weighted multi-language scorer can
// be plugged in through WithResolver.
type Resolver interface {
	Resolve(blob string) (Tag, bool)
}

// FirstMatch returns the tag of the first enabled, tagged rule set that has
// any matching pattern. Ties are decided by declaration order.
type FirstMatch struct {
	rules *RuleTable
}

// NewFirstMatch returns the first-match resolver for rules.
func NewFirstMatch(rules *RuleTable) *FirstMatch {
	return &FirstMatch{rules: rules}
}

// Resolve implements Resolver.
func (f *FirstMatch) Resolve(blob string) (Tag, bool) {
	for i := range f.rules.Sets {
		rs := &f.rules.Sets[i]
		if !rs.Enabled || rs.DetectOnly {
			continue
		}
		if rs.MatchLanguage(blob) {
			return rs.Tag, true
		}
	}
	return TagUnknown, false
}

// LanguageClassifier maps a blob and an optional dataset-supplied hint to a
// canonical language tag.
type LanguageClassifier struct {
	rules    *RuleTable
	resolver Resolver
}

// NewLanguageClassifier returns a classifier over rules. A nil resolver
// selects first-match-wins.
func NewLanguageClassifier(rules *RuleTable, resolver Resolver) *LanguageClassifier {
	if resolver == nil {
		resolver = NewFirstMatch(rules)
	}
	return &LanguageClassifier{rules: rules, resolver: resolver}
}

// NormalizeHint maps a raw dataset label onto the tag vocabulary. Only
// recognized labels and canonical tags are trusted.
func (lc *LanguageClassifier) NormalizeHint(hint string) (Tag, bool) {
	key := strings.ToLower(strings.TrimSpace(hint))
	if key == "" {
		return TagUnknown, false
	}
	if tag, ok := lc.rules.Hints[key]; ok {
		return tag, true
	}
	if tag, ok := ParseTag(key); ok && tag.Known() {
		return tag, true
	}
	return TagUnknown, false
}

// Classify returns the language of blob. A recognized hint wins over the
// content; an unrecognized one is logged and ignored. The unknown tag is a
// valid result, not an error.
func (lc *LanguageClassifier) Classify(blob, hint string) Tag {
	if tag, ok := lc.NormalizeHint(hint); ok {
		return tag
	}
	if strings.TrimSpace(hint) != "" {
		classifyLog.Warn("unexpected language hint %q, falling back to content rules", hint)
	}

	if strings.TrimSpace(blob) == "" {
		return TagUnknown
	}
	if tag, ok := lc.resolver.Resolve(blob); ok {
		return tag
	}
	classifyLog.Debug("no rule set matched blob %q", preview(blob, 60))
	return TagUnknown
}

func preview(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
