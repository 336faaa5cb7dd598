package classify

import "errors"

// ErrNilBlob is returned when an optional command field is absent. Upstream
// readers guarantee a blob before classification, so a missing one is a
// precondition violation rather than an unknown command.
var ErrNilBlob = errors.New("classify: nil command blob")

// Classifier combines script detection and language inference.
type Classifier struct {
	detector *Detector
	language *LanguageClassifier
}

// Option configures a Classifier.
type Option func(*classifierOptions)

type classifierOptions struct {
	resolver Resolver
}

// WithResolver replaces first-match-wins language resolution.
func WithResolver(r Resolver) Option {
	return func(o *classifierOptions) { o.resolver = r }
}

// New builds a Classifier over rules. A nil table selects the embedded one.
func New(rules *RuleTable, opts ...Option) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	var o classifierOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Classifier{
		detector: NewDetector(rules),
		language: NewLanguageClassifier(rules, o.resolver),
	}
}

var defaultClassifier = New(nil)

// Default returns the classifier over the embedded rule table.
func Default() *Classifier {
	return defaultClassifier
}

// IsScript reports whether blob is a script.
func (c *Classifier) IsScript(blob string) bool {
	return c.detector.IsScript(blob)
}

// Explain returns the signal that made blob a script, if any.
func (c *Classifier) Explain(blob string) Signal {
	return c.detector.Explain(blob)
}

// Language returns the language tag for blob given an optional hint.
func (c *Classifier) Language(blob, hint string) Tag {
	return c.language.Classify(blob, hint)
}

// NormalizeHint maps a raw dataset label onto the tag vocabulary.
func (c *Classifier) NormalizeHint(hint string) (Tag, bool) {
	return c.language.NormalizeHint(hint)
}

// Classify produces the verdict for blob.
func (c *Classifier) Classify(blob, hint string) Verdict {
	return Verdict{
		IsScript: c.detector.IsScript(blob),
		Language: c.language.Classify(blob, hint),
	}
}

// ClassifyOptional classifies a command decoded from an optional field.
func (c *Classifier) ClassifyOptional(blob *string, hint string) (Verdict, error) {
	if blob == nil {
		return Verdict{}, ErrNilBlob
	}
	return c.Classify(*blob, hint), nil
}

// IsScript reports whether blob is a script under the embedded rules.
func IsScript(blob string) bool {
	return defaultClassifier.IsScript(blob)
}

// Language returns the language of blob under the embedded rules.
func Language(blob, hint string) Tag {
	return defaultClassifier.Language(blob, hint)
}

// Classify produces the verdict for blob under the embedded rules.
func Classify(blob, hint string) Verdict {
	return defaultClassifier.Classify(blob, hint)
}
