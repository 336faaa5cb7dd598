package classify

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Structural holds the compiled, language-agnostic script signals.
type Structural struct {
	CommentPrefixes        []string
	StatementBoundary      *regexp.Regexp
	ControlFlow            *regexp.Regexp
	Assignment             *regexp.Regexp
	ControlOperators       map[string]bool
	MinStatementBoundaries int
	MinAssignments         int
	MinControlOperators    int
}

// RuleSet is a named, ordered list of patterns for one language or one
// script-indicator category. DetectOnly sets carry no language tag and only
// take part in script detection.
type RuleSet struct {
	Name       string
	Tag        Tag
	Enabled    bool
	DetectOnly bool
	Script     []*regexp.Regexp
	Lexical    []*regexp.Regexp
}

// MatchScript reports whether any script pattern matches blob.
func (rs *RuleSet) MatchScript(blob string) bool {
	return matchAny(rs.Script, blob)
}

// MatchLanguage reports whether any pattern of the set matches blob.
func (rs *RuleSet) MatchLanguage(blob string) bool {
	return matchAny(rs.Script, blob) || matchAny(rs.Lexical, blob)
}

func matchAny(patterns []*regexp.Regexp, blob string) bool {
	for _, re := range patterns {
		if re.MatchString(blob) {
			return true
		}
	}
	return false
}

// RuleTable is the complete, immutable classification configuration.
type RuleTable struct {
	Structural Structural
	Hints      map[string]Tag
	Sets       []RuleSet
}

// Set returns the rule set with the given name.
func (t *RuleTable) Set(name string) (*RuleSet, bool) {
	for i := range t.Sets {
		if t.Sets[i].Name == name {
			return &t.Sets[i], true
		}
	}
	return nil, false
}

// WithEnabled returns a copy of the table with the named rule sets switched
// on. It is how the reserved SQL and JavaScript sets are activated.
func (t *RuleTable) WithEnabled(names ...string) (*RuleTable, error) {
	cp := *t
	cp.Sets = make([]RuleSet, len(t.Sets))
	copy(cp.Sets, t.Sets)
	for _, name := range names {
		found := false
		for i := range cp.Sets {
			if cp.Sets[i].Name == name {
				cp.Sets[i].Enabled = true
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("rule set %q not defined", name)
		}
	}
	return &cp, nil
}

type ruleFile struct {
	Structural struct {
		CommentPrefixes        []string `yaml:"comment_prefixes"`
		StatementBoundary      string   `yaml:"statement_boundary"`
		ControlFlow            string   `yaml:"control_flow"`
		Assignment             string   `yaml:"assignment"`
		ControlOperators       []string `yaml:"control_operators"`
		MinStatementBoundaries int      `yaml:"min_statement_boundaries"`
		MinAssignments         int      `yaml:"min_assignments"`
		MinControlOperators    int      `yaml:"min_control_operators"`
	} `yaml:"structural"`
	Hints    map[string]string `yaml:"hints"`
	RuleSets []struct {
		Name       string   `yaml:"name"`
		Tag        string   `yaml:"tag"`
		Enabled    *bool    `yaml:"enabled"`
		DetectOnly bool     `yaml:"detect_only"`
		Script     []string `yaml:"script"`
		Lexical    []string `yaml:"lexical"`
	} `yaml:"rulesets"`
}

// LoadRules parses and compiles a YAML rule table. Any inconsistency is
// reported here so that a bad table fails at start-up rather than per call.
func LoadRules(data []byte) (*RuleTable, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rule table: %w", err)
	}

	st := rf.Structural
	if st.MinStatementBoundaries < 1 || st.MinAssignments < 1 || st.MinControlOperators < 1 {
		return nil, fmt.Errorf("structural thresholds must be >= 1")
	}
	if len(st.ControlOperators) == 0 {
		return nil, fmt.Errorf("structural control_operators is empty")
	}

	table := &RuleTable{
		Structural: Structural{
			CommentPrefixes:        st.CommentPrefixes,
			ControlOperators:       make(map[string]bool, len(st.ControlOperators)),
			MinStatementBoundaries: st.MinStatementBoundaries,
			MinAssignments:         st.MinAssignments,
			MinControlOperators:    st.MinControlOperators,
		},
		Hints: make(map[string]Tag, len(rf.Hints)),
	}
	for _, op := range st.ControlOperators {
		table.Structural.ControlOperators[op] = true
	}

	var err error
	if table.Structural.StatementBoundary, err = compile("structural.statement_boundary", st.StatementBoundary); err != nil {
		return nil, err
	}
	if table.Structural.ControlFlow, err = compile("structural.control_flow", st.ControlFlow); err != nil {
		return nil, err
	}
	if table.Structural.Assignment, err = compile("structural.assignment", st.Assignment); err != nil {
		return nil, err
	}

	for raw, tagName := range rf.Hints {
		tag, ok := ParseTag(tagName)
		if !ok {
			return nil, fmt.Errorf("hint %q maps to unknown tag %q", raw, tagName)
		}
		table.Hints[strings.ToLower(strings.TrimSpace(raw))] = tag
	}

	if len(rf.RuleSets) == 0 {
		return nil, fmt.Errorf("rule table defines no rule sets")
	}
	seen := make(map[string]bool)
	for _, def := range rf.RuleSets {
		if def.Name == "" {
			return nil, fmt.Errorf("rule set without a name")
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("duplicate rule set %q", def.Name)
		}
		seen[def.Name] = true

		rs := RuleSet{
			Name:       def.Name,
			Enabled:    def.Enabled == nil || *def.Enabled,
			DetectOnly: def.DetectOnly,
		}
		if !def.DetectOnly {
			tag, ok := ParseTag(def.Tag)
			if !ok || !tag.Known() {
				return nil, fmt.Errorf("rule set %q has invalid tag %q", def.Name, def.Tag)
			}
			rs.Tag = tag
		}
		if len(def.Script)+len(def.Lexical) == 0 {
			return nil, fmt.Errorf("rule set %q has no patterns", def.Name)
		}
		for i, p := range def.Script {
			re, err := compile(fmt.Sprintf("%s.script[%d]", def.Name, i), p)
			if err != nil {
				return nil, err
			}
			rs.Script = append(rs.Script, re)
		}
		for i, p := range def.Lexical {
			re, err := compile(fmt.Sprintf("%s.lexical[%d]", def.Name, i), p)
			if err != nil {
				return nil, err
			}
			rs.Lexical = append(rs.Lexical, re)
		}
		table.Sets = append(table.Sets, rs)
	}

	return table, nil
}

func compile(name, pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("pattern %s is empty", name)
	}
	re, err := regexp.Compile("(?im)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", name, err)
	}
	return re, nil
}

var defaultTable = mustLoadRules(defaultRulesYAML)

func mustLoadRules(data []byte) *RuleTable {
	table, err := LoadRules(data)
	if err != nil {
		panic(fmt.Sprintf("classify: embedded rule table: %v", err))
	}
	return table
}

// DefaultRules returns the embedded rule table.
func DefaultRules() *RuleTable {
	return defaultTable
}
