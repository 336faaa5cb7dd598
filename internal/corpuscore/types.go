package corpuscore

import (
	"time"

	"cmdcorpus/internal/classify"
)

// RawEntry is one command as read from a source dataset, before
// classification. Command is nil when the source entry had none.
type RawEntry struct {
	Dataset     string  `json:"dataset"`
	Command     *string `json:"command"`
	Description string  `json:"description,omitempty"`
	Technique   string  `json:"technique,omitempty"`
	Shell       string  `json:"shell,omitempty"`
	Source      string  `json:"source,omitempty"`
}

// NewRawEntry is a convenience for readers that always have a command.
func NewRawEntry(dataset, command string) RawEntry {
	return RawEntry{Dataset: dataset, Command: &command}
}

// Record is a classified dataset row. Column names match the published
// dataset schema.
type Record struct {
	ID          int64        `json:"ID"`
	Command     string       `json:"Command"`
	Description string       `json:"Description"`
	RiskScore   *float64     `json:"RiskScore"`
	Label       *string      `json:"Offensive-Malware-Benign"`
	Technique   string       `json:"MitreAttackClassification"`
	Language    classify.Tag `json:"ProgrammingLanguage"`
	Kind        string       `json:"CMD_Script"`
	DynTested   *bool        `json:"DynTested"`
	Dataset     string       `json:"Dataset"`
}

// DatasetInfo is kept per dataset in the store.
type DatasetInfo struct {
	Name       string    `json:"name"`
	Records    int       `json:"records"`
	IngestedAt time.Time `json:"ingested_at"`
}

// CorpusStats provides analytics on the record collection
type CorpusStats struct {
	TotalRecords       int            `json:"total_records"`
	Scripts            int            `json:"scripts"`
	Commands           int            `json:"commands"`
	LanguageFrequency  map[string]int `json:"language_frequency"`
	DatasetFrequency   map[string]int `json:"dataset_frequency"`
	TechniqueFrequency map[string]int `json:"technique_frequency"`
}

// APISearchResult represents a single search result returned by the API
type APISearchResult struct {
	ID        string  `json:"id"`
	Command   string  `json:"command"`
	Language  string  `json:"language,omitempty"`
	Kind      string  `json:"kind,omitempty"`
	Technique string  `json:"technique,omitempty"`
	Dataset   string  `json:"dataset,omitempty"`
	Score     float64 `json:"score"`
}

// AttackTechnique contains MITRE ATT&CK technique information
type AttackTechnique struct {
	ID          string
	Name        string
	Description string
	Platforms   []string
	Tactics     []string
}

// MITREAttackBundle represents the top-level structure of the enterprise-attack.json file.
type MITREAttackBundle struct {
	Objects []MITREObject `json:"objects"`
}

// MITREObject is a single STIX object within the bundle.
type MITREObject struct {
	Type               string              `json:"type"`
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Description        string              `json:"description"`
	KillChainPhases    []KillChainPhase    `json:"kill_chain_phases"`
	ExternalReferences []ExternalReference `json:"external_references"`
	Platforms          []string            `json:"x_mitre_platforms"`
	IsSubtechnique     bool                `json:"x_mitre_is_subtechnique"`
	Revoked            bool                `json:"revoked"`
	Deprecated         bool                `json:"x_mitre_deprecated"`
}

// KillChainPhase represents the tactic (e.g., execution) an attack pattern belongs to.
type KillChainPhase struct {
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
}

// ExternalReference contains the mapping to the external ID, like "T1059".
type ExternalReference struct {
	SourceName string `json:"source_name"`
	ExternalID string `json:"external_id"`
}
