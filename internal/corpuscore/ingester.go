package corpuscore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"

	"cmdcorpus/internal/config"
	"cmdcorpus/internal/logger"
)

var ingestLog = logger.New("ingest")

var (
	atomicFiles      = mustSelector([]string{"*/*.yaml"}, []string{"Indexes", "Indexes/**", "used_guids.txt"})
	mettaFiles       = mustSelector([]string{"MITRE/*/*.yml"}, nil)
	powerPeelerFiles = mustSelector([]string{"**"}, []string{".*", "**/.*"})

	placeholderRe = regexp.MustCompile(`#\{[A-Za-z0-9_\-]+\}`)
	techniqueRe   = regexp.MustCompile(`T\d{4}(?:\.\d{3})?`)
)

// DataIngester reads raw entries from the supported source datasets.
type DataIngester struct {
	techniques TechniqueTable
}

// NewDataIngester creates a new DataIngester. techniques resolves metta
// technique names and may be nil.
func NewDataIngester(techniques TechniqueTable) *DataIngester {
	return &DataIngester{techniques: techniques}
}

// Ingest reads the named dataset from path.
func (di *DataIngester) Ingest(dataset, path string) ([]RawEntry, error) {
	ingestLog.Info("📁 Parsing %s dataset from %s", dataset, path)

	var (
		entries []RawEntry
		err     error
	)
	switch dataset {
	case config.DatasetAtomicRedTeam:
		entries, err = di.ReadAtomicRedTeam(path)
	case config.DatasetLOLBAS:
		entries, err = di.ReadLOLBAS(path)
	case config.DatasetMetta:
		entries, err = di.ReadMetta(path)
	case config.DatasetThreatActor:
		entries, err = di.ReadThreatActorProcedures(path)
	case config.DatasetPowerPeeler:
		entries, err = di.ReadPowerPeeler(path)
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownDataset, dataset)
	}
	if err != nil {
		return nil, err
	}

	ingestLog.Info("✅ Read %d entries from %s", len(entries), dataset)
	return entries, nil
}

type atomicFile struct {
	AttackTechnique string       `yaml:"attack_technique"`
	DisplayName     string       `yaml:"display_name"`
	AtomicTests     []atomicTest `yaml:"atomic_tests"`
}

type atomicTest struct {
	Name           string                    `yaml:"name"`
	Description    string                    `yaml:"description"`
	InputArguments map[string]atomicArgument `yaml:"input_arguments"`
	Executor       struct {
		Name    string `yaml:"name"`
		Command string `yaml:"command"`
		Steps   string `yaml:"steps"`
	} `yaml:"executor"`
}

type atomicArgument struct {
	Default any `yaml:"default"`
}

// ReadAtomicRedTeam reads <root>/<Txxxx>/<Txxxx>.yaml files.
func (di *DataIngester) ReadAtomicRedTeam(root string) ([]RawEntry, error) {
	files, err := atomicFiles.Walk(root)
	if err != nil {
		return nil, err
	}

	var entries []RawEntry
	for _, path := range files {
		dir := filepath.Base(filepath.Dir(path))
		if strings.TrimSuffix(filepath.Base(path), ".yaml") != dir {
			ingestLog.Debug("Skipping %s", path)
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			ingestLog.Error("❌ Error reading %s: %v", path, err)
			continue
		}
		var doc atomicFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			ingestLog.Error("❌ Error parsing %s: %v", path, err)
			continue
		}
		entries = append(entries, atomicEntries(doc, path)...)
	}
	return entries, nil
}

func atomicEntries(doc atomicFile, source string) []RawEntry {
	entries := make([]RawEntry, 0, len(doc.AtomicTests))
	for _, test := range doc.AtomicTests {
		entry := RawEntry{
			Dataset:     config.DatasetAtomicRedTeam,
			Description: test.Description,
			Technique:   doc.AttackTechnique,
			Shell:       test.Executor.Name,
			Source:      source,
		}

		command := test.Executor.Command
		if command == "" {
			command = test.Executor.Steps
		}
		if command != "" {
			command, entry.Description = fillPlaceholders(command, entry.Description, test.InputArguments)
			entry.Command = &command
		}
		entries = append(entries, entry)
	}
	return entries
}

// fillPlaceholders replaces #{arg} with the argument's default value in both
// the command and the description.
func fillPlaceholders(command, description string, args map[string]atomicArgument) (string, string) {
	for _, match := range placeholderRe.FindAllString(command, -1) {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "#{"), "}")
		value := ""
		if arg, ok := args[name]; ok && arg.Default != nil {
			value = fmt.Sprint(arg.Default)
		}
		command = strings.ReplaceAll(command, match, value)
		description = strings.ReplaceAll(description, match, value)
	}
	return command, description
}

type lolbasEntry struct {
	Name        string `json:"Name"`
	Description string `json:"Description"`
	Commands    []struct {
		Command     string `json:"Command"`
		Description string `json:"Description"`
		MitreID     string `json:"MitreID"`
	} `json:"Commands"`
}

// ReadLOLBAS reads the LOLBAS API JSON export.
func (di *DataIngester) ReadLOLBAS(path string) ([]RawEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read LOLBAS file: %w", err)
	}
	var doc []lolbasEntry
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LOLBAS JSON: %w", err)
	}

	var entries []RawEntry
	for _, bin := range doc {
		for _, cmd := range bin.Commands {
			entry := NewRawEntry(config.DatasetLOLBAS, cmd.Command)
			entry.Description = cmd.Description + " " + bin.Description
			entry.Technique = cmd.MitreID
			entry.Source = bin.Name
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

type mettaFile struct {
	Meta struct {
		Description    string    `yaml:"description"`
		MitreTechnique string    `yaml:"mitre_attack_technique"`
		PurpleActions  yaml.Node `yaml:"purple_actions"`
	} `yaml:"meta"`
}

// ReadMetta reads <root>/MITRE/*/*.yml. Each purple action becomes one
// entry; technique names are resolved to IDs through the technique table.
func (di *DataIngester) ReadMetta(root string) ([]RawEntry, error) {
	files, err := mettaFiles.Walk(root)
	if err != nil {
		return nil, err
	}

	var entries []RawEntry
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			ingestLog.Error("❌ Error reading %s: %v", path, err)
			continue
		}
		var doc mettaFile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			ingestLog.Error("❌ Error parsing %s: %v", path, err)
			continue
		}
		entries = append(entries, di.mettaEntries(doc, path)...)
	}
	return entries, nil
}

func (di *DataIngester) mettaEntries(doc mettaFile, source string) []RawEntry {
	actions := doc.Meta.PurpleActions
	if actions.Kind != yaml.MappingNode || len(actions.Content) == 0 {
		return nil
	}

	technique, ok := di.techniques.Lookup(doc.Meta.MitreTechnique)
	if !ok {
		ingestLog.Info("No technique found in up-to-date MITRE ATT&CK techniques for %q.", doc.Meta.MitreTechnique)
	}

	var entries []RawEntry
	for i := 1; i < len(actions.Content); i += 2 {
		value := actions.Content[i]
		if value.Kind != yaml.ScalarNode {
			continue
		}
		entry := NewRawEntry(config.DatasetMetta, value.Value)
		entry.Description = doc.Meta.Description
		entry.Technique = technique
		entry.Source = source
		entries = append(entries, entry)
	}
	return entries
}

// ReadThreatActorProcedures reads the procedures Markdown file.
func (di *DataIngester) ReadThreatActorProcedures(path string) ([]RawEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open procedures file: %w", err)
	}
	defer f.Close()
	return ParseProceduresMarkdown(f, path)
}

// ParseProceduresMarkdown turns every line inside a ``` fence into an entry
// tagged with the most recent technique ID seen outside a fence.
func ParseProceduresMarkdown(r io.Reader, source string) ([]RawEntry, error) {
	var (
		entries   []RawEntry
		inCode    bool
		technique string
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "```"):
			inCode = !inCode
		case inCode:
			entry := NewRawEntry(config.DatasetThreatActor, strings.TrimSuffix(line, "\r"))
			entry.Technique = technique
			entry.Source = source
			entries = append(entries, entry)
		default:
			matches := techniqueRe.FindAllString(line, -1)
			if len(matches) == 0 {
				continue
			}
			technique = matches[0]
			if len(matches) > 1 {
				ingestLog.Warn("Has more than one technique: %v - %s", matches, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read procedures: %w", err)
	}
	return entries, nil
}

// ReadPowerPeeler reads every sample file under root as one entry.
func (di *DataIngester) ReadPowerPeeler(root string) ([]RawEntry, error) {
	files, err := powerPeelerFiles.Walk(root)
	if err != nil {
		return nil, err
	}

	var entries []RawEntry
	for i, path := range files {
		ingestLog.Debug("📄 Processing file %d/%d: %s", i+1, len(files), path)
		text, err := readSample(path)
		if err != nil {
			ingestLog.Error("❌ Error reading %s: %v", path, err)
			continue
		}
		entry := NewRawEntry(config.DatasetPowerPeeler, text)
		entry.Shell = hintFromFilename(path)
		entry.Source = path
		entries = append(entries, entry)
	}
	return entries, nil
}

// readSample decodes a sample as UTF-8, honouring a UTF-8 or UTF-16 byte
// order mark.
func readSample(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return decodeText(f)
}

func decodeText(r io.Reader) (string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(r, decoder))
	if err != nil {
		return "", fmt.Errorf("failed to decode text: %w", err)
	}
	return string(data), nil
}

// enryHints maps linguist language names onto dataset shell labels.
var enryHints = map[string]string{
	"PowerShell":  "powershell",
	"Shell":       "sh",
	"Batchfile":   "command_prompt",
	"Python":      "py",
	"AppleScript": "applescript",
}

// hintFromFilename derives a language hint from an unambiguous extension.
func hintFromFilename(path string) string {
	lang, safe := enry.GetLanguageByExtension(path)
	if !safe {
		return ""
	}
	return enryHints[lang]
}
