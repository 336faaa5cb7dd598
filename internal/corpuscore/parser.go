package corpuscore

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// LoadMITREData loads the MITRE ATT&CK enterprise bundle and returns its
// attack patterns keyed by technique ID.
func LoadMITREData(path string) (map[string]AttackTechnique, error) {
	ingestLog.Info("Loading MITRE ATT&CK dataset from %s...", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MITRE file: %w", err)
	}

	var bundle MITREAttackBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MITRE JSON: %w", err)
	}

	techniques := make(map[string]AttackTechnique)
	for _, obj := range bundle.Objects {
		if obj.Type != "attack-pattern" || obj.Revoked || obj.Deprecated {
			continue
		}

		var techniqueID string
		for _, ref := range obj.ExternalReferences {
			if ref.SourceName == "mitre-attack" {
				techniqueID = ref.ExternalID
				break
			}
		}
		if techniqueID == "" {
			continue
		}

		var tactics []string
		for _, phase := range obj.KillChainPhases {
			if phase.KillChainName == "mitre-attack" {
				tactics = append(tactics, phase.PhaseName)
			}
		}

		techniques[techniqueID] = AttackTechnique{
			ID:          techniqueID,
			Name:        obj.Name,
			Description: obj.Description,
			Platforms:   obj.Platforms,
			Tactics:     tactics,
		}
	}

	ingestLog.Info("Loaded %d MITRE techniques from file.", len(techniques))
	return techniques, nil
}

// TechniqueTable resolves technique names to IDs.
type TechniqueTable map[string]string

// Lookup returns the ID for an exact technique name.
func (t TechniqueTable) Lookup(name string) (string, bool) {
	id, ok := t[strings.TrimSpace(name)]
	return id, ok
}

// TechniqueTableFromAttack builds a name table from loaded ATT&CK data.
func TechniqueTableFromAttack(techniques map[string]AttackTechnique) TechniqueTable {
	table := make(TechniqueTable, len(techniques))
	for id, tech := range techniques {
		table[tech.Name] = id
	}
	return table
}

// LoadTechniqueCSV reads a CSV with "id" and "name" columns.
func LoadTechniqueCSV(path string) (TechniqueTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open technique CSV: %w", err)
	}
	defer f.Close()
	return ReadTechniqueCSV(f)
}

// ReadTechniqueCSV parses technique rows from r. Extra columns are ignored.
func ReadTechniqueCSV(r io.Reader) (TechniqueTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read technique CSV header: %w", err)
	}
	idCol, nameCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "id":
			idCol = i
		case "name":
			nameCol = i
		}
	}
	if idCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("technique CSV needs id and name columns, got %v", header)
	}

	table := make(TechniqueTable)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read technique CSV: %w", err)
		}
		if idCol >= len(row) || nameCol >= len(row) {
			continue
		}
		id := strings.TrimSpace(row[idCol])
		name := strings.TrimSpace(row[nameCol])
		if id == "" || name == "" {
			continue
		}
		if _, dup := table[name]; !dup {
			table[name] = id
		}
	}
	return table, nil
}
