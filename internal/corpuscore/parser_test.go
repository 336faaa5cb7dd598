package corpuscore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBundle = `{
  "type": "bundle",
  "objects": [
    {
      "type": "attack-pattern",
      "name": "Command and Scripting Interpreter",
      "kill_chain_phases": [{"kill_chain_name": "mitre-attack", "phase_name": "execution"}],
      "external_references": [{"source_name": "mitre-attack", "external_id": "T1059"}],
      "x_mitre_platforms": ["Windows", "Linux"]
    },
    {
      "type": "attack-pattern",
      "name": "Old Thing",
      "revoked": true,
      "external_references": [{"source_name": "mitre-attack", "external_id": "T9999"}]
    },
    {
      "type": "attack-pattern",
      "name": "No ID",
      "external_references": [{"source_name": "capec", "external_id": "CAPEC-1"}]
    },
    {
      "type": "x-mitre-tactic",
      "name": "Execution",
      "external_references": [{"source_name": "mitre-attack", "external_id": "TA0002"}]
    }
  ]
}`

func TestLoadMITREData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enterprise-attack.json")
	require.NoError(t, os.WriteFile(path, []byte(testBundle), 0o644))

	techniques, err := LoadMITREData(path)
	require.NoError(t, err)
	require.Len(t, techniques, 1)

	tech := techniques["T1059"]
	assert.Equal(t, "Command and Scripting Interpreter", tech.Name)
	assert.Equal(t, []string{"execution"}, tech.Tactics)
	assert.Equal(t, []string{"Windows", "Linux"}, tech.Platforms)

	table := TechniqueTableFromAttack(techniques)
	id, ok := table.Lookup("Command and Scripting Interpreter")
	assert.True(t, ok)
	assert.Equal(t, "T1059", id)
}

func TestLoadMITREDataMissing(t *testing.T) {
	_, err := LoadMITREData(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestReadTechniqueCSV(t *testing.T) {
	csvData := `id,name,description
T1003,OS Credential Dumping,"Adversaries may attempt to dump credentials, e.g. lsass"
T1059, Command and Scripting Interpreter ,x
T1059.001,PowerShell,x
,Blank ID,x
T1003.001,OS Credential Dumping,duplicate name keeps first
`
	table, err := ReadTechniqueCSV(strings.NewReader(csvData))
	require.NoError(t, err)

	assert.Len(t, table, 3)
	id, ok := table.Lookup("OS Credential Dumping")
	assert.True(t, ok)
	assert.Equal(t, "T1003", id)

	id, ok = table.Lookup(" Command and Scripting Interpreter")
	assert.True(t, ok)
	assert.Equal(t, "T1059", id)

	_, ok = table.Lookup("Blank ID")
	assert.False(t, ok)
}

func TestReadTechniqueCSVNeedsColumns(t *testing.T) {
	_, err := ReadTechniqueCSV(strings.NewReader("technique,label\nT1,x\n"))
	assert.Error(t, err)
}

func TestNilTechniqueTableLookup(t *testing.T) {
	var table TechniqueTable
	_, ok := table.Lookup("anything")
	assert.False(t, ok)
}
