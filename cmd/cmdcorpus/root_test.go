package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdcorpus/internal/classify"
	"cmdcorpus/internal/corpuscore"
)

// executeCommand runs a fresh root command with args and captures its output.
func executeCommand(t *testing.T, stdin string, args ...string) (stdout string, err error) {
	t.Helper()
	root := newRootCmd()
	stdoutBuf := new(bytes.Buffer)
	root.SetOut(stdoutBuf)
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err = root.Execute()
	return stdoutBuf.String(), err
}

func decodeLines(t *testing.T, out string) []classifyOutput {
	t.Helper()
	var results []classifyOutput
	dec := json.NewDecoder(strings.NewReader(out))
	for dec.More() {
		var o classifyOutput
		require.NoError(t, dec.Decode(&o))
		results = append(results, o)
	}
	return results
}

func TestRootCmdHelp(t *testing.T) {
	stdout, err := executeCommand(t, "", "--help")
	require.NoError(t, err)

	for _, name := range []string{"classify", "ingest", "produce", "consume", "index", "serve", "merge", "stats"} {
		assert.Contains(t, stdout, name)
	}
	newRootCmd().PersistentFlags().VisitAll(func(f *pflag.Flag) {
		assert.Contains(t, stdout, "--"+f.Name)
	})
}

func TestClassifyArgs(t *testing.T) {
	stdout, err := executeCommand(t, "", "classify", "cmd.exe", "/c", "whoami")
	require.NoError(t, err)

	results := decodeLines(t, stdout)
	require.Len(t, results, 1)
	assert.Equal(t, "cmd.exe /c whoami", results[0].Command)
	assert.Equal(t, classify.TagCmd, results[0].Verdict.Language)
	assert.Equal(t, classify.KindCommand, results[0].Kind)
}

func TestClassifyHint(t *testing.T) {
	stdout, err := executeCommand(t, "", "classify", "--hint", "bash", "Get-Process")
	require.NoError(t, err)

	results := decodeLines(t, stdout)
	require.Len(t, results, 1)
	assert.Equal(t, classify.TagShell, results[0].Verdict.Language)
}

func TestClassifyStdinLines(t *testing.T) {
	stdin := "cmd.exe /c whoami\n\nGet-Process | Where-Object { $_.CPU -gt 100 }\n"
	stdout, err := executeCommand(t, stdin, "classify", "--lines", "--explain")
	require.NoError(t, err)

	results := decodeLines(t, stdout)
	require.Len(t, results, 2)
	assert.Equal(t, classify.TagCmd, results[0].Verdict.Language)
	assert.Equal(t, classify.SignalNone, results[0].Signal)
	assert.Equal(t, classify.TagPowerShell, results[1].Verdict.Language)
	assert.Equal(t, classify.KindScript, results[1].Kind)
	assert.Equal(t, classify.RuleSetSignal("powershell"), results[1].Signal)
}

func TestIngestNeedsDataset(t *testing.T) {
	dir := t.TempDir()
	_, err := executeCommand(t, "", "ingest", "--db-path", filepath.Join(dir, "records.db"))
	assert.Error(t, err)

	_, err = executeCommand(t, "", "ingest", "lolbas", "metta", "--path", "x", "--db-path", filepath.Join(dir, "records.db"))
	assert.Error(t, err)

	_, err = executeCommand(t, "", "ingest", "nope", "--db-path", filepath.Join(dir, "records.db"))
	assert.Error(t, err)
}

const readme = "# Procedures\n" +
	"## T1059.001 PowerShell\n" +
	"```\n" +
	"powershell -nop -c whoami\n" +
	"Get-Process\n" +
	"```\n" +
	"## T1003 Credential Dumping\n" +
	"```\n" +
	"reg save HKLM\\SAM sam.hiv\n" +
	"```\n"

func TestIngestStatsAndMerge(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(md, []byte(readme), 0o644))

	common := []string{
		"--db-path", filepath.Join(dir, "db", "records.db"),
		"--index-path", filepath.Join(dir, "records.bleve"),
		"--output-dir", filepath.Join(dir, "out"),
	}

	args := append([]string{"ingest", "threat-actor-procedures", "--path", md, "--index"}, common...)
	_, err := executeCommand(t, "", args...)
	require.NoError(t, err)

	records, err := corpuscore.ReadDataset(filepath.Join(dir, "out", "threat-actor-procedures.json"))
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(1), records[0].ID)
	assert.Equal(t, "T1003", records[2].Technique)

	stdout, err := executeCommand(t, "", append([]string{"stats"}, common...)...)
	require.NoError(t, err)

	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &stats))
	require.NotNil(t, stats.CorpusStats)
	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, map[string]int{"threat-actor-procedures": 3}, stats.DatasetFrequency)
	assert.Equal(t, map[string]int{"T1059.001": 2, "T1003": 1}, stats.TechniqueFrequency)
	require.Len(t, stats.Datasets, 1)
	assert.Equal(t, 3, stats.Datasets[0].Records)

	// A second ingest keeps numbering where the store left off.
	_, err = executeCommand(t, "", args...)
	require.NoError(t, err)
	records, err = corpuscore.ReadDataset(filepath.Join(dir, "out", "threat-actor-procedures.json"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), records[0].ID)

	merged := filepath.Join(dir, "merged.json")
	_, err = executeCommand(t, "", append([]string{"merge", "--out", merged}, common...)...)
	require.NoError(t, err)
	records, err = corpuscore.ReadDataset(merged)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(1), records[0].ID)

	_, err = executeCommand(t, "", append([]string{"index"}, common...)...)
	require.NoError(t, err)
	indexer, err := corpuscore.OpenIndexer(filepath.Join(dir, "records.bleve"), 10)
	require.NoError(t, err)
	defer indexer.Close()
	count, err := indexer.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(6), count)
}
