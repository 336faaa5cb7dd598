package corpuscore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmdcorpus/internal/classify"
)

func newTestBuilder(t *testing.T, cacheSize int) *RecordBuilder {
	t.Helper()
	rb, err := NewRecordBuilder(nil, NewMemorySequence(0), cacheSize)
	require.NoError(t, err)
	return rb
}

func TestBuildRecord(t *testing.T) {
	rb := newTestBuilder(t, 16)

	entry := NewRawEntry("lolbas", "ls    -la\t/tmp")
	entry.Description = "list temp"
	entry.Technique = "T1083"

	record, err := rb.Build(entry)
	require.NoError(t, err)
	assert.Equal(t, &Record{
		ID:          1,
		Command:     `ls\t-la\t/tmp`,
		Description: "list temp",
		Technique:   "T1083",
		Language:    classify.TagShell,
		Kind:        classify.KindCommand,
		Dataset:     "lolbas",
	}, record)

	next, err := rb.Build(NewRawEntry("lolbas", "Get-Process"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.ID)
	assert.Equal(t, classify.TagPowerShell, next.Language)
}

func TestBuildUsesShellHint(t *testing.T) {
	rb := newTestBuilder(t, 0)

	entry := NewRawEntry("atomic-red-team", "whoami")
	entry.Shell = "command_prompt"
	record, err := rb.Build(entry)
	require.NoError(t, err)
	assert.Equal(t, classify.TagCmd, record.Language)

	entry.Shell = ""
	record, err = rb.Build(entry)
	require.NoError(t, err)
	assert.Equal(t, classify.TagShell, record.Language)
}

func TestBuildClassifiesBeforeNormalizing(t *testing.T) {
	rb := newTestBuilder(t, 0)

	record, err := rb.Build(NewRawEntry("metta", "ls /tmp\r\nrm -rf /tmp/x\n"))
	require.NoError(t, err)
	assert.Equal(t, classify.KindScript, record.Kind)
	assert.Equal(t, "ls /tmp\\r\nrm -rf /tmp/x", record.Command)
}

func TestBuildNilCommand(t *testing.T) {
	rb := newTestBuilder(t, 8)

	_, err := rb.Build(RawEntry{Dataset: "atomic-red-team", Source: "T1000.yaml"})
	assert.ErrorIs(t, err, classify.ErrNilBlob)

	// The failed entry does not consume an ID.
	record, err := rb.Build(NewRawEntry("atomic-red-team", "id"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.ID)
}

func TestBuildAllSkipsBadEntries(t *testing.T) {
	rb := newTestBuilder(t, 8)

	records, skipped := rb.BuildAll([]RawEntry{
		NewRawEntry("x", "whoami"),
		{Dataset: "x"},
		NewRawEntry("x", "whoami"),
	})
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 2)
	assert.Equal(t, records[0].Language, records[1].Language)
	assert.Equal(t, []int64{1, 2}, []int64{records[0].ID, records[1].ID})
}

// countingSequence records how IDs were requested.
type countingSequence struct {
	inner    *MemorySequence
	next     int
	reserved []int
}

func (c *countingSequence) Next() (int64, error) {
	c.next++
	return c.inner.Next()
}

func (c *countingSequence) Reserve(n int) (int64, error) {
	c.reserved = append(c.reserved, n)
	return c.inner.Reserve(n)
}

// nextOnly hides Reserve so the builder falls back to one ID per record.
type nextOnly struct{ Sequence }

func TestBuildAllReservesOneBlock(t *testing.T) {
	seq := &countingSequence{inner: NewMemorySequence(41)}
	rb, err := NewRecordBuilder(nil, seq, 0)
	require.NoError(t, err)

	records, skipped := rb.BuildAll([]RawEntry{
		NewRawEntry("x", "whoami"),
		{Dataset: "x"},
		NewRawEntry("x", "hostname"),
		NewRawEntry("x", "id"),
	})
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 3)
	assert.Equal(t, []int64{42, 43, 44}, []int64{records[0].ID, records[1].ID, records[2].ID})
	assert.Equal(t, []int{3}, seq.reserved)
	assert.Zero(t, seq.next)

	next, err := seq.inner.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(45), next)
}

func TestBuildAllWithoutBlockSequence(t *testing.T) {
	seq := &countingSequence{inner: NewMemorySequence(0)}
	rb, err := NewRecordBuilder(nil, nextOnly{seq}, 0)
	require.NoError(t, err)

	records, skipped := rb.BuildAll([]RawEntry{NewRawEntry("x", "whoami"), NewRawEntry("x", "id")})
	assert.Zero(t, skipped)
	require.Len(t, records, 2)
	assert.Equal(t, []int64{1, 2}, []int64{records[0].ID, records[1].ID})
	assert.Equal(t, 2, seq.next)
	assert.Empty(t, seq.reserved)
}

func TestBuildAllNothingToReserve(t *testing.T) {
	seq := &countingSequence{inner: NewMemorySequence(0)}
	rb, err := NewRecordBuilder(nil, seq, 0)
	require.NoError(t, err)

	records, skipped := rb.BuildAll([]RawEntry{{Dataset: "x"}})
	assert.Empty(t, records)
	assert.Equal(t, 1, skipped)
	assert.Empty(t, seq.reserved)
}

func TestBuilderCacheKeysOnHint(t *testing.T) {
	rb := newTestBuilder(t, 8)

	a := NewRawEntry("x", "whoami")
	b := NewRawEntry("x", "whoami")
	b.Shell = "powershell"

	ra, err := rb.Build(a)
	require.NoError(t, err)
	rbRec, err := rb.Build(b)
	require.NoError(t, err)
	assert.Equal(t, classify.TagShell, ra.Language)
	assert.Equal(t, classify.TagPowerShell, rbRec.Language)
}

func TestNewRecordBuilderNeedsSequence(t *testing.T) {
	_, err := NewRecordBuilder(nil, nil, 0)
	assert.Error(t, err)
}

func TestMemorySequenceConcurrent(t *testing.T) {
	seq := NewMemorySequence(10)

	var wg sync.WaitGroup
	seen := make(chan int64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := seq.Next()
			seen <- id
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]bool)
	for id := range seen {
		unique[id] = true
	}
	assert.Len(t, unique, 100)
	assert.True(t, unique[11])
	assert.True(t, unique[110])
}
