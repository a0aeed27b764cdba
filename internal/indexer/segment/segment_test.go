package segment

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/tokenizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(t *testing.T) (*index.MemoryIndex, []store.Document) {
	t.Helper()
	a := tokenizer.New(true)
	m := index.NewMemoryIndex()
	docs := []store.Document{
		{ID: 1, Fields: map[string]string{"name": "Air India", "destination": "Serbia"}},
		{ID: 2, Fields: map[string]string{"name": "Jet Airways", "destination": "Russia"}},
	}
	for _, d := range docs {
		for field, text := range d.Fields {
			toks, err := a.Analyze(text)
			require.NoError(t, err)
			m.Add(d.ID, field, toks)
		}
	}
	return m, docs
}

func TestWriteThenLoad(t *testing.T) {
	dir := t.TempDir()
	m, docs := buildIndex(t)

	info, err := NewWriter(dir).Write(7, m.Snapshot(), docs)
	require.NoError(t, err)
	name := info.Name
	assert.Equal(t, Name(7), name)

	_, err = os.Stat(filepath.Join(dir, name+".tmp"))
	assert.True(t, os.IsNotExist(err))

	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, uint64(7), r.Generation())
	assert.Equal(t, uint32(2), r.DocCount())
	assert.Equal(t, m.TermCount(), r.Terms())
	assert.Equal(t, info.CommitID, r.CommitID())

	snap, loadedDocs, err := r.Load()
	require.NoError(t, err)
	assert.Equal(t, docs, loadedDocs)

	restored := index.NewMemoryIndex()
	restored.Restore(snap)
	assert.Equal(t, m.Lookup("name", "india"), restored.Lookup("name", "india"))
	assert.Equal(t, m.AvgFieldLength("name"), restored.AvgFieldLength("name"))
}

func TestWriteEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	info, err := NewWriter(dir).Write(1, index.NewMemoryIndex().Snapshot(), []store.Document{})
	require.NoError(t, err)

	r, err := OpenReader(filepath.Join(dir, info.Name))
	require.NoError(t, err)
	defer r.Close()
	snap, docs, err := r.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Terms)
	assert.Empty(t, docs)
}

func TestCorruptSegmentIsRejected(t *testing.T) {
	dir := t.TempDir()
	m, docs := buildIndex(t)
	info, err := NewWriter(dir).Write(1, m.Snapshot(), docs)
	require.NoError(t, err)

	path := filepath.Join(dir, info.Name)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[HeaderSize+3] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = OpenReader(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum")
}

func writeSegment(t *testing.T, dir string, generation uint64) string {
	t.Helper()
	m, docs := buildIndex(t)
	info, err := NewWriter(dir).Write(generation, m.Snapshot(), docs)
	require.NoError(t, err)
	return filepath.Join(dir, info.Name)
}

func TestCorruptHeaderIsRejected(t *testing.T) {
	path := writeSegment(t, t.TempDir(), 1)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint64(data[56:64], 1<<20)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = OpenReader(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "header checksum")
}

func TestSectionOutsideBodyIsRejected(t *testing.T) {
	tests := []struct {
		name   string
		modify func(h *SegmentHeader)
	}{
		{"dictionary too long", func(h *SegmentHeader) { h.DictSize = 1 << 20 }},
		{"dictionary before body", func(h *SegmentHeader) { h.DictOffset = 10 }},
		{"negative size", func(h *SegmentHeader) { h.DictSize = -1 }},
		{"documents past end", func(h *SegmentHeader) { h.DocsOffset = 1 << 30 }},
		{"postings too long", func(h *SegmentHeader) { h.PostSize = 1 << 20 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSegment(t, t.TempDir(), 1)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			h, err := decodeHeader(data[:HeaderSize])
			require.NoError(t, err)
			tt.modify(&h)
			copy(data, encodeHeader(h))
			require.NoError(t, os.WriteFile(path, data, 0644))

			assert.NotPanics(t, func() {
				r, err := OpenReader(path)
				if err == nil {
					defer r.Close()
					_, _, err = r.Load()
				}
				require.Error(t, err)
				assert.Contains(t, err.Error(), "outside")
			})
		})
	}
}

func TestEveryCommitGetsItsOwnID(t *testing.T) {
	dir := t.TempDir()
	first, err := OpenReader(writeSegment(t, dir, 1))
	require.NoError(t, err)
	defer first.Close()
	second, err := OpenReader(writeSegment(t, dir, 2))
	require.NoError(t, err)
	defer second.Close()
	assert.NotEqual(t, first.CommitID(), second.CommitID())
}

func TestTruncatedSegmentIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), Name(1))
	require.NoError(t, os.WriteFile(path, []byte("SPDX"), 0644))
	_, err := OpenReader(path)
	require.Error(t, err)
}

func TestNamesSortByGeneration(t *testing.T) {
	assert.Less(t, Name(9), Name(10))
}
