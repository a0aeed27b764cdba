package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flightsFile = `records:
  - id: 1
    name: Air India
    destination: Serbia
  - id: 2
    name: Jet Airways
    destination: Russia
  - id: 3
    name: Indigo
    destination: USA
  - id: 4
    name: Emirats
    destination: India
  - id: 5
    name: Lufthansa
    destination: Hong-Kong
`

type env struct {
	dataDir string
	records string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	records := filepath.Join(dir, "flights.yaml")
	require.NoError(t, os.WriteFile(records, []byte(flightsFile), 0644))
	return env{dataDir: filepath.Join(dir, "index"), records: records}
}

func (e env) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--data-dir", e.dataDir, "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIndexThenSearch(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "", "index", "--source", e.records)
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 5 record(s)")
	assert.Contains(t, out, "generation 1")

	out, err = e.run(t, "", "search", "India")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "2 Record(s) Found", lines[0])
	assert.Contains(t, lines[1], `id="1"`)
	assert.Contains(t, lines[2], `id="4"`)

	out, err = e.run(t, "", "search", "--field", "destination", "India")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "1 Record(s) Found"))
	assert.Contains(t, out, `name="Emirats"`)

	out, err = e.run(t, "", "search", "Ind*")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "3 Record(s) Found"))
}

func TestSearchNoResults(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "index", "--source", e.records)
	require.NoError(t, err)

	for _, q := range []string{"Qantas", "*", "   ", "\"", "(", "a:b:c"} {
		out, err := e.run(t, "", "search", q)
		require.NoError(t, err, q)
		assert.Equal(t, noResults+"\n", out, q)
	}
}

func TestSearchJSON(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "index", "--source", e.records)
	require.NoError(t, err)

	out, err := e.run(t, "", "search", "--json", "--order", "natural", "India", "Serbia")
	require.NoError(t, err)
	var res executor.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Hits, 2)
	assert.Equal(t, int64(1), res.Hits[0].Document.ID)
	assert.Equal(t, int64(4), res.Hits[1].Document.ID)
}

func TestSearchRejectsUnknownOrder(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "search", "--order", "random", "India")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestConsole(t *testing.T) {
	e := newEnv(t)
	cfg := filepath.Join(filepath.Dir(e.records), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("source:\n  type: file\n  path: "+e.records+"\n"), 0644))

	out, err := e.run(t, "Jet\n\nQantas\nexit\nIndigo\n", "--config", cfg, "console")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(out, consolePrompt))
	assert.Contains(t, out, `1 Record(s) Found`+"\n"+`Record (1): id="2" name="Jet Airways" destination="Russia"`)
	assert.Equal(t, 2, strings.Count(out, noResults))
	assert.NotContains(t, out, "Indigo")
}

func TestStatsAndUnlock(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "index", "--source", e.records)
	require.NoError(t, err)

	out, err := e.run(t, "", "stats", "--json")
	require.NoError(t, err)
	var st struct {
		Documents    int    `json:"documents"`
		Generation   uint64 `json:"generation"`
		WriterActive bool   `json:"writer_active"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 5, st.Documents)
	assert.Equal(t, uint64(1), st.Generation)
	assert.False(t, st.WriterActive)

	out, err = e.run(t, "", "unlock")
	require.NoError(t, err)
	assert.Contains(t, out, "write lock cleared")
}

func TestReadCommandsRunBesideWriter(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "index", "--source", e.records)
	require.NoError(t, err)

	cfg := config.Default().Index
	cfg.DataDir = e.dataDir
	cfg.LockRetries = 1
	cfg.LockRetryDelay = time.Millisecond
	writer, err := indexer.Open(context.Background(), cfg, tokenizer.New(true), schema.Flights(), nil)
	require.NoError(t, err)
	defer writer.Close()
	require.NoError(t, writer.Upsert(context.Background(), schema.Record{
		ID: 6, Fields: map[string]string{"name": "Vistara", "destination": "India"},
	}))

	out, err := e.run(t, "", "search", "India")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "2 Record(s) Found"), "uncommitted writes are not visible: %s", out)

	out, err = e.run(t, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "documents: 5")
	assert.Contains(t, out, "writer active: true")

	out, err = e.run(t, "India\nexit\n", "console", "--reindex=false")
	require.NoError(t, err)
	assert.Contains(t, out, "2 Record(s) Found")

	_, err = e.run(t, "", "index", "--source", e.records)
	assert.ErrorIs(t, err, apperrors.ErrLockHeld, "writes still need the lock")
}

func TestIndexReportsRejectedRecords(t *testing.T) {
	e := newEnv(t)
	bad := filepath.Join(filepath.Dir(e.records), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("records:\n  - id: 1\n    name: Air India\n  - id: 2\n    airline: Jet Airways\n"), 0644))

	out, err := e.run(t, "", "index", "--source", bad)
	var batchErr *apperrors.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, []int64{2}, batchErr.FailedIDs())
	assert.Contains(t, out, "indexed 1 record(s)")
	assert.Contains(t, out, "skipped record 2")
}

func TestIndexRejectsUnknownSource(t *testing.T) {
	e := newEnv(t)
	cfg := filepath.Join(filepath.Dir(e.records), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("source:\n  type: ftp\n"), 0644))
	_, err := e.run(t, "", "--config", cfg, "index", "--watch")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
