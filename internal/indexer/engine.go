// Package indexer owns the write side of the index: it turns records into
// postings and stored documents, keeps both consistent under one lock, and
// commits them to disk as numbered segment generations.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/directory"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/metrics"
	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by every operation on an Engine after Close.
	ErrClosed = apperrors.New(apperrors.ErrStorageUnavailable, "index engine is closed")
	// ErrReadOnly is returned by writes to an Engine opened with OpenReadOnly.
	ErrReadOnly = apperrors.New(apperrors.ErrInvalidInput, "index is open read-only")
)

// Engine is the index writer. The inverted index and the document store are
// guarded by one RWMutex: writers replace a document entirely under the write
// lock and searches run under the read lock, so a reader never observes a
// document that is half replaced.
type Engine struct {
	mu      sync.RWMutex
	idx     *index.MemoryIndex
	docs    *store.DocStore
	version uint64
	dirty   bool
	closed  bool
	// session is fresh on every open, so uncommitted states of two processes
	// never share an identity even when their versions match.
	session  uuid.UUID
	readOnly bool

	generation uint64
	commitID   uuid.UUID
	commitMu   sync.Mutex

	dir      *directory.Directory
	writer   *segment.Writer
	analyzer *tokenizer.Analyzer
	schema   *schema.Schema
	cfg      config.IndexConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Open takes the write lock on cfg.DataDir and loads the newest segment that
// passes verification. m may be nil.
func Open(ctx context.Context, cfg config.IndexConfig, analyzer *tokenizer.Analyzer, s *schema.Schema, m *metrics.Metrics) (*Engine, error) {
	dir, err := directory.Open(ctx, cfg.DataDir, directory.Options{
		LockRetries:      cfg.LockRetries,
		LockRetryDelay:   cfg.LockRetryDelay,
		ForceUnlockStale: cfg.ForceUnlockStale,
	})
	if err != nil {
		return nil, fmt.Errorf("opening index directory: %w", err)
	}
	return newEngine(dir, cfg, analyzer, s, m)
}

// OpenReadOnly loads the newest committed segment without taking the write
// lock, so searches can run next to an active writer. The engine sees the
// index as of that commit; writes return ErrReadOnly.
func OpenReadOnly(ctx context.Context, cfg config.IndexConfig, analyzer *tokenizer.Analyzer, s *schema.Schema, m *metrics.Metrics) (*Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := directory.OpenReadOnly(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening index directory: %w", err)
	}
	return newEngine(dir, cfg, analyzer, s, m)
}

func newEngine(dir *directory.Directory, cfg config.IndexConfig, analyzer *tokenizer.Analyzer, s *schema.Schema, m *metrics.Metrics) (*Engine, error) {
	if m == nil {
		m = metrics.New(nil)
	}
	e := &Engine{
		idx:      index.NewMemoryIndex(),
		docs:     store.NewDocStore(),
		session:  uuid.New(),
		readOnly: dir.ReadOnly(),
		dir:      dir,
		writer:   segment.NewWriter(dir.Path()),
		analyzer: analyzer,
		schema:   s,
		cfg:      cfg,
		metrics:  m,
		logger:   slog.Default().With("component", "indexer", "read_only", dir.ReadOnly()),
	}
	if err := e.loadLatestSegment(); err != nil {
		dir.Close()
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return e, nil
}

// writable must be called with the write lock held.
func (e *Engine) writable() error {
	if e.closed {
		return ErrClosed
	}
	if e.readOnly {
		return ErrReadOnly
	}
	return nil
}

// Upsert replaces any document with the record's id by the record. Fields are
// analyzed before the lock is taken; if any field fails, the index is left
// untouched.
func (e *Engine) Upsert(ctx context.Context, rec schema.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.schema.Validate(rec); err != nil {
		e.metrics.IndexErrorsTotal.WithLabelValues("invalid").Inc()
		return err
	}
	analyzed, doc, err := e.analyze(rec)
	if err != nil {
		e.metrics.IndexErrorsTotal.WithLabelValues("tokenize").Inc()
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return err
	}
	e.idx.Remove(rec.ID)
	e.docs.Delete(rec.ID)
	e.docs.Put(doc)
	for _, f := range analyzed {
		e.idx.Add(rec.ID, f.name, f.tokens)
	}
	e.touch()
	e.metrics.DocsIndexedTotal.Inc()
	return nil
}

// UpsertAll upserts each record independently. A failing record does not
// affect the others; all failures are returned together as a
// *apperrors.BatchError. A cancelled context stops the batch and is returned
// as is.
func (e *Engine) UpsertAll(ctx context.Context, records []schema.Record) error {
	var failures []*apperrors.IndexError
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Upsert(ctx, rec); err != nil {
			if errors.Is(err, ErrClosed) || errors.Is(err, ErrReadOnly) {
				return err
			}
			e.logger.Warn("record rejected", "record_id", rec.ID, "error", err)
			failures = append(failures, &apperrors.IndexError{RecordID: rec.ID, Err: err})
		}
	}
	if len(failures) > 0 {
		return &apperrors.BatchError{Failures: failures}
	}
	return nil
}

// Delete removes a document and its postings. Deleting an absent id returns
// ErrDocumentNotFound.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return err
	}
	removed := e.idx.Remove(id)
	stored := e.docs.Delete(id)
	if !removed && !stored {
		return apperrors.Newf(apperrors.ErrDocumentNotFound, "record %d", id)
	}
	e.touch()
	e.metrics.DocsDeletedTotal.Inc()
	return nil
}

// Reset empties the index. The next Commit persists the empty state.
func (e *Engine) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.writable(); err != nil {
		return err
	}
	e.idx.Reset()
	e.docs.Reset()
	e.touch()
	e.logger.Info("index reset")
	return nil
}

// touch must be called with the write lock held.
func (e *Engine) touch() {
	e.version++
	e.dirty = true
	e.metrics.IndexDocuments.Set(float64(e.docs.Len()))
}

// Commit writes the current state as the next generation and removes older
// generations. It is a no-op when nothing changed since the last commit.
func (e *Engine) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrClosed
	}
	if !e.dirty {
		e.mu.RUnlock()
		return nil
	}
	snap := e.idx.Snapshot()
	docs := e.docs.All()
	version := e.version
	e.mu.RUnlock()

	return e.commitSnapshot(snap, docs, version)
}

// commitSnapshot must be called with commitMu held.
func (e *Engine) commitSnapshot(snap index.Snapshot, docs []store.Document, version uint64) error {
	start := time.Now()
	gen := e.generation + 1
	info, err := e.writer.Write(gen, snap, docs)
	if err != nil {
		e.metrics.IndexCommitsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("committing generation %d: %w", gen, apperrors.New(apperrors.ErrStorageUnavailable, err.Error()))
	}

	e.mu.Lock()
	e.generation = gen
	e.commitID = info.CommitID
	if e.version == version {
		e.dirty = false
	}
	e.mu.Unlock()

	name := info.Name
	e.removeOlderSegments(name)
	e.metrics.IndexCommitsTotal.WithLabelValues("ok").Inc()
	e.metrics.IndexGeneration.Set(float64(gen))
	e.logger.Info("index committed",
		"segment", name,
		"generation", gen,
		"docs", len(docs),
		"terms", len(snap.Terms),
		"duration", time.Since(start),
	)
	return nil
}

func (e *Engine) removeOlderSegments(keep string) {
	names, err := e.dir.List(segment.Suffix)
	if err != nil {
		e.logger.Warn("listing segments for cleanup", "error", err)
		return
	}
	for _, name := range names {
		if name == keep {
			continue
		}
		if err := e.dir.Remove(name); err != nil {
			e.logger.Warn("removing old segment", "segment", name, "error", err)
		}
	}
}

// Close commits outstanding changes and releases the write lock. Writes that
// race with Close either land in the final commit or fail with ErrClosed.
// Calling it again is a no-op.
func (e *Engine) Close() error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	dirty := e.dirty
	var (
		snap    index.Snapshot
		docs    []store.Document
		version uint64
	)
	if dirty {
		snap, docs, version = e.idx.Snapshot(), e.docs.All(), e.version
	}
	e.mu.Unlock()

	var commitErr error
	if dirty {
		commitErr = e.commitSnapshot(snap, docs, version)
	}

	if err := e.dir.Close(); err != nil {
		return errors.Join(commitErr, fmt.Errorf("releasing index directory: %w", err))
	}
	return commitErr
}

// Generation is the generation of the last committed segment, 0 if none.
func (e *Engine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

// State identifies the content searches currently see. Engines reporting
// equal States answer every query identically, whichever directory or
// process they belong to, which makes it usable as a shared cache key.
type State struct {
	// CommitID is the id of the loaded or last written segment; zero for an
	// index that was never committed.
	CommitID   uuid.UUID
	Generation uint64
	// Session and Version are set only while uncommitted changes exist.
	Session uuid.UUID
	Version uint64
}

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := State{CommitID: e.commitID, Generation: e.generation}
	if e.dirty {
		st.Session = e.session
		st.Version = e.version
	}
	return st
}

// Stats is a point-in-time summary of the index.
type Stats struct {
	Documents  int
	Terms      int
	Generation uint64
	Dirty      bool
	Closed     bool
	ReadOnly   bool
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Documents:  e.docs.Len(),
		Terms:      e.idx.TermCount(),
		Generation: e.generation,
		Dirty:      e.dirty,
		Closed:     e.closed,
		ReadOnly:   e.readOnly,
	}
}

// Read runs fn with a consistent view of the index. fn must not retain the
// view or call back into the Engine's write methods.
func (e *Engine) Read(ctx context.Context, fn func(View) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return fn(view{e: e})
}

type analyzedField struct {
	name   string
	tokens []tokenizer.Token
}

func (e *Engine) analyze(rec schema.Record) ([]analyzedField, store.Document, error) {
	fields := e.schema.Fields()
	analyzed := make([]analyzedField, 0, len(fields))
	doc := store.Document{ID: rec.ID, Fields: make(map[string]string)}
	for _, f := range fields {
		text := rec.Get(e.schema, f.Name)
		if f.Stored && f.Name != e.schema.KeyField {
			if v, ok := rec.Fields[f.Name]; ok {
				doc.Fields[f.Name] = v
			}
		}
		if !f.Indexed {
			continue
		}
		tokens, err := e.analyzer.Analyze(text)
		if err != nil {
			return nil, store.Document{}, fmt.Errorf("analyzing field %q of record %d: %w", f.Name, rec.ID, err)
		}
		analyzed = append(analyzed, analyzedField{name: f.Name, tokens: tokens})
	}
	return analyzed, doc, nil
}

// relistAttempts bounds how often a read-only open re-lists segments that a
// concurrent writer removed between listing and opening them.
const relistAttempts = 3

// loadLatestSegment restores the newest readable generation. Unreadable
// generations are skipped with a warning. A writer removes leftover temp
// files from an interrupted commit; a read-only engine leaves them, since
// they may belong to a commit in progress.
func (e *Engine) loadLatestSegment() error {
	if !e.readOnly {
		temps, err := e.dir.List(".tmp")
		if err != nil {
			return err
		}
		for _, name := range temps {
			if strings.HasSuffix(name, segment.Suffix+".tmp") {
				e.logger.Warn("removing incomplete segment", "file", name)
				_ = e.dir.Remove(name)
			}
		}
	}

	for attempt := 1; ; attempt++ {
		loaded, vanished, err := e.loadNewestSegment()
		if err != nil || loaded {
			return err
		}
		if !vanished || attempt >= relistAttempts {
			break
		}
		e.logger.Debug("segment removed while loading, listing again", "attempt", attempt)
	}
	e.logger.Info("no existing segment, starting empty")
	return nil
}

// loadNewestSegment loads the newest segment that verifies. vanished reports
// that a listed segment no longer existed when it was opened.
func (e *Engine) loadNewestSegment() (loaded, vanished bool, err error) {
	names, err := e.dir.List(segment.Suffix)
	if err != nil {
		return false, false, err
	}
	for i := len(names) - 1; i >= 0; i-- {
		reader, err := segment.OpenReader(e.dir.File(names[i]))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				vanished = true
				continue
			}
			e.logger.Error("failed to open segment, skipping", "segment", names[i], "error", err)
			continue
		}
		snap, docs, err := reader.Load()
		reader.Close()
		if err != nil {
			e.logger.Error("failed to load segment, skipping", "segment", names[i], "error", err)
			continue
		}
		e.idx.Restore(snap)
		for _, doc := range docs {
			e.docs.Put(doc)
		}
		e.generation = reader.Generation()
		e.commitID = reader.CommitID()
		e.metrics.IndexGeneration.Set(float64(e.generation))
		e.metrics.IndexDocuments.Set(float64(e.docs.Len()))
		e.logger.Info("loaded existing segment",
			"segment", names[i],
			"generation", e.generation,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
		return true, false, nil
	}
	return false, vanished, nil
}
