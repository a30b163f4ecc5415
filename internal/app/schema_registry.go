package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hylla/slate/internal/schema"
)

// SchemaUpdated is emitted when a rebuild produces a different document.
type SchemaUpdated struct {
	Document     schema.Document
	Hash         string
	PreviousHash string
	Omitted      map[string][]schema.FieldOutcome
	At           time.Time
}

// SchemaRegistry caches the assembled query-protocol document between rebuilds.
type SchemaRegistry struct {
	mu     sync.RWMutex
	doc    schema.Document
	decls  []schema.EntityDeclaration
	logger *log.Logger
	clock  Clock
	sinks  []SchemaSink
}

// NewSchemaRegistry constructs an empty registry.
func NewSchemaRegistry(logger *log.Logger, clock Clock, sinks ...SchemaSink) *SchemaRegistry {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if clock == nil {
		clock = time.Now
	}
	return &SchemaRegistry{
		logger: logger,
		clock:  clock,
		sinks:  append([]SchemaSink(nil), sinks...),
	}
}

// AddSink registers one more schema sink.
func (r *SchemaRegistry) AddSink(sink SchemaSink) {
	if sink == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, sink)
}

// Load compiles declarations at boot and notifies sinks.
func (r *SchemaRegistry) Load(ctx context.Context, decls []schema.EntityDeclaration) (SchemaUpdated, error) {
	update, _, err := r.Reload(ctx, decls)
	return update, err
}

// Reload rebuilds the document and notifies sinks when its hash changed.
// Sink failures are joined and returned after the new document is already live.
func (r *SchemaRegistry) Reload(ctx context.Context, decls []schema.EntityDeclaration) (SchemaUpdated, bool, error) {
	doc := schema.BuildDocument(decls)
	omitted := doc.Omitted()
	for entity, outcomes := range omitted {
		for _, outcome := range outcomes {
			r.logger.Warn("schema field omitted", "entity", entity, "field", outcome.Name, "reason", outcome.Reason)
		}
	}

	r.mu.Lock()
	previous := r.doc
	changed := previous.IsZero() || previous.Hash() != doc.Hash()
	r.doc = doc
	r.decls = cloneDeclarations(decls)
	sinks := append([]SchemaSink(nil), r.sinks...)
	r.mu.Unlock()

	update := SchemaUpdated{
		Document: doc,
		Hash:     doc.Hash(),
		Omitted:  omitted,
		At:       r.clock().UTC(),
	}
	if !previous.IsZero() {
		update.PreviousHash = previous.Hash()
	}
	if !changed {
		r.logger.Debug("schema unchanged", "hash", update.Hash)
		return update, false, nil
	}
	r.logger.Info("schema rebuilt", "hash", update.Hash, "previous_hash", update.PreviousHash, "types", len(doc.Definitions()))

	var errs []error
	for _, sink := range sinks {
		if err := sink.PublishSchema(ctx, update); err != nil {
			r.logger.Error("schema sink failed", "hash", update.Hash, "err", err)
			errs = append(errs, err)
		}
	}
	return update, true, errors.Join(errs...)
}

// Document returns the live document.
func (r *SchemaRegistry) Document() schema.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc
}

// Declarations returns a copy of the declarations behind the live document.
func (r *SchemaRegistry) Declarations() []schema.EntityDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneDeclarations(r.decls)
}

// LoadDeclarations returns the built-in declarations overlaid with the file at path.
// An empty path or a missing file yields the built-ins alone.
func LoadDeclarations(path string) ([]schema.EntityDeclaration, error) {
	base := schema.BuiltinDeclarations()
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, nil
		}
		return nil, fmt.Errorf("read entity metadata %q: %w", path, err)
	}
	overlay, err := schema.ParseDeclarations(content)
	if err != nil {
		return nil, fmt.Errorf("parse entity metadata %q: %w", path, err)
	}
	return schema.MergeDeclarations(base, overlay), nil
}

// cloneDeclarations deep-copies declaration field maps.
func cloneDeclarations(in []schema.EntityDeclaration) []schema.EntityDeclaration {
	if in == nil {
		return nil
	}
	out := make([]schema.EntityDeclaration, 0, len(in))
	for _, decl := range in {
		out = append(out, schema.EntityDeclaration{Entity: decl.Entity, Fields: decl.Fields.Clone()})
	}
	return out
}

// FileSchemaSink writes each new document to one file.
type FileSchemaSink struct {
	Path string
}

// PublishSchema writes the document text atomically.
func (s FileSchemaSink) PublishSchema(_ context.Context, update SchemaUpdated) error {
	path := strings.TrimSpace(s.Path)
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create schema output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create schema temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if _, err := io.WriteString(tmp, update.Document.Text()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write schema temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close schema temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace schema output %q: %w", path, err)
	}
	return nil
}
