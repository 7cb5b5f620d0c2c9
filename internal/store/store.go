package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/paastest/clustertest/internal/lock"
	"github.com/paastest/clustertest/pkg/logger"
	"github.com/paastest/clustertest/pkg/metrics"
)

const (
	// FileName is the document's name inside the data directory.
	FileName = "app_data.json"
	// DefaultExportTimeout bounds each snapshot export.
	DefaultExportTimeout = 5 * time.Second
)

var (
	// ErrNotFound means no document has been written to the data directory yet.
	ErrNotFound = errors.New("document not found")
	// ErrCorrupt means the file exists but is not a valid document.
	ErrCorrupt = errors.New("document is not valid JSON")
)

// Exporter receives a copy of every successfully written document.
type Exporter interface {
	Export(ctx context.Context, data []byte) error
}

// Store reads and writes the persisted document under a data directory.
type Store struct {
	dir           string
	path          string
	now           func() time.Time
	locker        lock.Locker
	messages      bool
	exporter      Exporter
	exportTimeout time.Duration
	log           *logger.Logger
}

type Option func(*Store)

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocker replaces the default in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(s *Store) { s.locker = l }
}

// WithMessages makes Initialize guarantee a user_message field.
func WithMessages(enabled bool) Option {
	return func(s *Store) { s.messages = enabled }
}

// WithExporter copies every written document to e.
func WithExporter(e Exporter) Option {
	return func(s *Store) { s.exporter = e }
}

// WithExportTimeout overrides DefaultExportTimeout.
func WithExportTimeout(d time.Duration) Option {
	return func(s *Store) { s.exportTimeout = d }
}

func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:           dir,
		path:          filepath.Join(dir, FileName),
		now:           time.Now,
		locker:        lock.NewLocal(),
		exportTimeout: DefaultExportTimeout,
		log:           logger.Named("store"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Path is the resolved location of the document file.
func (s *Store) Path() string {
	return s.path
}

// EnsureDir creates the data directory if it is missing.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", s.dir, err)
	}
	return nil
}

// Read returns the persisted document, ErrNotFound when there is none, or an
// error wrapping ErrCorrupt when the file cannot be parsed.
func (s *Store) Read() (*Document, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil, ErrNotFound
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	return &doc, nil
}

// Write replaces the document on disk and then exports a copy.
// Exporter failures are logged, never returned.
func (s *Store) Write(ctx context.Context, doc *Document) error {
	b, err := s.writeFile(doc)
	if err != nil {
		return err
	}
	s.export(ctx, b)
	return nil
}

// writeFile puts the new content in a temp file in the same directory and
// renames it over the old one, so concurrent readers see either the old or
// the new document, never a partial one.
func (s *Store) writeFile(doc *Document) (b []byte, err error) {
	defer func() { metrics.StoreWrites.WithLabelValues(metrics.Result(err)).Inc() }()

	if err := s.EnsureDir(); err != nil {
		return nil, err
	}
	b, err = doc.MarshalIndent()
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+FileName+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(b); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return nil, fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return nil, fmt.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return nil, fmt.Errorf("replace %s: %w", s.path, err)
	}
	return b, nil
}

// export hands b to the exporter under its own deadline, so a hung backend
// cannot stall the caller indefinitely.
func (s *Store) export(ctx context.Context, b []byte) {
	if s.exporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.exportTimeout)
	defer cancel()
	if err := s.exporter.Export(ctx, b); err != nil {
		s.log.Warnf("export snapshot: %v", err)
	}
}
