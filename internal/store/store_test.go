package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock returns a clock that advances one second per call.
func stepClock(start time.Time) func() time.Time {
	cur := start
	return func() time.Time {
		cur = cur.Add(time.Second)
		return cur
	}
}

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingExporter struct {
	calls [][]byte
	err   error
}

func (r *recordingExporter) Export(_ context.Context, data []byte) error {
	r.calls = append(r.calls, data)
	return r.err
}

func readRaw(t *testing.T, s *Store) map[string]interface{} {
	t.Helper()
	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestPathAndEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s := New(dir)
	require.Equal(t, filepath.Join(dir, "app_data.json"), s.Path())

	require.NoError(t, s.EnsureDir())
	fi, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, fi.IsDir())
	// idempotent
	require.NoError(t, s.EnsureDir())
}

func TestReadMissingFile(t *testing.T) {
	s := New(t.TempDir())
	doc, err := s.Read()
	require.Nil(t, doc)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o644))

	doc, err := New(dir).Read()
	require.Nil(t, doc)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestReadLegacyTimestamps(t *testing.T) {
	dir := t.TempDir()
	legacy := `{
  "first_started": "2024-05-06T07:08:09.123456",
  "restart_count": 4,
  "last_restart": "2024-05-07T00:00:00"
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(legacy), 0o644))

	doc, err := New(dir).Read()
	require.NoError(t, err)
	require.Equal(t, 4, doc.RestartCount)
	require.Equal(t, 2024, doc.FirstStarted.Year())
	require.Equal(t, 123456000, doc.FirstStarted.Nanosecond())
	require.Equal(t, 7, doc.LastRestart.Day())
	require.Nil(t, doc.UserMessage)
}

func TestWriteIsIndentedAndAtomic(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "fresh")
	s := New(dir)
	doc := &Document{RestartCount: 2, LastRestart: NewTimestamp(epoch)}
	require.NoError(t, s.Write(context.Background(), doc))

	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.Equal(t, "{\n  \"restart_count\": 2,\n  \"last_restart\": \"2025-03-01T12:00:00Z\"\n}", string(b))

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteExportsSnapshot(t *testing.T) {
	exp := &recordingExporter{err: errors.New("bucket unreachable")}
	s := New(t.TempDir(), WithExporter(exp))

	// exporter failures never fail the local write
	require.NoError(t, s.Write(context.Background(), &Document{RestartCount: 1}))
	require.Len(t, exp.calls, 1)
	require.Contains(t, string(exp.calls[0]), `"restart_count": 1`)
}

func TestWriteFailsWhenDirIsAFile(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "data")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := New(blocker).Write(context.Background(), &Document{RestartCount: 1})
	require.Error(t, err)
}

func TestInitializeCreatesDocument(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "data"), WithClock(stepClock(epoch)))

	doc, err := s.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, doc.RestartCount)
	require.NotNil(t, doc.FirstStarted)
	require.Equal(t, doc.FirstStarted.Time, doc.LastRestart.Time)
	require.Nil(t, doc.UserMessage)

	raw := readRaw(t, s)
	assert.EqualValues(t, 1, raw["restart_count"])
	assert.Contains(t, raw, "first_started")
	assert.Contains(t, raw, "last_restart")
	assert.NotContains(t, raw, "user_message")
}

func TestInitializeIncrementsOnRestart(t *testing.T) {
	dir := t.TempDir()
	clock := stepClock(epoch)
	first, err := New(dir, WithClock(clock)).Initialize(context.Background())
	require.NoError(t, err)

	second, err := New(dir, WithClock(clock)).Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.RestartCount+1, second.RestartCount)
	require.True(t, second.LastRestart.After(first.LastRestart.Time))
	require.True(t, second.FirstStarted.Equal(first.FirstStarted.Time))

	third, err := New(dir, WithClock(clock)).Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, third.RestartCount)
}

func TestInitializeWithoutCounterStartsAtOne(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"user_message": "kept"}`), 0o644))

	doc, err := New(dir, WithMessages(true)).Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, doc.RestartCount)
	require.Equal(t, "kept", doc.Message())
	require.Nil(t, doc.FirstStarted)
}

func TestInitializeBackfillsUserMessage(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir).Initialize(context.Background())
	require.NoError(t, err)
	require.NotContains(t, readRaw(t, New(dir)), "user_message")

	s := New(dir, WithMessages(true))
	doc, err := s.Initialize(context.Background())
	require.NoError(t, err)
	require.NotNil(t, doc.UserMessage)
	require.Equal(t, "", *doc.UserMessage)

	raw := readRaw(t, s)
	require.Contains(t, raw, "user_message")
	require.Equal(t, "", raw["user_message"])
}

func TestInitializeLeavesCorruptFileAlone(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	_, err := New(dir).Initialize(context.Background())
	require.ErrorIs(t, err, ErrCorrupt)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "garbage", string(b))
}

func TestUpdateMessage(t *testing.T) {
	s := New(t.TempDir(), WithMessages(true), WithClock(stepClock(epoch)))
	_, err := s.Initialize(context.Background())
	require.NoError(t, err)

	doc, err := s.UpdateMessage(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", doc.Message())
	require.NotNil(t, doc.MessageUpdated)
	require.Equal(t, 1, doc.RestartCount)

	raw := readRaw(t, s)
	require.Equal(t, "hello", raw["user_message"])
	require.Contains(t, raw, "message_updated")
}

func TestUpdateMessageWithoutDocumentIsDropped(t *testing.T) {
	s := New(t.TempDir(), WithMessages(true))

	_, err := s.UpdateMessage(context.Background(), "hello")
	require.ErrorIs(t, err, ErrNotFound)

	_, statErr := os.Stat(s.Path())
	require.True(t, os.IsNotExist(statErr), "no document may be created by a message update")
}

func TestUpdateMessageKeepsTextVerbatim(t *testing.T) {
	s := New(t.TempDir(), WithMessages(true))
	_, err := s.Initialize(context.Background())
	require.NoError(t, err)

	msg := "<b>unicode ✓</b> " + strings.Repeat("x", 10)
	_, err = s.UpdateMessage(context.Background(), msg)
	require.NoError(t, err)

	doc, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, msg, doc.Message())
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context) (func(), error) {
	return nil, errors.New("lock backend down")
}

func TestLockFailureAbortsWrite(t *testing.T) {
	s := New(t.TempDir(), WithLocker(failingLocker{}))

	_, err := s.Initialize(context.Background())
	require.Error(t, err)
	_, statErr := os.Stat(s.Path())
	require.True(t, os.IsNotExist(statErr))
}

func TestInitializeKeepsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName),
		[]byte(`{"restart_count": 2, "operator_note": "keep me", "tags": ["a", "b"]}`), 0o644))

	s := New(dir, WithClock(stepClock(epoch)))
	doc, err := s.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, doc.RestartCount)

	raw := readRaw(t, s)
	assert.EqualValues(t, 3, raw["restart_count"])
	assert.Equal(t, "keep me", raw["operator_note"])
	assert.Equal(t, []interface{}{"a", "b"}, raw["tags"])

	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	// known keys come first, extras after them in sorted order
	out := string(b)
	require.Less(t, strings.Index(out, `"last_restart"`), strings.Index(out, `"operator_note"`))
	require.Less(t, strings.Index(out, `"operator_note"`), strings.Index(out, `"tags"`))
}

func TestUnknownKeysSurviveMessageUpdate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName),
		[]byte(`{"restart_count": 1, "operator_note": {"by": "ops"}}`), 0o644))

	s := New(dir, WithMessages(true))
	_, err := s.UpdateMessage(context.Background(), "hi")
	require.NoError(t, err)

	raw := readRaw(t, s)
	require.Equal(t, "hi", raw["user_message"])
	require.Equal(t, map[string]interface{}{"by": "ops"}, raw["operator_note"])
}

func TestReadNullFileIsNotFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("null\n"), 0o644))

	doc, err := New(dir).Read()
	require.Nil(t, doc)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestInitializeReplacesNullFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("null"), 0o644))

	s := New(dir, WithClock(stepClock(epoch)))
	doc, err := s.Initialize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, doc.RestartCount)
	require.NotNil(t, doc.FirstStarted)

	raw := readRaw(t, s)
	assert.EqualValues(t, 1, raw["restart_count"])
	assert.Contains(t, raw, "first_started")
}

// blockingExporter waits for the context on its first call only.
type blockingExporter struct {
	entered     chan struct{}
	hadDeadline chan bool
	once        sync.Once
}

func newBlockingExporter() *blockingExporter {
	return &blockingExporter{entered: make(chan struct{}), hadDeadline: make(chan bool, 1)}
}

func (b *blockingExporter) Export(ctx context.Context, _ []byte) error {
	first := false
	b.once.Do(func() { first = true })
	if !first {
		return nil
	}
	_, ok := ctx.Deadline()
	b.hadDeadline <- ok
	close(b.entered)
	<-ctx.Done()
	return ctx.Err()
}

func TestExportIsBoundedByTimeout(t *testing.T) {
	exp := newBlockingExporter()
	s := New(t.TempDir(), WithExporter(exp), WithExportTimeout(50*time.Millisecond))

	start := time.Now()
	doc, err := s.Initialize(context.Background())
	require.NoError(t, err, "a hung exporter must not fail the write")
	require.Equal(t, 1, doc.RestartCount)
	require.Less(t, time.Since(start), 2*time.Second)
	require.True(t, <-exp.hadDeadline)

	// the local file was written regardless
	require.EqualValues(t, 1, readRaw(t, s)["restart_count"])
}

func TestExportRunsAfterLockIsReleased(t *testing.T) {
	exp := newBlockingExporter()
	s := New(t.TempDir(), WithMessages(true), WithExporter(exp), WithExportTimeout(5*time.Second))

	initCtx, stopInit := context.WithCancel(context.Background())
	defer stopInit()
	initDone := make(chan error, 1)
	go func() {
		_, err := s.Initialize(initCtx)
		initDone <- err
	}()

	select {
	case <-exp.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("exporter was never called")
	}

	// the first export is still blocked; a second writer must get the lock
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	doc, err := s.UpdateMessage(ctx, "while exporting")
	require.NoError(t, err)
	require.Equal(t, "while exporting", doc.Message())

	select {
	case <-initDone:
		t.Fatal("Initialize returned before its export finished")
	default:
	}
	stopInit()
	require.NoError(t, <-initDone)
}
