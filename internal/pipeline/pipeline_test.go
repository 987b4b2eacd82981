package pipeline

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/logwarden/internal/alert"
	"github.com/your-org/logwarden/internal/model"
	"github.com/your-org/logwarden/internal/rules"
	"github.com/your-org/logwarden/internal/store"
)

// fakeConnector serves canned listings and blob bodies and counts downloads
// so tests can prove a blob was excluded before any download attempt.
type fakeConnector struct {
	refs      map[string][]model.BlobRef
	bodies    map[string][]byte
	listErr   map[string]error
	bodyErr   map[string]error
	downloads int
}

func (f *fakeConnector) List(_ context.Context, container string) ([]model.BlobRef, error) {
	if err := f.listErr[container]; err != nil {
		return nil, err
	}
	return f.refs[container], nil
}

func (f *fakeConnector) Download(_ context.Context, container, name string) ([]byte, error) {
	f.downloads++
	key := container + "/" + name
	if err := f.bodyErr[key]; err != nil {
		return nil, err
	}
	return f.bodies[key], nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newPipeline(t *testing.T, conn *fakeConnector, db *store.Store, ruleSet []model.Rule, warnings *[]Warning) (*Pipeline, *bytes.Buffer) {
	t.Helper()
	console := &bytes.Buffer{}
	dispatcher := alert.NewDispatcher(alert.Params{
		Stdout:  true,
		Logger:  zaptest.NewLogger(t),
		Console: console,
	})
	containers := make([]string, 0, len(conn.refs))
	for c := range conn.refs {
		containers = append(containers, c)
	}
	for c := range conn.listErr {
		if _, ok := conn.refs[c]; !ok {
			containers = append(containers, c)
		}
	}
	p := New(Params{
		Connector:  conn,
		Store:      db,
		Engine:     rules.New(ruleSet),
		Dispatcher: dispatcher,
		Containers: containers,
		Window:     24 * time.Hour,
		Logger:     zaptest.NewLogger(t),
		OnWarning: func(w Warning) {
			if warnings != nil {
				*warnings = append(*warnings, w)
			}
		},
	})
	return p, console
}

func publicAccessRule() []model.Rule {
	return []model.Rule{{
		Name: "public-access",
		When: model.MatchSpec{
			Category: "StorageRead",
			Contains: &model.ContainsSpec{Field: "requestURI", Any: []string{"/public/"}},
		},
	}}
}

func TestCycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	container := "insights-logs-storageread"
	body := `{"time": "2026-08-27T09:00:00Z", "operationName": "GetBlob", "requestUri": "https://x/public/dump.sql?sig=S"}
{"time": "2026-08-27T09:01:00Z", "operationName": "GetBlob", "requestUri": "https://x/private/doc.txt"}
`
	conn := &fakeConnector{
		refs: map[string][]model.BlobRef{
			container: {{Container: container, Name: "h1.json", LastModified: time.Now().UTC(), ETag: "e1"}},
		},
		bodies: map[string][]byte{container + "/h1.json": []byte(body)},
	}
	db := newTestStore(t)
	p, console := newPipeline(t, conn, db, publicAccessRule(), nil)

	require.NoError(t, p.Cycle(ctx))

	events, err := db.EventCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, events)

	alerts, err := db.AlertCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, alerts)

	assert.Contains(t, console.String(), "[ALERT] public-access")
	assert.Contains(t, console.String(), "sig=REDACTEDS")

	done, err := db.IsProcessed(ctx, container, "h1.json")
	require.NoError(t, err)
	assert.True(t, done)

	// Second run with no new blobs: nothing new, nothing re-downloaded.
	downloadsBefore := conn.downloads
	require.NoError(t, p.Cycle(ctx))

	events, err = db.EventCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, events)
	alerts, err = db.AlertCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, alerts)
	assert.Equal(t, downloadsBefore, conn.downloads)
}

func TestCycleEmptyBlobStillMarked(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConnector{
		refs: map[string][]model.BlobRef{
			"c": {{Container: "c", Name: "empty.json", LastModified: time.Now().UTC()}},
		},
		bodies: map[string][]byte{"c/empty.json": []byte("   \n")},
	}
	db := newTestStore(t)
	p, _ := newPipeline(t, conn, db, nil, nil)

	require.NoError(t, p.Cycle(ctx))

	events, err := db.EventCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, events)

	done, err := db.IsProcessed(ctx, "c", "empty.json")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestCycleDownloadFailureRetriedNextCycle(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConnector{
		refs: map[string][]model.BlobRef{
			"c": {{Container: "c", Name: "b.json", LastModified: time.Now().UTC()}},
		},
		bodies:  map[string][]byte{"c/b.json": []byte(`{"category": "Activity"}`)},
		bodyErr: map[string]error{"c/b.json": errors.New("503 slow down")},
	}
	db := newTestStore(t)
	var warnings []Warning
	p, _ := newPipeline(t, conn, db, nil, &warnings)

	require.NoError(t, p.Cycle(ctx))

	done, err := db.IsProcessed(ctx, "c", "b.json")
	require.NoError(t, err)
	assert.False(t, done, "failed download must not be marked processed")
	require.Len(t, warnings, 1)
	assert.Equal(t, WarnDownload, warnings[0].Kind)
	assert.Equal(t, "b.json", warnings[0].Blob)

	// The failure clears; the next cycle picks the blob up again.
	delete(conn.bodyErr, "c/b.json")
	require.NoError(t, p.Cycle(ctx))

	events, err := db.EventCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, events)

	done, err = db.IsProcessed(ctx, "c", "b.json")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestCycleListFailureIsolatedPerContainer(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConnector{
		refs: map[string][]model.BlobRef{
			"good": {{Container: "good", Name: "b.json", LastModified: time.Now().UTC()}},
		},
		bodies:  map[string][]byte{"good/b.json": []byte(`{"category": "Activity"}`)},
		listErr: map[string]error{"bad": errors.New("403 forbidden")},
	}
	db := newTestStore(t)
	var warnings []Warning
	p, _ := newPipeline(t, conn, db, nil, &warnings)

	require.NoError(t, p.Cycle(ctx))

	events, err := db.EventCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, events, "healthy container must still be processed")

	require.Len(t, warnings, 1)
	assert.Equal(t, WarnList, warnings[0].Kind)
	assert.Equal(t, "bad", warnings[0].Container)
}

func TestCycleProcessedBlobExcludedBeforeDownload(t *testing.T) {
	ctx := context.Background()
	conn := &fakeConnector{
		refs: map[string][]model.BlobRef{
			"c": {{Container: "c", Name: "seen.json", LastModified: time.Now().UTC()}},
		},
		bodies: map[string][]byte{"c/seen.json": []byte(`{"a": 1}`)},
	}
	db := newTestStore(t)
	require.NoError(t, db.MarkProcessed(ctx, "c", "seen.json", "", "2026-08-27T09:00:00Z"))

	p, _ := newPipeline(t, conn, db, nil, nil)
	require.NoError(t, p.Cycle(ctx))

	assert.Zero(t, conn.downloads, "ledger exclusion must happen before download")
}

func TestCycleRecencyWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	conn := &fakeConnector{
		refs: map[string][]model.BlobRef{
			"c": {
				{Container: "c", Name: "old.json", LastModified: now.Add(-48 * time.Hour)},
				{Container: "c", Name: "fresh.json", LastModified: now.Add(-time.Hour)},
				{Container: "c", Name: "no-mtime.json"},
			},
		},
		bodies: map[string][]byte{
			"c/old.json":      []byte(`{"a": 1}`),
			"c/fresh.json":    []byte(`{"a": 2}`),
			"c/no-mtime.json": []byte(`{"a": 3}`),
		},
	}
	db := newTestStore(t)
	p, _ := newPipeline(t, conn, db, nil, nil)
	p.now = func() time.Time { return now }

	require.NoError(t, p.Cycle(ctx))

	// old.json is outside the 24h window; the blob without modification
	// metadata fails open and is included.
	events, err := db.EventCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, events)

	done, err := db.IsProcessed(ctx, "c", "old.json")
	require.NoError(t, err)
	assert.False(t, done)

	done, err = db.IsProcessed(ctx, "c", "no-mtime.json")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestCycleMalformedBlobMarkedProcessed(t *testing.T) {
	// A structurally malformed body yields no records, and the blob is
	// still marked so it is never retried.
	ctx := context.Background()
	conn := &fakeConnector{
		refs: map[string][]model.BlobRef{
			"c": {{Container: "c", Name: "garbage.json", LastModified: time.Now().UTC()}},
		},
		bodies: map[string][]byte{"c/garbage.json": []byte("%%% not json %%%")},
	}
	db := newTestStore(t)
	p, _ := newPipeline(t, conn, db, nil, nil)

	require.NoError(t, p.Cycle(ctx))

	events, err := db.EventCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, events)

	done, err := db.IsProcessed(ctx, "c", "garbage.json")
	require.NoError(t, err)
	assert.True(t, done)
}
