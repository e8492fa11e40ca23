package realtime

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/litebase/internal/access"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/schema"
)

// syncRecorder is a minimal thread-safe http.ResponseWriter + http.Flusher,
// needed because the hub writes from its own goroutine while the test reads
// concurrently — httptest.ResponseRecorder's bytes.Buffer is not safe for
// that.
type syncRecorder struct {
	mu  sync.Mutex
	buf bytes.Buffer
	hdr http.Header
}

func newSyncRecorder() *syncRecorder { return &syncRecorder{hdr: http.Header{}} }

func (s *syncRecorder) Header() http.Header { return s.hdr }

func (s *syncRecorder) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncRecorder) WriteHeader(int) {}

func (s *syncRecorder) Flush() {}

func (s *syncRecorder) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func newTestHub(t *testing.T) (*Hub, *engine.Engine) {
	t.Helper()
	eng, err := engine.Open(filepath.Join(t.TempDir(), "realtime-test.db"), engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	ctx := context.Background()
	_, err = eng.Execute(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT, owner_id TEXT)`)
	require.NoError(t, err)

	sc := schema.New(eng)
	require.NoError(t, sc.Reload(ctx))

	ev := access.New(eng)
	h := New(eng, sc, ev)
	require.NoError(t, h.Start())
	t.Cleanup(h.Stop)
	return h, eng
}

func openAudience() access.Audience {
	return access.Audience{
		World:         access.ACL(access.OpCreate | access.OpRead | access.OpUpdate | access.OpDelete | access.OpSchema),
		Authenticated: access.ACL(access.OpCreate | access.OpRead | access.OpUpdate | access.OpDelete | access.OpSchema),
	}
}

func TestHubBroadcastsInsertToSubscriber(t *testing.T) {
	h, eng := newTestHub(t)
	h.SetTableConfig("widgets", TableConfig{Audience: openAudience()})

	rec := newSyncRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/realtime/widgets", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		_ = h.ServeHTTP(rec, req, "widgets", nil, false)
		close(done)
	}()

	// give ServeHTTP time to register before the write fires.
	time.Sleep(20 * time.Millisecond)

	_, err := eng.Execute(context.Background(), `INSERT INTO widgets (name) VALUES (?)`, "sprocket")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(rec.String(), "sprocket")
	}, 2*time.Second, 10*time.Millisecond, "subscriber should receive the insert event")

	assert.Contains(t, rec.String(), `"action":"INSERT"`)

	cancel()
	<-done
}

func TestHubDeniesUnknownTable(t *testing.T) {
	h, _ := newTestHub(t)

	rec := newSyncRecorder()
	req := httptest.NewRequest(http.MethodGet, "/realtime/ghosts", nil)

	err := h.ServeHTTP(rec, req, "ghosts", nil, false)
	assert.Error(t, err)
}

func TestHubDeniesReadForUnauthorizedAudience(t *testing.T) {
	h, _ := newTestHub(t)
	h.SetTableConfig("widgets", TableConfig{
		Audience: access.Audience{World: 0, Authenticated: access.ACL(access.OpRead)},
	})

	rec := newSyncRecorder()
	req := httptest.NewRequest(http.MethodGet, "/realtime/widgets", nil)

	err := h.ServeHTTP(rec, req, "widgets", nil, false)
	assert.Error(t, err, "anonymous caller must be rejected when World ACL lacks Read")
}

func TestHubSkipsEventsDeniedByReadRule(t *testing.T) {
	h, eng := newTestHub(t)
	h.SetTableConfig("widgets", TableConfig{
		Audience: openAudience(),
		ReadRule: `_ROW_.owner_id = _USER_.id`,
	})

	owner := "user-1"
	rec := newSyncRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/realtime/widgets", nil).WithContext(ctx)

	done := make(chan struct{})
	go func() {
		_ = h.ServeHTTP(rec, req, "widgets", &owner, true)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	_, err := eng.Execute(context.Background(), `INSERT INTO widgets (name, owner_id) VALUES (?, ?)`, "not-mine", "someone-else")
	require.NoError(t, err)

	// Give the dispatch loop a moment to (not) deliver, then confirm nothing arrived.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.String(), "a row owned by someone else must never reach this subscriber")

	cancel()
	<-done
}
