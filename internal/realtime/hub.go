// Package realtime implements spec.md §4.5's pre-update-hook-driven change
// stream: every committed write on a record-API table is re-checked against
// that subscriber's Read rule and fanned out over Server-Sent Events.
//
// Grounded on the teacher's internal/api/sse/manager.go (registry mutex
// guarding a per-resource subscriber slice, a documented lock hierarchy)
// with the qBittorrent sync-loop event source swapped for
// internal/engine's pre-update hook, and the teacher's raw
// http.ResponseWriter flush loop swapped for github.com/tmaxmax/go-sse's
// wire format.
package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tmaxmax/go-sse"

	"github.com/autobrr/litebase/internal/access"
	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/schema"
)

const subscriberBuffer = 16

// TableConfig is the slice of a record API's configuration the hub needs to
// re-check access per event: the table's ACL audience and Read rule.
type TableConfig struct {
	Audience access.Audience
	ReadRule string
}

// Hub owns the pre-update hook registration, the subscriber registry, and
// the dispatch goroutine that turns committed writes into per-subscriber
// SSE messages.
type Hub struct {
	eng    *engine.Engine
	schema *schema.Cache
	access *access.Evaluator

	mu      sync.RWMutex
	configs map[string]TableConfig
	subs    map[string]map[*Subscription]struct{} // table -> subscriber set

	events chan engine.Event
	stop   chan struct{}
	wg     sync.WaitGroup

	serial atomic.Uint64
}

func New(eng *engine.Engine, sc *schema.Cache, ev *access.Evaluator) *Hub {
	return &Hub{
		eng:     eng,
		schema:  sc,
		access:  ev,
		configs: map[string]TableConfig{},
		subs:    map[string]map[*Subscription]struct{}{},
		events:  make(chan engine.Event, 1024),
		stop:    make(chan struct{}),
	}
}

// SetTableConfig registers (or updates) the audience/read-rule a table's
// subscribers are checked against. Called once per record API at startup
// and again whenever internal/config reloads one.
func (h *Hub) SetTableConfig(table string, cfg TableConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.configs[table] = cfg
}

// Start installs the writer's pre-update hook and launches the dispatch
// goroutine. The hook itself only enqueues (spec.md §4.5: never issue
// SQLite calls synchronously from inside it); the dispatch goroutine does
// the actual row re-read and per-subscriber fan-out.
func (h *Hub) Start() error {
	if err := h.eng.AddPreUpdateHook(h.enqueue); err != nil {
		return fmt.Errorf("realtime: install pre-update hook: %w", err)
	}
	h.wg.Add(1)
	go h.dispatchLoop()
	return nil
}

// Stop uninstalls the hook and drains the dispatch goroutine.
func (h *Hub) Stop() {
	_ = h.eng.RemovePreUpdateHook()
	close(h.stop)
	h.wg.Wait()
}

// SubscriberCount returns the total number of live subscriptions across
// every table, for internal/metrics' subscription-count gauge.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

func (h *Hub) enqueue(ev engine.Event) {
	select {
	case h.events <- ev:
	default:
		log.Warn().Str("table", ev.Table).Msg("realtime: event queue full, dropping change notification")
	}
}

func (h *Hub) dispatchLoop() {
	defer h.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-h.stop:
			return
		case ev := <-h.events:
			h.dispatch(ctx, ev)
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, ev engine.Event) {
	h.mu.RLock()
	subscribers, ok := h.subs[ev.Table]
	cfg := h.configs[ev.Table]
	h.mu.RUnlock()
	if !ok || len(subscribers) == 0 {
		return
	}

	entity, ok := h.schema.Entity(ev.Table)
	if !ok {
		return
	}
	pkCol, _ := entity.PKColumn()

	var row map[string]any
	var pkValue any
	if ev.Action != engine.Delete {
		var err error
		row, err = h.loadRow(ctx, ev.Table, ev.RowID)
		if err != nil {
			log.Error().Err(err).Str("table", ev.Table).Msg("realtime: re-read row after write")
			return
		}
		if pkCol.Name != "" {
			pkValue = row[pkCol.Name]
		}
	}

	columns := make([]string, 0, len(entity.Columns()))
	for _, c := range entity.Columns() {
		columns = append(columns, c.Name)
	}

	payload := changePayload{Table: ev.Table, Action: ev.Action.String(), Record: row}
	if ev.Action == engine.Delete && pkCol.Name != "" {
		payload.Record = map[string]any{pkCol.Name: ev.RowID}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*Subscription, 0, len(subscribers))
	for s := range subscribers {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if ev.Action != engine.Delete && cfg.ReadRule != "" {
			if err := h.access.RecordCheck(ctx, ev.Table, pkCol.Name, access.OpRead, cfg.ReadRule, sub.UserID, nil, pkValue, columns); err != nil {
				continue
			}
		}
		h.send(sub, data)
	}
}

func (h *Hub) loadRow(ctx context.Context, table string, rowid int64) (map[string]any, error) {
	rows, err := h.eng.ReadQueryRows(ctx, fmt.Sprintf("SELECT * FROM %s WHERE rowid = ?", quoteIdent(table)), rowid)
	if err != nil {
		return nil, err
	}
	if len(rows.Values) == 0 {
		return nil, sql.ErrNoRows
	}
	row := make(map[string]any, len(rows.Columns))
	for i, col := range rows.Columns {
		row[col] = rows.Values[0][i]
	}
	return row, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// send delivers data to sub without blocking the dispatch loop. A
// subscriber whose buffer is already full is disconnected rather than
// allowed to stall delivery to everyone else (spec.md §4.5's
// drop-slowest-subscriber policy).
func (h *Hub) send(sub *Subscription, data []byte) {
	select {
	case sub.ch <- data:
	default:
		sub.evict()
	}
}

type changePayload struct {
	Table  string         `json:"table"`
	Action string         `json:"action"`
	Record map[string]any `json:"record,omitempty"`
}

// Subscription is one connected SSE client.
type Subscription struct {
	table  string
	UserID *string
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) evict() {
	s.once.Do(func() { close(s.done) })
}

// ServeHTTP handles one subscribe request for table, streaming every
// future change the caller's Read rule permits until the connection
// closes. userID is nil for anonymous (world-audience) callers.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, table string, userID *string, authenticated bool) error {
	h.mu.RLock()
	cfg, known := h.configs[table]
	h.mu.RUnlock()
	if !known {
		return fmt.Errorf("realtime: unknown table %q", table)
	}
	if !cfg.Audience.For(authenticated).Allows(access.OpRead) {
		return fmt.Errorf("realtime: table %q not readable by this audience", table)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("realtime: response writer does not support flushing")
	}

	sub := &Subscription{
		table:  table,
		UserID: userID,
		ch:     make(chan []byte, subscriberBuffer),
		done:   make(chan struct{}),
	}
	h.register(sub)
	defer h.unregister(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.done:
			return nil
		case data := <-sub.ch:
			msg := &sse.Message{
				Type: sse.Type(table),
				ID:   sse.ID(strconv.FormatUint(h.serial.Add(1), 10)),
			}
			msg.AppendData(string(data))
			if _, err := msg.WriteTo(w); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
}

func (h *Hub) register(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.table]
	if !ok {
		set = map[*Subscription]struct{}{}
		h.subs[sub.table] = set
	}
	set[sub] = struct{}{}
}

func (h *Hub) unregister(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sub.table], sub)
}
