package engine

// Action mirrors the three SQLite pre-update operations.
type Action int

const (
	Insert Action = iota + 1
	Update
	Delete
)

func (a Action) String() string {
	switch a {
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is the deep-owned representation of a SQLite pre-update callback:
// the action, table and rowid of the affected row. AddPreUpdateHook leaves
// Columns unset; the realtime hub re-reads the row by rowid instead, and
// spec.md §4.3's record-level rule re-check reads the committed row.
type Event struct {
	Action  Action
	Table   string
	RowID   int64
	Columns map[string]any
}

// preUpdateHooker is implemented by the driver connection modernc.org/sqlite
// hands back through (*sql.Conn).Raw when preupdate hook support is
// compiled in. The callback fires synchronously on the writer goroutine,
// before the write that triggered it commits.
type preUpdateHooker interface {
	RegisterPreUpdateHook(fn func(op int, dbName, tableName string, rowIDOld, rowIDNew int64))
}

// AddPreUpdateHook installs fn as the writer's pre-update callback,
// replacing any previous hook. Passing nil uninstalls it. Per spec.md §4.5
// the callback itself must never issue SQLite calls synchronously — it
// should only capture what it needs and hand off via Engine.CallAndForget.
func (e *Engine) AddPreUpdateHook(fn func(Event)) error {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()

	e.hookFn = fn
	e.hookSet = fn != nil

	return e.writeConn.conn.Raw(func(driverConn any) error {
		hooker, ok := driverConn.(preUpdateHooker)
		if !ok {
			if fn == nil {
				return nil
			}
			return errPreUpdateUnsupported
		}
		if fn == nil {
			hooker.RegisterPreUpdateHook(nil)
			return nil
		}
		hooker.RegisterPreUpdateHook(func(op int, dbName, tableName string, rowIDOld, rowIDNew int64) {
			rowID := rowIDNew
			if Action(op) == Delete {
				rowID = rowIDOld
			}
			e.dispatchPreUpdate(Event{
				Action: Action(op),
				Table:  tableName,
				RowID:  rowID,
			})
		})
		return nil
	})
}

func (e *Engine) dispatchPreUpdate(ev Event) {
	e.hookMu.RLock()
	fn := e.hookFn
	e.hookMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// RemovePreUpdateHook uninstalls the writer's pre-update callback.
func (e *Engine) RemovePreUpdateHook() error {
	return e.AddPreUpdateHook(nil)
}

var errPreUpdateUnsupported = errPreUpdate{}

type errPreUpdate struct{}

func (errPreUpdate) Error() string {
	return "engine: sqlite driver connection does not support pre-update hooks"
}
