package auth

import (
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/pkg/sqlite3store"
)

// NewSessionManager builds an scs.SessionManager backed by the `sessions`
// table internal/migrate creates, using pkg/sqlite3store against the
// engine's shared *sql.DB pool (see Engine.Pool's doc comment for why this
// is the one place in the repository that bypasses the writer/reader
// dispatch). Grounded on the teacher's session manager setup (scs.New(),
// 24-hour lifetime, HTTP-only cookie) referenced throughout
// internal/api/middleware/auth_test.go and internal/api/server_test.go.
func NewSessionManager(eng *engine.Engine) *scs.SessionManager {
	manager := scs.New()
	manager.Store = sqlite3store.New(eng.Pool())
	manager.Lifetime = 24 * time.Hour
	manager.Cookie.HttpOnly = true
	return manager
}
