// Package ctxkeys defines the typed context keys internal/api's middleware
// stack attaches request-scoped values under, mirroring the teacher's own
// internal/api/ctxkeys package (an unexported key type per value, to keep
// context.WithValue collisions impossible across packages).
package ctxkeys

type key int

const (
	// Username holds the authenticated caller's username, set by
	// middleware.IsAuthenticated after a session check. Requests
	// authenticated by API key do not carry it.
	Username key = iota
	// UserID holds the string form of the caller's identity as bound to
	// access rule evaluation's _USER_.id (spec.md §4.3). The single local
	// admin account is always "1"; nil/absent means anonymous.
	UserID
	// Authenticated is a bool recording whether this request passed
	// IsAuthenticated at all, so handlers that serve both world and
	// authenticated audiences can tell which ACL applies.
	Authenticated
)
