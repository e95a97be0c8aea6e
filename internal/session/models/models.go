package models

import "time"

// TokenPair is the bearer credential pair issued by the accounts API.
// Both values are opaque to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Present reports whether the pair carries an access token. A refresh token
// on its own does not authenticate anything.
func (p TokenPair) Present() bool {
	return p.AccessToken != ""
}

// State is the lifecycle position of a session manager.
type State int

const (
	StateInitializing State = iota
	StateVerifying
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateVerifying:
		return "verifying"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Snapshot is the derived session state handed to readers and subscribers.
type Snapshot struct {
	State State
}

// Authenticated is true only once a verified or freshly issued pair is held.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated
}

// Verifying is the loading flag: true while the start-up check is in flight.
func (s Snapshot) Verifying() bool {
	return s.State == StateInitializing || s.State == StateVerifying
}

// Origin tells whether a change was made by this context or observed from another.
type Origin string

const (
	OriginLocal    Origin = "local"
	OriginExternal Origin = "external"
)

// ChangeEvent is broadcast to subscribers on every state change and on every
// token mutation made by another context. Consumers re-derive what they render
// from the snapshot instead of caching it.
type ChangeEvent struct {
	Snapshot
	Origin Origin
	At     time.Time
}

// Route is a navigation target signalled by the session manager.
type Route string

const (
	// RouteHome is the authenticated landing view.
	RouteHome Route = "/dashboard/profile"
	// RouteLogin is where unauthenticated users are sent.
	RouteLogin Route = "/auth/login"
)
