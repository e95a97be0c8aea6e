// Package store defines durable token persistence for session managers.
//
// A store is the shared storage of one origin: several managers (processes,
// terminals, goroutine groups) may open the same store and must observe each
// other's writes. Backends live in subpackages (memory, file, redis,
// postgres) and all honour the same contract:
//
//   - Load is synchronous and returns a zero pair when nothing is stored.
//   - Save writes both keys, Clear removes both keys; each notifies other
//     contexts exactly once per call.
//   - Watch delivers changes of the owned keys only, and never for writes made
//     through the same Store value.
package store

import (
	"context"
	"encoding/json"
	"slices"

	"portal/internal/session/models"
)

// Well-known keys of the persisted pair.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// Keys lists every key a token store owns.
var Keys = []string{KeyAccessToken, KeyRefreshToken}

// Op is the kind of mutation a Change reports.
type Op string

const (
	OpSet    Op = "set"
	OpRemove Op = "remove"
)

// Change describes a mutation made by another context.
type Change struct {
	Op   Op       `json:"op"`
	Keys []string `json:"keys"`
}

// TokenStore persists the token pair.
type TokenStore interface {
	Load(ctx context.Context) (models.TokenPair, error)
	Save(ctx context.Context, pair models.TokenPair) error
	Clear(ctx context.Context) error
	// Watch registers fn for changes made by other contexts. Registration is
	// complete when Watch returns; stop unregisters and waits for delivery to end.
	Watch(ctx context.Context, fn func(Change)) (stop func(), err error)
}

// Owned filters keys down to the ones a token store is responsible for.
func Owned(keys []string) []string {
	var out []string
	for _, k := range keys {
		if slices.Contains(Keys, k) && !slices.Contains(out, k) {
			out = append(out, k)
		}
	}
	return out
}

// Message is the wire form of a change broadcast between contexts by the
// redis and postgres backends.
type Message struct {
	Origin    string   `json:"origin"`
	Namespace string   `json:"namespace,omitempty"`
	Op        Op       `json:"op"`
	Keys      []string `json:"keys"`
}

// Encode marshals a Message.
func (m Message) Encode() (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeMessage parses a broadcast payload.
func DecodeMessage(payload string) (Message, error) {
	var m Message
	err := json.Unmarshal([]byte(payload), &m)
	return m, err
}

// Relevant converts a broadcast into a Change for a watcher identified by
// origin and namespace. It reports false for own writes, foreign namespaces
// and messages that touch none of the owned keys.
func (m Message) Relevant(origin, namespace string) (Change, bool) {
	if m.Origin == origin || m.Namespace != namespace {
		return Change{}, false
	}
	keys := Owned(m.Keys)
	if len(keys) == 0 {
		return Change{}, false
	}
	return Change{Op: m.Op, Keys: keys}, true
}
