package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"portal/internal/session/models"
	"portal/internal/session/store"
)

type MemoryStoreSuite struct {
	suite.Suite
	backend *Backend
	tabA    *Store
	tabB    *Store
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.backend = NewBackend()
	s.tabA = New(s.backend)
	s.tabB = New(s.backend)
}

// recorder collects changes delivered to a watcher.
type recorder struct {
	mu      sync.Mutex
	changes []store.Change
}

func (r *recorder) add(c store.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) snapshot() []store.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]store.Change(nil), r.changes...)
}

func (s *MemoryStoreSuite) TestLoadSaveClear() {
	ctx := context.Background()

	pair, err := s.tabA.Load(ctx)
	s.Require().NoError(err)
	s.False(pair.Present())

	s.Require().NoError(s.tabA.Save(ctx, models.TokenPair{AccessToken: "a", RefreshToken: "r"}))

	pair, err = s.tabB.Load(ctx)
	s.Require().NoError(err)
	s.Equal(models.TokenPair{AccessToken: "a", RefreshToken: "r"}, pair)

	s.Require().NoError(s.tabB.Clear(ctx))
	_, ok := s.backend.Get(store.KeyAccessToken)
	s.False(ok)
	_, ok = s.backend.Get(store.KeyRefreshToken)
	s.False(ok)
}

func (s *MemoryStoreSuite) TestWatchDeliversOtherContextWrites() {
	ctx := context.Background()
	rec := &recorder{}
	stop, err := s.tabB.Watch(ctx, rec.add)
	s.Require().NoError(err)
	defer stop()

	s.Require().NoError(s.tabA.Save(ctx, models.TokenPair{AccessToken: "a", RefreshToken: "r"}))

	s.Eventually(func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	change := rec.snapshot()[0]
	s.Equal(store.OpSet, change.Op)
	s.ElementsMatch(store.Keys, change.Keys)
}

func (s *MemoryStoreSuite) TestWatchIgnoresOwnWrites() {
	ctx := context.Background()
	rec := &recorder{}
	stop, err := s.tabA.Watch(ctx, rec.add)
	s.Require().NoError(err)
	defer stop()

	s.Require().NoError(s.tabA.Save(ctx, models.TokenPair{AccessToken: "a", RefreshToken: "r"}))
	s.Require().NoError(s.tabA.Clear(ctx))

	s.Never(func() bool { return len(rec.snapshot()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func (s *MemoryStoreSuite) TestWatchIgnoresUnrelatedKeys() {
	ctx := context.Background()
	rec := &recorder{}
	stop, err := s.tabA.Watch(ctx, rec.add)
	s.Require().NoError(err)
	defer stop()

	s.backend.Set("theme", "dark")
	s.backend.Delete(store.KeyAccessToken)

	s.Eventually(func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	s.Equal(store.Change{Op: store.OpRemove, Keys: []string{store.KeyAccessToken}}, rec.snapshot()[0])
}

func (s *MemoryStoreSuite) TestStopEndsDelivery() {
	ctx := context.Background()
	rec := &recorder{}
	stop, err := s.tabB.Watch(ctx, rec.add)
	s.Require().NoError(err)

	stop()
	stop()

	s.Require().NoError(s.tabA.Save(ctx, models.TokenPair{AccessToken: "a"}))
	s.Never(func() bool { return len(rec.snapshot()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestForeignWriterNotifiesEveryContext(t *testing.T) {
	backend := NewBackend()
	tab := New(backend)
	rec := &recorder{}
	stop, err := tab.Watch(context.Background(), rec.add)
	require.NoError(t, err)
	defer stop()

	backend.Set(store.KeyAccessToken, "from-elsewhere")

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}
