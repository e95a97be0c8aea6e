//go:build integration

package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"portal/internal/session/models"
	"portal/internal/session/store"
	"portal/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisStoreSuite) TearDownSuite() {
	s.redis.Terminate(context.Background())
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) newStore(namespace string) *Store {
	st, err := New(s.redis.Client, namespace)
	s.Require().NoError(err)
	return st
}

type changeLog struct {
	mu      sync.Mutex
	changes []store.Change
}

func (c *changeLog) add(ch store.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, ch)
}

func (c *changeLog) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes)
}

func (s *RedisStoreSuite) TestSaveLoadClear() {
	ctx := context.Background()
	st := s.newStore("portal")

	s.Require().NoError(st.Save(ctx, models.TokenPair{AccessToken: "acc", RefreshToken: "ref"}))
	pair, err := st.Load(ctx)
	s.Require().NoError(err)
	s.Equal(models.TokenPair{AccessToken: "acc", RefreshToken: "ref"}, pair)

	s.Require().NoError(st.Clear(ctx))
	pair, err = st.Load(ctx)
	s.Require().NoError(err)
	s.False(pair.Present())
}

func (s *RedisStoreSuite) TestWatchAcrossContexts() {
	ctx := context.Background()
	writer := s.newStore("portal")
	reader := s.newStore("portal")
	other := s.newStore("staging")

	readerLog, writerLog, otherLog := &changeLog{}, &changeLog{}, &changeLog{}
	for st, log := range map[*Store]*changeLog{reader: readerLog, writer: writerLog, other: otherLog} {
		stop, err := st.Watch(ctx, log.add)
		s.Require().NoError(err)
		defer stop()
	}

	s.Require().NoError(writer.Save(ctx, models.TokenPair{AccessToken: "acc", RefreshToken: "ref"}))
	s.Require().NoError(writer.Clear(ctx))

	s.Eventually(func() bool { return readerLog.len() == 2 }, 2*time.Second, 10*time.Millisecond)
	s.Never(func() bool { return writerLog.len() > 0 || otherLog.len() > 0 }, 200*time.Millisecond, 20*time.Millisecond)
}

func (s *RedisStoreSuite) TestUnrelatedPublishesAreIgnored() {
	ctx := context.Background()
	reader := s.newStore("portal")
	log := &changeLog{}
	stop, err := reader.Watch(ctx, log.add)
	s.Require().NoError(err)
	defer stop()

	payload, err := store.Message{Origin: "someone", Namespace: "portal", Op: store.OpSet, Keys: []string{"theme"}}.Encode()
	s.Require().NoError(err)
	s.Require().NoError(s.redis.Client.Publish(ctx, reader.Channel(), payload).Err())
	s.Require().NoError(s.redis.Client.Publish(ctx, reader.Channel(), "not-json").Err())

	s.Never(func() bool { return log.len() > 0 }, 200*time.Millisecond, 20*time.Millisecond)
}
