//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"

	"collecta/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	clock *clockwork.FakeClock
	store *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.clock = clockwork.NewFakeClockAt(time.Now())
	s.store = NewRedisStore(s.redis.Client, "collecta:rl:", s.clock)
}

func (s *RedisStoreSuite) TestWindowSlides() {
	ctx := context.Background()
	for range 2 {
		res, err := s.store.Allow(ctx, "actor:a", 2, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.clock.Advance(time.Second)
	}

	res, err := s.store.Allow(ctx, "actor:a", 2, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)

	s.clock.Advance(time.Minute)
	res, err = s.store.Allow(ctx, "actor:a", 2, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *RedisStoreSuite) TestKeyExpires() {
	ctx := context.Background()
	_, err := s.store.Allow(ctx, "actor:b", 5, time.Minute)
	s.Require().NoError(err)

	ttl, err := s.redis.Client.PTTL(ctx, "collecta:rl:actor:b").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Minute)
}
