//go:build integration

package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"collecta/pkg/testutil/containers"
)

type RedisLedgerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	ledger *RedisLedger
}

func TestRedisLedgerSuite(t *testing.T) {
	suite.Run(t, new(RedisLedgerSuite))
}

func (s *RedisLedgerSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.ledger = NewRedisLedger(s.redis.Client, "collecta:sweep:")
}

func (s *RedisLedgerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLedgerSuite) TestClaimIsExclusive() {
	ctx := context.Background()
	ok, err := s.ledger.Claim(ctx, "deadline_expired:census:2026-10-20", time.Hour)
	s.Require().NoError(err)
	s.True(ok)

	other := NewRedisLedger(s.redis.Client, "collecta:sweep:")
	ok, err = other.Claim(ctx, "deadline_expired:census:2026-10-20", time.Hour)
	s.Require().NoError(err)
	s.False(ok)

	ttl, err := s.redis.Client.TTL(ctx, "collecta:sweep:deadline_expired:census:2026-10-20").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 59*time.Minute)
}

func (s *RedisLedgerSuite) TestReleaseAllowsReclaim() {
	ctx := context.Background()
	ok, err := s.ledger.Claim(ctx, "deadline_warning:census:2026-10-20", time.Hour)
	s.Require().NoError(err)
	s.Require().True(ok)

	s.Require().NoError(s.ledger.Release(ctx, "deadline_warning:census:2026-10-20"))
	ok, err = s.ledger.Claim(ctx, "deadline_warning:census:2026-10-20", time.Hour)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RedisLedgerSuite) TestMarkSurvivesUntilReleased() {
	ctx := context.Background()
	marked, err := s.ledger.Marked(ctx, "owed:deadline_expired:census")
	s.Require().NoError(err)
	s.False(marked)

	s.Require().NoError(s.ledger.Mark(ctx, "owed:deadline_expired:census", time.Hour))
	marked, err = s.ledger.Marked(ctx, "owed:deadline_expired:census")
	s.Require().NoError(err)
	s.True(marked)

	s.Require().NoError(s.ledger.Release(ctx, "owed:deadline_expired:census"))
	marked, err = s.ledger.Marked(ctx, "owed:deadline_expired:census")
	s.Require().NoError(err)
	s.False(marked)
}

func (s *RedisLedgerSuite) TestCancelledContextFails() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.ledger.Claim(ctx, "deadline_warning:budget:2026-10-20", time.Hour)
	s.Error(err)
}
