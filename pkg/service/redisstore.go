package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	// list of identities per room, keeps arrival order
	waitingQueueKey = "waiting_queue:"
	// hash of identity => PendingParticipant json per room
	waitingInfoKey = "waiting_info:"
)

// RedisWaitingStore keeps pending queues in redis so multiple admission
// server instances can share them. Order lives in a LIST of identities,
// entry bodies in a HASH; LREM's removed count makes removal exactly-once
// without a lock.
type RedisWaitingStore struct {
	rc *redis.Client
}

func NewRedisWaitingStore(rc *redis.Client) *RedisWaitingStore {
	return &RedisWaitingStore{rc: rc}
}

func (s *RedisWaitingStore) Enqueue(ctx context.Context, roomName, participantName string) (*PendingParticipant, error) {
	p := &PendingParticipant{
		Identity: NewParticipantIdentity(participantName),
		Name:     participantName,
		JoinedAt: time.Now(),
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	pipe := s.rc.TxPipeline()
	pipe.RPush(ctx, waitingQueueKey+roomName, p.Identity)
	pipe.HSet(ctx, waitingInfoKey+roomName, p.Identity, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "could not enqueue pending participant")
	}
	return p, nil
}

func (s *RedisWaitingStore) ListPending(ctx context.Context, roomName string) ([]*PendingParticipant, error) {
	identities, err := s.rc.LRange(ctx, waitingQueueKey+roomName, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, "could not list pending participants")
	}
	if len(identities) == 0 {
		return nil, nil
	}

	items, err := s.rc.HMGet(ctx, waitingInfoKey+roomName, identities...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "could not load pending participants")
	}

	pending := make([]*PendingParticipant, 0, len(items))
	for _, item := range items {
		data, ok := item.(string)
		if !ok {
			// body already swept, the queue entry is a leftover
			continue
		}
		p := &PendingParticipant{}
		if err := json.Unmarshal([]byte(data), p); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, nil
}

func (s *RedisWaitingStore) RemovePending(ctx context.Context, roomName, identity string) (bool, error) {
	removed, err := s.rc.LRem(ctx, waitingQueueKey+roomName, 1, identity).Result()
	if err != nil {
		return false, errors.Wrap(err, "could not remove pending participant")
	}
	if err := s.rc.HDel(ctx, waitingInfoKey+roomName, identity).Err(); err != nil {
		return false, errors.Wrap(err, "could not remove pending participant")
	}
	return removed > 0, nil
}

func (s *RedisWaitingStore) SweepPending(ctx context.Context, maxAge time.Duration) ([]*PendingParticipant, error) {
	cutoff := time.Now().Add(-maxAge)

	var evicted []*PendingParticipant
	iter := s.rc.Scan(ctx, 0, waitingQueueKey+"*", 0).Iterator()
	for iter.Next(ctx) {
		roomName := iter.Val()[len(waitingQueueKey):]
		pending, err := s.ListPending(ctx, roomName)
		if err != nil {
			return evicted, err
		}
		for _, p := range pending {
			if !p.JoinedAt.Before(cutoff) {
				continue
			}
			removed, err := s.RemovePending(ctx, roomName, p.Identity)
			if err != nil {
				return evicted, err
			}
			if removed {
				// racing instances sweep concurrently, count only our wins
				evicted = append(evicted, p)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return evicted, errors.Wrap(err, "could not sweep pending participants")
	}
	return evicted, nil
}
