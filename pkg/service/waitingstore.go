package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v3"
)

// suffix separator that keeps repeated join attempts with the same display
// name apart. The display name is everything before the last separator.
const identitySeparator = "__"

type PendingParticipant struct {
	Identity string    `json:"identity"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// WaitingStore owns all pending-queue state. Every mutation of one room's
// queue is linearizable with respect to the others; List returns a snapshot
// that concurrent mutations cannot tear.
type WaitingStore interface {
	// Enqueue appends a participant with a freshly minted identity and
	// returns the created entry.
	Enqueue(ctx context.Context, roomName, participantName string) (*PendingParticipant, error)
	// ListPending returns the room's queue in arrival order, empty if the
	// room has no queue.
	ListPending(ctx context.Context, roomName string) ([]*PendingParticipant, error)
	// RemovePending removes an entry by identity. Removing an absent
	// identity is not an error; exactly one concurrent caller observes true.
	RemovePending(ctx context.Context, roomName, identity string) (bool, error)
	// SweepPending evicts entries that have been waiting longer than maxAge
	// and returns them.
	SweepPending(ctx context.Context, maxAge time.Duration) ([]*PendingParticipant, error)
}

// NewParticipantIdentity mints a queue-unique identity for a display name.
func NewParticipantIdentity(participantName string) string {
	return participantName + identitySeparator + shortuuid.New()
}

// DisplayName strips the disambiguating suffix from an identity.
func DisplayName(identity string) string {
	if idx := strings.LastIndex(identity, identitySeparator); idx > 0 {
		return identity[:idx]
	}
	return identity
}

// encapsulates queue operations for a single process
type LocalWaitingStore struct {
	// map of roomName => pending participants in arrival order
	pending map[string][]*PendingParticipant
	lock    sync.RWMutex
}

func NewLocalWaitingStore() *LocalWaitingStore {
	return &LocalWaitingStore{
		pending: make(map[string][]*PendingParticipant),
	}
}

func (s *LocalWaitingStore) Enqueue(_ context.Context, roomName, participantName string) (*PendingParticipant, error) {
	p := &PendingParticipant{
		Identity: NewParticipantIdentity(participantName),
		Name:     participantName,
		JoinedAt: time.Now(),
	}

	s.lock.Lock()
	s.pending[roomName] = append(s.pending[roomName], p)
	s.lock.Unlock()
	return p, nil
}

func (s *LocalWaitingStore) ListPending(_ context.Context, roomName string) ([]*PendingParticipant, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	queue := s.pending[roomName]
	// callers iterate outside the lock
	snapshot := make([]*PendingParticipant, len(queue))
	copy(snapshot, queue)
	return snapshot, nil
}

func (s *LocalWaitingStore) RemovePending(_ context.Context, roomName, identity string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	queue := s.pending[roomName]
	for i, p := range queue {
		if p.Identity == identity {
			s.pending[roomName] = append(queue[:i:i], queue[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *LocalWaitingStore) SweepPending(_ context.Context, maxAge time.Duration) ([]*PendingParticipant, error) {
	cutoff := time.Now().Add(-maxAge)

	s.lock.Lock()
	defer s.lock.Unlock()

	var evicted []*PendingParticipant
	for roomName, queue := range s.pending {
		kept := queue[:0:0]
		for _, p := range queue {
			if p.JoinedAt.Before(cutoff) {
				evicted = append(evicted, p)
			} else {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			// queues are created lazily, drop them once drained so the map
			// does not grow with every room name ever seen
			delete(s.pending, roomName)
		} else {
			s.pending[roomName] = kept
		}
	}
	return evicted, nil
}
