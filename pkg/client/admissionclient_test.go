package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livekit/admission-server/pkg/client"
	"github.com/livekit/admission-server/pkg/service"
)

// admissionStub scripts the server side of the protocol.
type admissionStub struct {
	mu           sync.Mutex
	isFirst      bool
	identity     string
	approveAfter int // polls to answer "waiting" before flipping
	polls        int
	leaves       int
	tokens       int
}

func (s *admissionStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/waiting-room", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(&service.EntryResponse{
				IsFirst:  s.isFirst,
				Identity: s.identity,
			})
		case http.MethodDelete:
			s.leaves++
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/waiting-room/status", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.polls++
		_ = json.NewEncoder(w).Encode(&service.StatusResponse{
			Approved: s.polls > s.approveAfter,
		})
	})
	mux.HandleFunc("/waiting-room/approve", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.tokens++
		_ = json.NewEncoder(w).Encode(&service.ApproveResponse{Token: "jwt-for-test"})
	})
	return mux
}

func (s *admissionStub) snapshot() (polls, leaves, tokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls, s.leaves, s.tokens
}

func TestJoinFirst(t *testing.T) {
	stub := &admissionStub{isFirst: true}
	ts := httptest.NewServer(stub.handler())
	defer ts.Close()

	var states []client.State
	c := client.NewAdmissionClient(ts.URL, "standup", "alice",
		client.WithStateCallback(func(s client.State) { states = append(states, s) }))

	token, err := c.Join(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jwt-for-test", token)
	assert.Equal(t, "alice", c.Identity())
	assert.Equal(t, client.StateInSession, c.State())

	// the waiting state is skipped entirely
	assert.Equal(t, []client.State{
		client.StateJoining,
		client.StateAdmitted,
		client.StateInSession,
	}, states)

	polls, _, tokens := stub.snapshot()
	assert.Zero(t, polls)
	assert.Equal(t, 1, tokens)
}

func TestJoinWaits(t *testing.T) {
	stub := &admissionStub{identity: "bob__abc123", approveAfter: 2}
	ts := httptest.NewServer(stub.handler())
	defer ts.Close()

	var states []client.State
	c := client.NewAdmissionClient(ts.URL, "standup", "bob",
		client.WithPollInterval(10*time.Millisecond),
		client.WithStateCallback(func(s client.State) { states = append(states, s) }))

	token, err := c.Join(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "jwt-for-test", token)
	assert.Equal(t, "bob__abc123", c.Identity())

	assert.Equal(t, []client.State{
		client.StateJoining,
		client.StateWaitingForAdmission,
		client.StateAdmitted,
		client.StateInSession,
	}, states)

	polls, _, tokens := stub.snapshot()
	assert.GreaterOrEqual(t, polls, 3)
	assert.Equal(t, 1, tokens)
}

func TestJoinTimesOut(t *testing.T) {
	// approval never comes
	stub := &admissionStub{identity: "bob__abc123", approveAfter: 1 << 30}
	ts := httptest.NewServer(stub.handler())
	defer ts.Close()

	c := client.NewAdmissionClient(ts.URL, "standup", "bob",
		client.WithPollInterval(10*time.Millisecond),
		client.WithMaxWait(60*time.Millisecond))

	_, err := c.Join(context.Background())
	assert.ErrorIs(t, err, client.ErrAdmissionTimeout)

	// the pending entry was withdrawn on the way out
	_, leaves, tokens := stub.snapshot()
	assert.Equal(t, 1, leaves)
	assert.Zero(t, tokens)
}

func TestJoinCanceled(t *testing.T) {
	stub := &admissionStub{identity: "bob__abc123", approveAfter: 1 << 30}
	ts := httptest.NewServer(stub.handler())
	defer ts.Close()

	c := client.NewAdmissionClient(ts.URL, "standup", "bob",
		client.WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(40 * time.Millisecond)
		cancel()
	}()

	_, err := c.Join(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, leaves, _ := stub.snapshot()
	assert.Equal(t, 1, leaves)
}

func TestLeaveWithoutJoin(t *testing.T) {
	c := client.NewAdmissionClient("http://127.0.0.1:0", "standup", "bob")
	assert.NoError(t, c.Leave(context.Background()))
}
