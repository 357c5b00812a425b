package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livekit/protocol/livekit"

	"github.com/livekit/admission-server/pkg/auth"
	"github.com/livekit/admission-server/pkg/config"
	"github.com/livekit/admission-server/pkg/service"
)

const (
	testAPIKey    = "APIabcdefg"
	testAPISecret = "mysupersecretsecretthatis32chars"
)

type fakeRoomClient struct {
	participants []*livekit.ParticipantInfo
	listErr      error

	createdRooms []string
	createErr    error

	removed   []string
	removeErr error
}

func (f *fakeRoomClient) ListParticipants(_ context.Context, _ string) ([]*livekit.ParticipantInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.participants, nil
}

func (f *fakeRoomClient) CreateRoom(_ context.Context, roomName string) (*livekit.Room, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdRooms = append(f.createdRooms, roomName)
	return &livekit.Room{Name: roomName}, nil
}

func (f *fakeRoomClient) RemoveParticipant(_ context.Context, roomName, identity string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, identity)
	return nil
}

func testConfig() *config.Config {
	conf := config.DefaultConfig
	conf.Keys = map[string]string{testAPIKey: testAPISecret}
	return &conf
}

func newTestAdmission(rc service.RoomClient) (*service.AdmissionService, service.WaitingStore) {
	store := service.NewLocalWaitingStore()
	return service.NewAdmissionService(testConfig(), store, rc), store
}

func TestRequestEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("empty room admits immediately", func(t *testing.T) {
		rc := &fakeRoomClient{}
		svc, store := newTestAdmission(rc)

		res, err := svc.RequestEntry(ctx, "standup", "alice")
		require.NoError(t, err)
		assert.True(t, res.IsFirst)
		assert.Empty(t, res.Identity)

		pending, err := store.ListPending(ctx, "standup")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("unknown room is created, then admits", func(t *testing.T) {
		rc := &fakeRoomClient{listErr: service.ErrRoomNotFound}
		svc, _ := newTestAdmission(rc)

		res, err := svc.RequestEntry(ctx, "standup", "alice")
		require.NoError(t, err)
		assert.True(t, res.IsFirst)
		assert.Equal(t, []string{"standup"}, rc.createdRooms)
	})

	t.Run("occupied room enqueues", func(t *testing.T) {
		rc := &fakeRoomClient{participants: []*livekit.ParticipantInfo{{Identity: "alice"}}}
		svc, store := newTestAdmission(rc)

		res, err := svc.RequestEntry(ctx, "standup", "bob")
		require.NoError(t, err)
		assert.False(t, res.IsFirst)
		assert.True(t, strings.HasPrefix(res.Identity, "bob__"))

		pending, err := store.ListPending(ctx, "standup")
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, res.Identity, pending[0].Identity)
		assert.Equal(t, "bob", pending[0].Name)
	})

	t.Run("probe failure propagates", func(t *testing.T) {
		rc := &fakeRoomClient{listErr: service.ErrPlatformUnavailable}
		svc, _ := newTestAdmission(rc)

		_, err := svc.RequestEntry(ctx, "standup", "alice")
		assert.ErrorIs(t, err, service.ErrPlatformUnavailable)
	})

	t.Run("validates input", func(t *testing.T) {
		svc, _ := newTestAdmission(&fakeRoomClient{})

		_, err := svc.RequestEntry(ctx, "", "alice")
		assert.ErrorIs(t, err, service.ErrNoRoomName)
		_, err = svc.RequestEntry(ctx, "standup", "")
		assert.ErrorIs(t, err, service.ErrNoParticipantName)
	})
}

func TestApprove(t *testing.T) {
	ctx := context.Background()
	rc := &fakeRoomClient{participants: []*livekit.ParticipantInfo{{Identity: "alice"}}}
	svc, store := newTestAdmission(rc)

	res, err := svc.RequestEntry(ctx, "standup", "bob")
	require.NoError(t, err)

	token, err := svc.Approve(ctx, "standup", res.Identity)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	t.Run("token carries identity and room grant", func(t *testing.T) {
		v, err := auth.ParseAPIToken(token)
		require.NoError(t, err)
		assert.Equal(t, testAPIKey, v.APIKey())

		claims, err := v.Verify(testAPISecret)
		require.NoError(t, err)
		assert.Equal(t, res.Identity, claims.Identity)
		assert.Equal(t, "bob", claims.Name)
		require.NotNil(t, claims.Video)
		assert.True(t, claims.Video.RoomJoin)
		assert.Equal(t, "standup", claims.Video.Room)
	})

	t.Run("approval dequeues the entry", func(t *testing.T) {
		pending, err := store.ListPending(ctx, "standup")
		require.NoError(t, err)
		assert.Empty(t, pending)

		approved, err := svc.CheckStatus(ctx, "standup", res.Identity)
		require.NoError(t, err)
		assert.True(t, approved)
	})

	t.Run("re-approval is a token re-issue", func(t *testing.T) {
		again, err := svc.Approve(ctx, "standup", res.Identity)
		require.NoError(t, err)
		assert.NotEmpty(t, again)
	})

	t.Run("missing signing keys", func(t *testing.T) {
		conf := testConfig()
		conf.Keys = map[string]string{}
		broken := service.NewAdmissionService(conf, service.NewLocalWaitingStore(), rc)

		_, err := broken.Approve(ctx, "standup", "bob__x")
		assert.ErrorIs(t, err, service.ErrSigningKeysMissing)
	})
}

func TestCheckStatus(t *testing.T) {
	ctx := context.Background()
	rc := &fakeRoomClient{participants: []*livekit.ParticipantInfo{{Identity: "alice"}}}
	svc, _ := newTestAdmission(rc)

	res, err := svc.RequestEntry(ctx, "standup", "bob")
	require.NoError(t, err)

	t.Run("queued participant is not approved", func(t *testing.T) {
		approved, err := svc.CheckStatus(ctx, "standup", res.Identity)
		require.NoError(t, err)
		assert.False(t, approved)
	})

	t.Run("matches by display name as well", func(t *testing.T) {
		approved, err := svc.CheckStatus(ctx, "standup", "bob")
		require.NoError(t, err)
		assert.False(t, approved)
	})

	t.Run("absence reads as approved", func(t *testing.T) {
		approved, err := svc.CheckStatus(ctx, "standup", "stranger")
		require.NoError(t, err)
		assert.True(t, approved)
	})
}

func TestRejectPending(t *testing.T) {
	ctx := context.Background()
	rc := &fakeRoomClient{participants: []*livekit.ParticipantInfo{{Identity: "alice"}}}
	svc, store := newTestAdmission(rc)

	res, err := svc.RequestEntry(ctx, "standup", "bob")
	require.NoError(t, err)

	require.NoError(t, svc.RejectPending(ctx, "standup", res.Identity))

	pending, err := store.ListPending(ctx, "standup")
	require.NoError(t, err)
	assert.Empty(t, pending)

	t.Run("removing again is a no-op", func(t *testing.T) {
		assert.NoError(t, svc.RejectPending(ctx, "standup", res.Identity))
	})

	t.Run("rejected reads as approved from the poller", func(t *testing.T) {
		// deliberately indistinguishable: the entry is simply gone
		approved, err := svc.CheckStatus(ctx, "standup", res.Identity)
		require.NoError(t, err)
		assert.True(t, approved)
	})
}

func TestEvictParticipant(t *testing.T) {
	ctx := context.Background()

	t.Run("removes from the platform", func(t *testing.T) {
		rc := &fakeRoomClient{}
		svc, _ := newTestAdmission(rc)

		require.NoError(t, svc.EvictParticipant(ctx, "standup", "bob__x"))
		assert.Equal(t, []string{"bob__x"}, rc.removed)
	})

	t.Run("unknown room", func(t *testing.T) {
		rc := &fakeRoomClient{removeErr: service.ErrRoomNotFound}
		svc, _ := newTestAdmission(rc)

		err := svc.EvictParticipant(ctx, "standup", "bob__x")
		assert.ErrorIs(t, err, service.ErrRemoveParticipantFailed)
	})
}

func TestFirstJoiner(t *testing.T) {
	now := time.Now().Unix()
	occupants := []*livekit.ParticipantInfo{
		{Identity: "host", JoinedAt: now - 60},
		{Identity: "late__a", JoinedAt: now - 5},
	}

	t.Run("earliest joiner holds the capability", func(t *testing.T) {
		assert.True(t, service.FirstJoiner("host", now-60, occupants))
	})

	t.Run("later joiner does not", func(t *testing.T) {
		assert.False(t, service.FirstJoiner("late__a", now-5, occupants))
	})

	t.Run("alone in the room", func(t *testing.T) {
		assert.True(t, service.FirstJoiner("host", now, []*livekit.ParticipantInfo{
			{Identity: "host", JoinedAt: now},
		}))
	})

	t.Run("capability moves after the host leaves", func(t *testing.T) {
		remaining := []*livekit.ParticipantInfo{
			{Identity: "late__a", JoinedAt: now - 5},
		}
		assert.True(t, service.FirstJoiner("late__a", now-5, remaining))
	})
}
