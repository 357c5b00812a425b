package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livekit/admission-server/pkg/auth"
)

const (
	apiKey    = "APIkeyforthetest"
	apiSecret = "thisisatestsecretthatis32charslong"
)

func TestAccessToken(t *testing.T) {
	t.Run("keys must be set", func(t *testing.T) {
		token := auth.NewAccessToken("", "")
		_, err := token.ToJWT()
		assert.ErrorIs(t, err, auth.ErrKeysMissing)
	})

	t.Run("generates a decodable token", func(t *testing.T) {
		grant := &auth.VideoGrant{
			RoomJoin: true,
			Room:     "standup",
		}
		grant.SetCanPublish(true)
		grant.SetCanSubscribe(true)

		raw, err := auth.NewAccessToken(apiKey, apiSecret).
			SetIdentity("alice__abc123").
			SetName("alice").
			SetValidFor(time.Minute).
			AddGrant(grant).
			ToJWT()
		require.NoError(t, err)

		v, err := auth.ParseAPIToken(raw)
		require.NoError(t, err)
		assert.Equal(t, apiKey, v.APIKey())
		assert.Equal(t, "alice__abc123", v.Identity())

		claims, err := v.Verify(apiSecret)
		require.NoError(t, err)
		assert.Equal(t, "alice__abc123", claims.Identity)
		assert.Equal(t, "alice", claims.Name)
		require.NotNil(t, claims.Video)
		assert.True(t, claims.Video.RoomJoin)
		assert.Equal(t, "standup", claims.Video.Room)
		require.NotNil(t, claims.Video.CanPublish)
		assert.True(t, *claims.Video.CanPublish)
		require.NotNil(t, claims.Video.CanSubscribe)
		assert.True(t, *claims.Video.CanSubscribe)
	})

	t.Run("verification fails with the wrong secret", func(t *testing.T) {
		raw, err := auth.NewAccessToken(apiKey, apiSecret).
			SetIdentity("alice").
			AddGrant(&auth.VideoGrant{RoomJoin: true, Room: "standup"}).
			ToJWT()
		require.NoError(t, err)

		v, err := auth.ParseAPIToken(raw)
		require.NoError(t, err)
		_, err = v.Verify("an-entirely-different-secret-string")
		assert.Error(t, err)
	})

}
