// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/twitchtv/twirp"

	"github.com/livekit/protocol/livekit"

	"github.com/livekit/admission-server/pkg/auth"
	"github.com/livekit/admission-server/pkg/config"
)

// RoomClient is the occupancy probe and eviction surface of the external
// media platform. Implementations return ErrRoomNotFound when the room has
// not been created yet and ErrPlatformUnavailable for any other failure.
type RoomClient interface {
	ListParticipants(ctx context.Context, roomName string) ([]*livekit.ParticipantInfo, error)
	CreateRoom(ctx context.Context, roomName string) (*livekit.Room, error)
	RemoveParticipant(ctx context.Context, roomName, identity string) error
}

// TwirpRoomClient talks to a LiveKit deployment through the generated
// RoomService client, authorizing each call with a short-lived admin token.
type TwirpRoomClient struct {
	client   livekit.RoomService
	apiKey   string
	secret   string
	roomConf config.RoomConfig
}

const roomServiceTokenTTL = 10 * time.Minute

func NewTwirpRoomClient(conf *config.Config) *TwirpRoomClient {
	apiKey, secret := conf.APIKeyPair()
	return &TwirpRoomClient{
		client: livekit.NewRoomServiceJSONClient(
			toHTTPURL(conf.LiveKit.URL),
			&http.Client{Timeout: conf.LiveKit.Timeout},
		),
		apiKey:   apiKey,
		secret:   secret,
		roomConf: conf.Room,
	}
}

func (c *TwirpRoomClient) ListParticipants(ctx context.Context, roomName string) ([]*livekit.ParticipantInfo, error) {
	ctx, err := c.withAuth(ctx, &auth.VideoGrant{RoomList: true, RoomAdmin: true, Room: roomName})
	if err != nil {
		return nil, err
	}
	res, err := c.client.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: roomName})
	if err != nil {
		return nil, translateTwirpError(err)
	}
	return res.Participants, nil
}

func (c *TwirpRoomClient) CreateRoom(ctx context.Context, roomName string) (*livekit.Room, error) {
	ctx, err := c.withAuth(ctx, &auth.VideoGrant{RoomCreate: true})
	if err != nil {
		return nil, err
	}
	room, err := c.client.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            roomName,
		EmptyTimeout:    c.roomConf.EmptyTimeout,
		MaxParticipants: c.roomConf.MaxParticipants,
	})
	if err != nil {
		return nil, translateTwirpError(err)
	}
	return room, nil
}

func (c *TwirpRoomClient) RemoveParticipant(ctx context.Context, roomName, identity string) error {
	ctx, err := c.withAuth(ctx, &auth.VideoGrant{RoomAdmin: true, Room: roomName})
	if err != nil {
		return err
	}
	_, err = c.client.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     roomName,
		Identity: identity,
	})
	if err != nil {
		return translateTwirpError(err)
	}
	return nil
}

func (c *TwirpRoomClient) withAuth(ctx context.Context, grant *auth.VideoGrant) (context.Context, error) {
	token, err := auth.NewAccessToken(c.apiKey, c.secret).
		AddGrant(grant).
		SetValidFor(roomServiceTokenTTL).
		ToJWT()
	if err != nil {
		return nil, ErrSigningKeysMissing
	}

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token)
	return twirp.WithHTTPRequestHeaders(ctx, header)
}

func translateTwirpError(err error) error {
	if twErr, ok := err.(twirp.Error); ok && twErr.Code() == twirp.NotFound {
		return ErrRoomNotFound
	}
	return ErrPlatformUnavailable
}

// toHTTPURL accepts ws/wss urls, which is how LiveKit deployments are
// usually advertised, and rewrites them for the twirp surface.
func toHTTPURL(url string) string {
	if strings.HasPrefix(url, "ws") {
		return strings.Replace(url, "ws", "http", 1)
	}
	return url
}
