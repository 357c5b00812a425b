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
	"errors"
	"time"

	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/logger"

	"github.com/livekit/admission-server/pkg/auth"
	"github.com/livekit/admission-server/pkg/config"
	"github.com/livekit/admission-server/pkg/telemetry/prometheus"
)

type EntryResult struct {
	IsFirst  bool
	Identity string
}

// AdmissionService decides who gets into a room. The first participant to
// reach an empty room is admitted outright; everyone else waits in the
// pending queue until approved. Occupancy is probed fresh on every request,
// never cached, so the decision survives hosts leaving and rejoining.
type AdmissionService struct {
	store      WaitingStore
	roomClient RoomClient
	apiKey     string
	secret     string
	tokenTTL   time.Duration
}

func NewAdmissionService(conf *config.Config, store WaitingStore, roomClient RoomClient) *AdmissionService {
	apiKey, secret := conf.APIKeyPair()
	return &AdmissionService{
		store:      store,
		roomClient: roomClient,
		apiKey:     apiKey,
		secret:     secret,
		tokenTTL:   conf.WaitingRoom.TokenTTL,
	}
}

// RequestEntry admits immediately when the room is empty, creating the room
// first if the platform has not seen it yet. Otherwise the participant is
// enqueued and handed the identity to poll with.
func (s *AdmissionService) RequestEntry(ctx context.Context, roomName, participantName string) (*EntryResult, error) {
	if roomName == "" {
		return nil, ErrNoRoomName
	}
	if participantName == "" {
		return nil, ErrNoParticipantName
	}

	occupants, err := s.roomClient.ListParticipants(ctx, roomName)
	if errors.Is(err, ErrRoomNotFound) {
		if _, err = s.roomClient.CreateRoom(ctx, roomName); err != nil {
			return nil, err
		}
		occupants = nil
	} else if err != nil {
		return nil, err
	}

	if len(occupants) == 0 {
		prometheus.AdmittedInc("first")
		return &EntryResult{IsFirst: true}, nil
	}

	p, err := s.store.Enqueue(ctx, roomName, participantName)
	if err != nil {
		return nil, err
	}
	prometheus.PendingInc()
	logger.Infow("participant enqueued", "room", roomName, "identity", p.Identity)
	return &EntryResult{Identity: p.Identity}, nil
}

func (s *AdmissionService) ListPending(ctx context.Context, roomName string) ([]*PendingParticipant, error) {
	if roomName == "" {
		return nil, ErrNoRoomName
	}
	return s.store.ListPending(ctx, roomName)
}

// Approve mints a credential for the identity and then removes it from the
// queue. The order matters: a failed mint leaves the entry queued, while a
// failed or no-op removal after a successful mint only means the entry will
// be ignored once the credential is used. Approving an identity that is no
// longer queued is a plain re-issue, which is how admitted participants and
// the first joiner fetch their token.
func (s *AdmissionService) Approve(ctx context.Context, roomName, identity string) (string, error) {
	token, err := s.MintToken(roomName, identity)
	if err != nil {
		return "", err
	}

	removed, err := s.store.RemovePending(ctx, roomName, identity)
	if err != nil {
		// the participant holds a valid credential, future polls will skip
		// the stale entry once they join
		logger.Warnw("could not dequeue approved participant", err,
			"room", roomName, "identity", identity)
	} else if removed {
		prometheus.PendingDec()
		prometheus.AdmittedInc("approved")
		logger.Infow("participant approved", "room", roomName, "identity", identity)
	}
	return token, nil
}

// MintToken issues a credential scoped to one identity in one room, with
// the full participant permission set. Issuing twice is always safe.
func (s *AdmissionService) MintToken(roomName, identity string) (string, error) {
	if roomName == "" {
		return "", ErrNoRoomName
	}
	if identity == "" {
		return "", ErrIdentityEmpty
	}

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     roomName,
	}
	grant.SetCanPublish(true)
	grant.SetCanPublishData(true)
	grant.SetCanSubscribe(true)

	token, err := auth.NewAccessToken(s.apiKey, s.secret).
		SetIdentity(identity).
		SetName(DisplayName(identity)).
		SetValidFor(s.tokenTTL).
		AddGrant(grant).
		ToJWT()
	if err != nil {
		if errors.Is(err, auth.ErrKeysMissing) {
			return "", ErrSigningKeysMissing
		}
		return "", ErrOperationFailed
	}
	prometheus.TokenMintedInc()
	return token, nil
}

// CheckStatus reports whether the participant may proceed, computed purely
// as absence from the pending queue. "Approved" and "was never waiting"
// are indistinguishable here on purpose; the polling client relies on it.
func (s *AdmissionService) CheckStatus(ctx context.Context, roomName, identityOrName string) (bool, error) {
	if roomName == "" {
		return false, ErrNoRoomName
	}
	if identityOrName == "" {
		return false, ErrNoParticipantName
	}

	pending, err := s.store.ListPending(ctx, roomName)
	if err != nil {
		return false, err
	}
	for _, p := range pending {
		if p.Identity == identityOrName || p.Name == identityOrName {
			return false, nil
		}
	}
	return true, nil
}

// RejectPending drops a waiting participant, either declined by the first
// joiner or abandoning the attempt. Removing an absent identity is a no-op.
func (s *AdmissionService) RejectPending(ctx context.Context, roomName, identity string) error {
	if roomName == "" {
		return ErrNoRoomName
	}
	if identity == "" {
		return ErrIdentityEmpty
	}

	removed, err := s.store.RemovePending(ctx, roomName, identity)
	if err != nil {
		return err
	}
	if removed {
		prometheus.PendingDec()
		prometheus.RejectedInc()
		logger.Infow("pending participant removed", "room", roomName, "identity", identity)
	}
	return nil
}

// EvictParticipant removes an already-admitted participant from the room
// on the media platform.
func (s *AdmissionService) EvictParticipant(ctx context.Context, roomName, identity string) error {
	if roomName == "" {
		return ErrNoRoomName
	}
	if identity == "" {
		return ErrIdentityEmpty
	}

	if err := s.roomClient.RemoveParticipant(ctx, roomName, identity); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return ErrRemoveParticipantFailed
		}
		return err
	}
	logger.Infow("participant evicted", "room", roomName, "identity", identity)
	return nil
}

// FirstJoiner reports whether the local participant holds the approval
// capability: it does iff every other occupant joined strictly later. The
// result is derived from a live occupancy snapshot each time, never stored,
// so it stays correct when the original first joiner leaves and rejoins.
func FirstJoiner(localIdentity string, localJoinedAt int64, occupants []*livekit.ParticipantInfo) bool {
	for _, o := range occupants {
		if o.Identity == localIdentity {
			continue
		}
		if o.JoinedAt <= localJoinedAt {
			return false
		}
	}
	return true
}
