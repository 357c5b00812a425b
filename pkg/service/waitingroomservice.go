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
	"encoding/json"
	"net/http"
)

// WaitingParticipant is the wire form of a pending entry.
type WaitingParticipant struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	// unix milliseconds of enqueue time
	Timestamp int64 `json:"timestamp"`
}

type EntryRequest struct {
	RoomName        string `json:"roomName"`
	ParticipantName string `json:"participantName"`
}

type EntryResponse struct {
	IsFirst  bool   `json:"isFirst"`
	Identity string `json:"identity,omitempty"`
}

type RemoveRequest struct {
	RoomName            string `json:"roomName"`
	ParticipantIdentity string `json:"participantIdentity"`
}

type StatusResponse struct {
	Approved bool `json:"approved"`
}

type ApproveResponse struct {
	Token string `json:"token"`
}

// WaitingRoomService exposes the admission protocol over plain JSON HTTP.
// The admission surface accepts unauthenticated requests, issued tokens
// are the security boundary.
type WaitingRoomService struct {
	admission *AdmissionService
}

func NewWaitingRoomService(admission *AdmissionService) *WaitingRoomService {
	return &WaitingRoomService{
		admission: admission,
	}
}

func (s *WaitingRoomService) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/waiting-room", s.handleWaitingRoom)
	mux.HandleFunc("/waiting-room/status", s.handleStatus)
	mux.HandleFunc("/waiting-room/approve", s.handleApprove)
	mux.HandleFunc("/participants/remove", s.handleRemoveParticipant)
}

func (s *WaitingRoomService) handleWaitingRoom(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodPost:
		s.handleRequestEntry(w, r)
	case http.MethodDelete:
		s.handleRemovePending(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *WaitingRoomService) handleList(w http.ResponseWriter, r *http.Request) {
	roomName := r.URL.Query().Get("roomName")

	pending, err := s.admission.ListPending(r.Context(), roomName)
	if err != nil {
		handleError(w, r, errorStatus(err), err)
		return
	}

	participants := make([]*WaitingParticipant, 0, len(pending))
	for _, p := range pending {
		participants = append(participants, &WaitingParticipant{
			Identity:  p.Identity,
			Name:      p.Name,
			Timestamp: p.JoinedAt.UnixMilli(),
		})
	}
	writeJSON(w, r, participants)
}

func (s *WaitingRoomService) handleRequestEntry(w http.ResponseWriter, r *http.Request) {
	req := EntryRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, r, http.StatusBadRequest, ErrNoRoomName)
		return
	}

	res, err := s.admission.RequestEntry(r.Context(), req.RoomName, req.ParticipantName)
	if err != nil {
		handleError(w, r, errorStatus(err), err)
		return
	}
	writeJSON(w, r, &EntryResponse{
		IsFirst:  res.IsFirst,
		Identity: res.Identity,
	})
}

func (s *WaitingRoomService) handleRemovePending(w http.ResponseWriter, r *http.Request) {
	req := RemoveRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, r, http.StatusBadRequest, ErrNoRoomName)
		return
	}

	if err := s.admission.RejectPending(r.Context(), req.RoomName, req.ParticipantIdentity); err != nil {
		handleError(w, r, errorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *WaitingRoomService) handleStatus(w http.ResponseWriter, r *http.Request) {
	roomName := r.URL.Query().Get("roomName")
	participantName := r.URL.Query().Get("participantName")

	approved, err := s.admission.CheckStatus(r.Context(), roomName, participantName)
	if err != nil {
		handleError(w, r, errorStatus(err), err)
		return
	}
	writeJSON(w, r, &StatusResponse{Approved: approved})
}

func (s *WaitingRoomService) handleApprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req := RemoveRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, r, http.StatusBadRequest, ErrNoRoomName)
		return
	}

	token, err := s.admission.Approve(r.Context(), req.RoomName, req.ParticipantIdentity)
	if err != nil {
		handleError(w, r, errorStatus(err), err)
		return
	}
	writeJSON(w, r, &ApproveResponse{Token: token})
}

func (s *WaitingRoomService) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req := RemoveRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, r, http.StatusBadRequest, ErrNoRoomName)
		return
	}

	if err := s.admission.EvictParticipant(r.Context(), req.RoomName, req.ParticipantIdentity); err != nil {
		handleError(w, r, errorStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
