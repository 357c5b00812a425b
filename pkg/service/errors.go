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
	"errors"
	"net/http"

	"github.com/livekit/psrpc"
)

var (
	ErrNoRoomName              = psrpc.NewErrorf(psrpc.InvalidArgument, "no room name")
	ErrNoParticipantName       = psrpc.NewErrorf(psrpc.InvalidArgument, "no participant name")
	ErrIdentityEmpty           = psrpc.NewErrorf(psrpc.InvalidArgument, "identity cannot be empty")
	ErrRoomNotFound            = psrpc.NewErrorf(psrpc.NotFound, "requested room does not exist")
	ErrSigningKeysMissing      = psrpc.NewErrorf(psrpc.Internal, "api key or secret is not configured")
	ErrPlatformUnavailable     = psrpc.NewErrorf(psrpc.Unavailable, "room service call failed")
	ErrOperationFailed         = psrpc.NewErrorf(psrpc.Internal, "operation cannot be completed")
	ErrRemoveParticipantFailed = psrpc.NewErrorf(psrpc.Unavailable, "could not remove participant from room")
)

// errorStatus translates coded errors into the wire statuses of the
// waiting-room protocol. NotFound never reaches a caller on the request
// path, it is auto-remediated by room creation.
func errorStatus(err error) int {
	var pe psrpc.Error
	if errors.As(err, &pe) {
		switch pe.Code() {
		case psrpc.InvalidArgument:
			return http.StatusBadRequest
		case psrpc.NotFound:
			return http.StatusNotFound
		case psrpc.Unavailable, psrpc.DeadlineExceeded:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
