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

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/admission-server/pkg/config"
)

// InitializeServer assembles the full server from config: the pending
// store (redis when configured, in-memory otherwise), the room service
// client, the admission coordinator and the HTTP surface.
func InitializeServer(conf *config.Config) (*AdmissionServer, error) {
	store, err := createStore(conf)
	if err != nil {
		return nil, err
	}

	roomClient := NewTwirpRoomClient(conf)
	admission := NewAdmissionService(conf, store, roomClient)
	waitingRoomService := NewWaitingRoomService(admission)
	sweeper := NewSweeper(conf, store)

	return NewAdmissionServer(conf, waitingRoomService, sweeper), nil
}

func createStore(conf *config.Config) (WaitingStore, error) {
	if !conf.Redis.IsConfigured() {
		logger.Infow("using in-memory pending store")
		return NewLocalWaitingStore(), nil
	}

	logger.Infow("using multi-node pending store", "addr", conf.Redis.Address)
	rc := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Username: conf.Redis.Username,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := rc.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "unable to connect to redis")
	}
	return NewRedisWaitingStore(rc), nil
}
