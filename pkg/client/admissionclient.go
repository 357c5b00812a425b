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

// Package client implements the participant side of the waiting-room
// protocol: request entry, poll for approval, fetch the credential.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/livekit/protocol/logger"

	"github.com/livekit/admission-server/pkg/service"
)

type State int32

const (
	StateJoining State = iota
	StateWaitingForAdmission
	StateAdmitted
	StateInSession
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateWaitingForAdmission:
		return "waiting_for_admission"
	case StateAdmitted:
		return "admitted"
	case StateInSession:
		return "in_session"
	default:
		return "unknown"
	}
}

var ErrAdmissionTimeout = errors.New("timed out waiting for admission")

const (
	defaultPollInterval = 3 * time.Second
	defaultMaxWait      = 30 * time.Minute
)

type AdmissionClient struct {
	baseURL         string
	roomName        string
	participantName string

	httpClient    *http.Client
	pollInterval  time.Duration
	maxWait       time.Duration
	onStateChange func(State)

	identity string
	state    atomic.Int32
}

type Option func(*AdmissionClient)

func WithPollInterval(d time.Duration) Option {
	return func(c *AdmissionClient) { c.pollInterval = d }
}

// WithMaxWait caps the total time spent in the waiting state. 0 waits
// until the context is done.
func WithMaxWait(d time.Duration) Option {
	return func(c *AdmissionClient) { c.maxWait = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *AdmissionClient) { c.httpClient = hc }
}

func WithStateCallback(f func(State)) Option {
	return func(c *AdmissionClient) { c.onStateChange = f }
}

func NewAdmissionClient(baseURL, roomName, participantName string, opts ...Option) *AdmissionClient {
	c := &AdmissionClient{
		baseURL:         baseURL,
		roomName:        roomName,
		participantName: participantName,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		pollInterval:    defaultPollInterval,
		maxWait:         defaultMaxWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *AdmissionClient) State() State {
	return State(c.state.Load())
}

// Identity returns the queue identity once entry has been requested. For a
// first joiner it is the plain display name, no suffix needed.
func (c *AdmissionClient) Identity() string {
	return c.identity
}

// Join runs the admission flow to completion and returns the credential to
// connect to the media session with. It blocks while waiting for approval,
// polling on a fixed interval; the ticker stops on every exit path.
func (c *AdmissionClient) Join(ctx context.Context) (string, error) {
	c.setState(StateJoining)

	entry, err := c.requestEntry(ctx)
	if err != nil {
		return "", err
	}

	if entry.IsFirst {
		c.identity = c.participantName
		c.setState(StateAdmitted)
		return c.finishJoin(ctx)
	}

	c.identity = entry.Identity
	c.setState(StateWaitingForAdmission)

	if err := c.awaitApproval(ctx); err != nil {
		return "", err
	}
	c.setState(StateAdmitted)
	return c.finishJoin(ctx)
}

func (c *AdmissionClient) awaitApproval(ctx context.Context) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if c.maxWait > 0 {
		timer := time.NewTimer(c.maxWait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			c.abandon()
			return ctx.Err()
		case <-deadline:
			c.abandon()
			return ErrAdmissionTimeout
		case <-ticker.C:
			approved, err := c.checkStatus(ctx)
			if err != nil {
				// transient poll failures should not abort a queued wait
				logger.Warnw("admission status check failed, retrying", err,
					"room", c.roomName, "identity", c.identity)
				continue
			}
			if approved {
				return nil
			}
		}
	}
}

func (c *AdmissionClient) finishJoin(ctx context.Context) (string, error) {
	token, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	c.setState(StateInSession)
	return token, nil
}

// Leave withdraws a pending entry. Best effort: the server sweeps entries
// whose owners disappeared without calling it.
func (c *AdmissionClient) Leave(ctx context.Context) error {
	if c.identity == "" {
		return nil
	}
	body, err := json.Marshal(&service.RemoveRequest{
		RoomName:            c.roomName,
		ParticipantIdentity: c.identity,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/waiting-room", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	return discard(res)
}

func (c *AdmissionClient) abandon() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Leave(ctx); err != nil {
		logger.Infow("could not withdraw pending entry", "error", err,
			"room", c.roomName, "identity", c.identity)
	}
}

func (c *AdmissionClient) requestEntry(ctx context.Context) (*service.EntryResponse, error) {
	body, err := json.Marshal(&service.EntryRequest{
		RoomName:        c.roomName,
		ParticipantName: c.participantName,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/waiting-room", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res := &service.EntryResponse{}
	if err := c.doJSON(req, res); err != nil {
		return nil, errors.Wrap(err, "could not request entry")
	}
	return res, nil
}

func (c *AdmissionClient) checkStatus(ctx context.Context) (bool, error) {
	u := fmt.Sprintf("%s/waiting-room/status?roomName=%s&participantName=%s",
		c.baseURL, url.QueryEscape(c.roomName), url.QueryEscape(c.identity))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}

	res := &service.StatusResponse{}
	if err := c.doJSON(req, res); err != nil {
		return false, err
	}
	return res.Approved, nil
}

func (c *AdmissionClient) fetchToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(&service.RemoveRequest{
		RoomName:            c.roomName,
		ParticipantIdentity: c.identity,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/waiting-room/approve", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res := &service.ApproveResponse{}
	if err := c.doJSON(req, res); err != nil {
		return "", errors.Wrap(err, "could not fetch token")
	}
	return res.Token, nil
}

func (c *AdmissionClient) doJSON(req *http.Request, out interface{}) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("request failed with %d: %s", res.StatusCode, string(msg))
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *AdmissionClient) setState(state State) {
	if State(c.state.Swap(int32(state))) == state {
		return
	}
	if c.onStateChange != nil {
		c.onStateChange(state)
	}
}

func discard(res *http.Response) error {
	defer func() {
		_ = res.Body.Close()
	}()
	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("request failed with %d: %s", res.StatusCode, string(msg))
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}
