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

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"
)

var (
	ErrKeyFileIncorrectPermission = errors.New("key file others permissions must be set to 0")
	ErrKeysNotSet                 = errors.New("one of key-file or keys must be provided")
	ErrLiveKitURLNotSet           = errors.New("url of the LiveKit room service must be provided")
)

type Config struct {
	Port          uint32   `yaml:"port,omitempty"`
	BindAddresses []string `yaml:"bind_addresses,omitempty"`

	LiveKit     LiveKitConfig     `yaml:"livekit,omitempty"`
	Room        RoomConfig        `yaml:"room,omitempty"`
	WaitingRoom WaitingRoomConfig `yaml:"waiting_room,omitempty"`
	Redis       RedisConfig       `yaml:"redis,omitempty"`

	KeyFile string            `yaml:"key_file,omitempty"`
	Keys    map[string]string `yaml:"keys,omitempty"`

	Logging LoggingConfig `yaml:"logging,omitempty"`

	Development bool `yaml:"development,omitempty"`
}

// LiveKitConfig points at the deployment whose rooms are being gated.
type LiveKitConfig struct {
	// http(s) url of the RoomService twirp API
	URL string `yaml:"url,omitempty"`
	// timeout for a single RoomService call
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// RoomConfig is applied when a room is lazily created on first probe.
type RoomConfig struct {
	// seconds to keep an empty room open
	EmptyTimeout    uint32 `yaml:"empty_timeout,omitempty"`
	MaxParticipants uint32 `yaml:"max_participants,omitempty"`
}

type WaitingRoomConfig struct {
	// suggested client poll cadence, surfaced as the SDK default
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	// pending entries older than this are evicted by the sweeper. 0 disables sweeping.
	MaxPendingAge time.Duration `yaml:"max_pending_age,omitempty"`
	SweepInterval time.Duration `yaml:"sweep_interval,omitempty"`
	// validity of tokens minted on approval
	TokenTTL time.Duration `yaml:"token_ttl,omitempty"`
}

type RedisConfig struct {
	Address  string `yaml:"address,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

func (r *RedisConfig) IsConfigured() bool {
	return r.Address != ""
}

type LoggingConfig struct {
	logger.Config `yaml:",inline"`
}

var DefaultConfig = Config{
	Port: 7890,
	LiveKit: LiveKitConfig{
		Timeout: 5 * time.Second,
	},
	Room: RoomConfig{
		EmptyTimeout:    10 * 60,
		MaxParticipants: 20,
	},
	WaitingRoom: WaitingRoomConfig{
		PollInterval:  3 * time.Second,
		MaxPendingAge: 15 * time.Minute,
		SweepInterval: time.Minute,
		TokenTTL:      24 * time.Hour,
	},
	Keys: map[string]string{},
}

func NewConfig(confString string, c *cli.Context) (*Config, error) {
	// start with defaults
	conf := DefaultConfig
	conf.Keys = map[string]string{}

	if confString != "" {
		decoder := yaml.NewDecoder(strings.NewReader(confString))
		decoder.KnownFields(true)
		if err := decoder.Decode(&conf); err != nil {
			return nil, fmt.Errorf("could not parse config: %v", err)
		}
	}

	if c != nil {
		if err := conf.updateFromCLI(c); err != nil {
			return nil, err
		}
	}

	conf.KeyFile = os.ExpandEnv(conf.KeyFile)

	return &conf, nil
}

func (conf *Config) updateFromCLI(c *cli.Context) error {
	if c.IsSet("dev") {
		conf.Development = c.Bool("dev")
	}
	if c.IsSet("key-file") {
		conf.KeyFile = c.String("key-file")
	}
	if c.IsSet("keys") {
		if err := conf.unmarshalKeys(c.String("keys")); err != nil {
			return errors.New("Could not parse keys, it needs to be exactly, \"key: secret\", including the space")
		}
	}
	if c.IsSet("livekit-url") {
		conf.LiveKit.URL = c.String("livekit-url")
	}
	if c.IsSet("redis-host") {
		conf.Redis.Address = c.String("redis-host")
	}
	if c.IsSet("redis-password") {
		conf.Redis.Password = c.String("redis-password")
	}
	if c.IsSet("bind") {
		conf.BindAddresses = c.StringSlice("bind")
	}
	return nil
}

func (conf *Config) unmarshalKeys(keys string) error {
	temp := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(keys), temp); err != nil {
		return err
	}

	conf.Keys = make(map[string]string, len(temp))

	for key, val := range temp {
		if secret, ok := val.(string); ok {
			conf.Keys[key] = secret
		}
	}
	return nil
}

func (conf *Config) Validate() error {
	if err := conf.ValidateKeys(); err != nil {
		return err
	}
	if conf.LiveKit.URL == "" {
		return ErrLiveKitURLNotSet
	}
	return nil
}

func (conf *Config) ValidateKeys() error {
	// prefer keyfile if set
	if conf.KeyFile != "" {
		var otherFilter os.FileMode = 0o007
		if st, err := os.Stat(conf.KeyFile); err != nil {
			return err
		} else if st.Mode().Perm()&otherFilter != 0o000 {
			return ErrKeyFileIncorrectPermission
		}
		f, err := os.Open(conf.KeyFile)
		if err != nil {
			return err
		}
		defer func() {
			_ = f.Close()
		}()
		decoder := yaml.NewDecoder(f)
		conf.Keys = map[string]string{}
		if err = decoder.Decode(conf.Keys); err != nil {
			return err
		}
	}

	if len(conf.Keys) == 0 {
		return ErrKeysNotSet
	}

	if !conf.Development {
		for key, secret := range conf.Keys {
			if len(secret) < 32 {
				logger.Errorw("secret is too short, should be at least 32 characters for security", nil, "apiKey", key)
			}
		}
	}
	return nil
}

// APIKeyPair returns the key pair used to sign participant tokens and to
// authorize RoomService calls. With multiple keys configured the
// lexicographically smallest key wins, to keep the choice deterministic.
func (conf *Config) APIKeyPair() (apiKey string, secret string) {
	for k := range conf.Keys {
		if apiKey == "" || k < apiKey {
			apiKey = k
		}
	}
	return apiKey, conf.Keys[apiKey]
}

func InitLoggerFromConfig(config *LoggingConfig) {
	logger.InitFromConfig(config.Config, "admission")
}
