package auth

type VideoGrant struct {
	RoomCreate bool   `json:"roomCreate,omitempty"`
	RoomList   bool   `json:"roomList,omitempty"`
	RoomAdmin  bool   `json:"roomAdmin,omitempty"`
	RoomJoin   bool   `json:"roomJoin,omitempty"`
	Room       string `json:"room,omitempty"`

	CanPublish     *bool `json:"canPublish,omitempty"`
	CanPublishData *bool `json:"canPublishData,omitempty"`
	CanSubscribe   *bool `json:"canSubscribe,omitempty"`
}

func (g *VideoGrant) SetCanPublish(val bool) {
	g.CanPublish = &val
}

func (g *VideoGrant) SetCanPublishData(val bool) {
	g.CanPublishData = &val
}

func (g *VideoGrant) SetCanSubscribe(val bool) {
	g.CanSubscribe = &val
}

type ClaimGrants struct {
	Identity string                 `json:"-"`
	Name     string                 `json:"name,omitempty"`
	Video    *VideoGrant            `json:"video,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
