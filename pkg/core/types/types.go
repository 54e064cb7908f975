// Package types holds the shared data model for the assistant.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// GroundingURL is a single web citation attached to a grounded reply.
type GroundingURL struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// ChatMessage is one turn of the conversation. Messages are immutable
// once appended; insertion order is conversation order.
type ChatMessage struct {
	ID            string         `json:"id"`
	Role          Role           `json:"role"`
	Text          string         `json:"text"`
	Timestamp     int64          `json:"timestamp"` // epoch millis
	GroundingURLs []GroundingURL `json:"groundingUrls,omitempty"`
}

// NewChatMessage creates a message stamped with the current time.
func NewChatMessage(role Role, text string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
}

// GeneratedImage is one gallery entry produced by the image studio.
type GeneratedImage struct {
	ID        string `json:"id"`
	Prompt    string `json:"prompt"`
	PNG       []byte `json:"png"`
	Timestamp int64  `json:"timestamp"`
}

// LanguageMode pins the assistant's reply language.
type LanguageMode string

const (
	LanguageAuto    LanguageMode = "auto"
	LanguageFarsi   LanguageMode = "farsi"
	LanguageEnglish LanguageMode = "english"
)

// ModelTier selects the remote model family.
type ModelTier string

const (
	TierFlash ModelTier = "flash"
	TierPro   ModelTier = "pro"
)

// StationID identifies a radio station.
type StationID string

const (
	StationAva   StationID = "ava"
	StationJavan StationID = "javan"
)

// Settings is the flat app configuration record. The core components
// consume it as an immutable parameter bag; all mutation happens at the
// UI boundary and produces a new value.
type Settings struct {
	Informal    bool   `json:"isInformal"`
	NoRules     bool   `json:"noRules"`
	UserName    string `json:"userName"`
	UserJob     string `json:"userJob"`
	UserContext string `json:"userContext"`

	RadioPlaying bool      `json:"isRadioPlaying"`
	RadioStation StationID `json:"radioStation"`

	AICreativity    float64      `json:"aiCreativity"`
	AutoSearch      bool         `json:"autoSearch"`
	EnableThinking  bool         `json:"enableThinking"`
	ThinkingBudget  int32        `json:"thinkingBudget"`
	ModelTier       ModelTier    `json:"modelTier"`
	SystemOverclock bool         `json:"systemOverclock"`
	VoiceSpeed      float64      `json:"voiceSpeed"`
	LanguageMode    LanguageMode `json:"languageMode"`
}

// DefaultSettings returns the configuration used before the user has
// saved anything.
func DefaultSettings() Settings {
	return Settings{
		RadioStation: StationAva,
		AICreativity: 0.7,
		ModelTier:    TierFlash,
		VoiceSpeed:   1.0,
		LanguageMode: LanguageAuto,
	}
}

// Temperature resolves the sampling temperature for a text request.
// Overclock pins it to 1.0 regardless of the creativity slider.
func (s Settings) Temperature() float64 {
	if s.SystemOverclock {
		return 1.0
	}
	return s.AICreativity
}
