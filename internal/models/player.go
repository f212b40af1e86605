// internal/models/player.go
package models

import "github.com/google/uuid"

// Player is a participant as known to the match core. ExternalID references the
// identity used by the leaderboard (e.g. a social account id); it may be empty for guests.
type Player struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	ExternalID  string    `json:"externalId,omitempty"`
}

// Identity returns the key results are recorded under.
func (p Player) Identity() string {
	if p.ExternalID != "" {
		return p.ExternalID
	}
	return p.ID.String()
}
