package models

import (
	"strings"
	"time"
)

const guestIDPrefix = "guest"

type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	IsGuest     bool      `json:"is_guest"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Guest accounts are flagged explicitly or carry the "guest" id prefix.
func (p Participant) Guest() bool {
	return p.IsGuest || strings.HasPrefix(p.ID, guestIDPrefix)
}
