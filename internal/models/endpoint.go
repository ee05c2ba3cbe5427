package models

import "time"

type Endpoint struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Secret      string `json:"secret,omitempty"`
	// Optional sender identity, merged into outgoing payloads when set.
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	// RateLimit overrides the global requests-per-window limit when > 0.
	RateLimit int       `json:"rate_limit,omitempty"`
	Active    bool      `json:"active"`
	Stats     Stats     `json:"stats"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
