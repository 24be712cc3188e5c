package domain

import "time"

// User is an end customer filing disputes. Tier feeds the creation-time
// priority triage (higher tiers carry contractual response guarantees).
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Tier         int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
