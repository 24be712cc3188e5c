package domain

import "time"

// AgentRole enumerates agent privilege levels.
type AgentRole string

const (
	AgentRoleAgent  AgentRole = "AGENT"
	AgentRoleSenior AgentRole = "SENIOR_AGENT"
	AgentRoleAdmin  AgentRole = "ADMIN"
)

// Agent is a dispute-handling operator.
type Agent struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         AgentRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
