package domain

// SubjectType distinguishes authenticated principals.
type SubjectType string

const (
	SubjectTypeUser  SubjectType = "END_USER"
	SubjectTypeAgent SubjectType = "AGENT"
)
