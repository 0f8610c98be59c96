package models

import "time"

// Role identifies who authored a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a session's rolling history
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is a single coaching turn submitted by a transport
type ChatRequest struct {
	Situation string `json:"situation"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the outcome of a turn as seen by the caller
type ChatResponse struct {
	Response        string  `json:"response"`
	Refused         bool    `json:"refused"`
	GuardLabel      string  `json:"guard_label"`
	GuardConfidence float64 `json:"guard_confidence"`
	SessionID       string  `json:"session_id,omitempty"`
}

// Outcome names the terminal state a turn ended in
type Outcome string

const (
	OutcomeGuidance         Outcome = "guidance"
	OutcomeRefused          Outcome = "refused"
	OutcomeGuardUnavailable Outcome = "guard_unavailable"
	OutcomeBlocked          Outcome = "blocked"
	OutcomeAnswered         Outcome = "answered"
	OutcomeFallback         Outcome = "fallback"
)

// Outcomes lists every terminal state in a stable order
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeGuidance,
		OutcomeRefused,
		OutcomeGuardUnavailable,
		OutcomeBlocked,
		OutcomeAnswered,
		OutcomeFallback,
	}
}

// TurnRecord is the journal entry written for every finished turn
type TurnRecord struct {
	ID              string        `json:"id"`
	SessionID       string        `json:"session_id"`
	Outcome         Outcome       `json:"outcome"`
	GuardLabel      string        `json:"guard_label"`
	GuardConfidence float64       `json:"guard_confidence"`
	Refused         bool          `json:"refused"`
	Latency         time.Duration `json:"latency"`
	CreatedAt       time.Time     `json:"created_at"`
}
