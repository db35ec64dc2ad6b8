package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// ScheduledMessage is a queued or completed outbound direct message.
// Records are append-only: Sent flips false->true once and SentAt is set with it.
type ScheduledMessage struct {
	ID           string     `json:"id" db:"id"`
	TargetUserID string     `json:"discordUserId" db:"target_user_id"`
	DisplayName  string     `json:"userName" db:"display_name"`
	CoachName    string     `json:"coachName,omitempty" db:"coach_name"`
	Body         string     `json:"message" db:"body"`
	Trigger      string     `json:"trigger" db:"trigger_label"`
	DueAt        *time.Time `json:"dueAt,omitempty" db:"due_at"`
	Sent         bool       `json:"sent" db:"sent"`
	SentAt       *time.Time `json:"sentAt,omitempty" db:"sent_at"`
	Attempts     int        `json:"attempts" db:"attempts"`
	LastError    string     `json:"lastError,omitempty" db:"last_error"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
}

// IsDue reports whether an unsent record should be attempted at now.
// A nil DueAt means "send immediately" and is always due.
func (m *ScheduledMessage) IsDue(now time.Time) bool {
	if m.Sent {
		return false
	}
	return m.DueAt == nil || !m.DueAt.After(now)
}

// MarkSent records a successful delivery. It returns false if the record was already sent.
func (m *ScheduledMessage) MarkSent(at time.Time) bool {
	if m.Sent {
		return false
	}
	m.Sent = true
	sentAt := at
	m.SentAt = &sentAt
	m.LastError = ""
	return true
}

// UnmarshalJSON also reads the numeric "count" field that older queue files used for the trigger
func (m *ScheduledMessage) UnmarshalJSON(data []byte) error {
	type plain ScheduledMessage
	aux := struct {
		*plain
		Count *int `json:"count"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if m.Trigger == "" && aux.Count != nil {
		m.Trigger = strconv.Itoa(*aux.Count)
	}
	return nil
}
