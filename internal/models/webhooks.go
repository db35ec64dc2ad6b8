package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LifecycleEvent is the payload posted by the CRM when a member reaches a day marker.
// Several field spellings are accepted because different automations send different names.
type LifecycleEvent struct {
	DiscordUserID   string       `json:"discordUserId"`
	UserID          string       `json:"userId"`
	TargetUserID    string       `json:"targetUserId"`
	FirstName       string       `json:"firstName"`
	Name            string       `json:"name"`
	DisplayName     string       `json:"displayName"`
	CoachName       string       `json:"coachName"`
	CalendarLink    string       `json:"calendarLink"`
	CalendarLinkAlt string       `json:"calendar_link"`
	Count           TriggerCount `json:"count"`
	TriggerBucket   TriggerCount `json:"triggerBucket"`
}

// Target returns the first non-empty target user id alias
func (e *LifecycleEvent) Target() string {
	return firstNonEmpty(e.DiscordUserID, e.UserID, e.TargetUserID)
}

// Display returns the first non-empty display name alias
func (e *LifecycleEvent) Display() string {
	return firstNonEmpty(e.FirstName, e.Name, e.DisplayName)
}

// Calendar returns the first non-empty calendar link alias
func (e *LifecycleEvent) Calendar() string {
	return firstNonEmpty(e.CalendarLink, e.CalendarLinkAlt)
}

// Bucket returns the trigger bucket, preferring count over triggerBucket
func (e *LifecycleEvent) Bucket() int {
	if e.Count != 0 {
		return int(e.Count)
	}
	return int(e.TriggerBucket)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// TriggerCount accepts a day count sent either as a JSON number or a numeric string.
// Unparseable values decode to zero, which intake rejects as an unknown trigger.
type TriggerCount int

func (c *TriggerCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}

	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("trigger count: %w", err)
		}
	} else {
		raw = string(data)
	}

	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == 0 {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(raw[:end])
	if err != nil {
		*c = 0
		return nil
	}
	*c = TriggerCount(n)
	return nil
}

// WebhookResponse is the JSON envelope returned by the intake endpoint
type WebhookResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
