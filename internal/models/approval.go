package models

import "time"

// ContentSnapshot is the immutable copy of a post taken when consent is requested
type ContentSnapshot struct {
	Text            string `json:"text"`
	AttachmentCount int    `json:"attachmentCount"`
	URL             string `json:"url"`
}

// HasAttachment reports whether the original post carried any attachment
func (c ContentSnapshot) HasAttachment() bool {
	return c.AttachmentCount > 0
}

// PendingApproval is an outstanding consent request awaiting the author's decision.
// RequestID is the originating message id; only AuthorID may resolve it.
type PendingApproval struct {
	RequestID   string          `json:"requestId"`
	AuthorID    string          `json:"authorId"`
	AuthorName  string          `json:"authorName"`
	SourceLabel string          `json:"sourceLabel"`
	Content     ContentSnapshot `json:"content"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Resolution is the outcome of an attempt to resolve a PendingApproval
type Resolution string

const (
	ResolutionApproved     Resolution = "approved"
	ResolutionDenied       Resolution = "denied"
	ResolutionNotFound     Resolution = "not_found"
	ResolutionUnauthorized Resolution = "unauthorized"
)

// Decision is the author's answer to a consent prompt
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// IsValid reports whether d is one of the known decisions
func (d Decision) IsValid() bool {
	return d == DecisionApprove || d == DecisionDeny
}
