package service

// Logging Standards for WinBridge
//
// Standard field names and message patterns so log lines from the gateway
// handler, the approval flow, the queue and the HTTP layer can be joined.

// Standard Field Names
const (
	// Core identifiers
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"
	LogFieldEventID   = "event_id"
	LogFieldMessageID = "message_id"
	LogFieldChannelID = "channel_id"
	LogFieldUserID    = "user_id"
	LogFieldApproval  = "approval_id"
	LogFieldQueueID   = "queue_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Domain fields
	LogFieldSource   = "source"
	LogFieldDecision = "decision"
	LogFieldTrigger  = "trigger"
	LogFieldProvider = "provider"
	LogFieldPath     = "classification_path"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
)

// Log levels
//
// DEBUG: classifier inputs, gateway frames, skipped messages.
// INFO: startup and shutdown, approvals created and resolved, deliveries.
// WARN: fallback classification, stale queue entries, retryable send failures.
// ERROR: failed sends to the leader, persistence failures.
// FATAL: startup requirements missing (token, leader id, unreadable queue).
//
// Message patterns
//
// "Starting [operation]", "Failed to [operation]", "Skipping [operation]: [reason]".
//
// logger.WithFields(logrus.Fields{
//     LogFieldApproval: requestID,
//     LogFieldDecision: "approve",
// }).Info("Approval resolved")
