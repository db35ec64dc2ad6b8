package database

const (
	selectScheduledMessagesQuery = `
		SELECT id, target_user_id, display_name, coach_name, body, trigger_label,
		       due_at, sent, sent_at, attempts, last_error, created_at
		FROM scheduled_messages
		ORDER BY created_at, id
	`

	insertScheduledMessageQuery = `
		INSERT INTO scheduled_messages (
			id, target_user_id, display_name, coach_name, body, trigger_label,
			due_at, sent, sent_at, attempts, last_error, created_at
		) VALUES (
			:id, :target_user_id, :display_name, :coach_name, :body, :trigger_label,
			:due_at, :sent, :sent_at, :attempts, :last_error, :created_at
		)
		ON CONFLICT(id) DO NOTHING
	`

	// sent never reverts: rows already marked sent are left untouched
	updateScheduledMessageQuery = `
		UPDATE scheduled_messages
		SET sent = :sent, sent_at = :sent_at, attempts = :attempts, last_error = :last_error
		WHERE id = :id AND sent = 0
	`

	countScheduledMessagesQuery = `SELECT COUNT(*) FROM scheduled_messages`
)
