package models

import "time"

type DeadLetterStatus string

const (
	DeadLetterPending   DeadLetterStatus = "Pending"
	DeadLetterProcessed DeadLetterStatus = "Processed"
	DeadLetterFailed    DeadLetterStatus = "Failed"
)

// DeadLetterMessage is an append-only record of a transition that could not be applied
type DeadLetterMessage struct {
	ID             int64            `db:"id"`
	MessageContent string           `db:"message_content"`
	Source         string           `db:"source"`
	Error          string           `db:"error"`
	CreatedAt      time.Time        `db:"created_at"`
	LastRetryAt    *time.Time       `db:"last_retry_at"`
	RetryCount     int              `db:"retry_count"`
	Status         DeadLetterStatus `db:"status"`
}
