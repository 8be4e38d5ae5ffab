package domain

import "time"

// ChatMessage is relayed to every connection and never stored.
type ChatMessage struct {
	ID         string
	Text       string
	SenderName string
	SenderRole Role
	SentAt     time.Time
}
