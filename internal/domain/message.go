package domain

import "time"

// Message is an append-only entry in a query's thread, written by a person or by the system.
type Message struct {
	ID              string
	QueryID         string
	Body            string
	Sender          string
	SenderRole      string
	Team            Team
	Timestamp       time.Time
	IsSystemMessage bool
	ActionType      ActionType
	Metadata        map[string]any
}
