package domain

import "time"

// TicketComment is an entry in a ticket's conversation thread.
type TicketComment struct {
	ID         string
	TicketID   string
	UserID     string
	Content    string
	IsInternal bool
	CreatedAt  time.Time
}
