package domain

import "time"

// SLATracking holds the deadlines and breach flags of one ticket.
type SLATracking struct {
	ID                   string
	TicketID             string
	ResponseDeadline     time.Time
	ResolutionDeadline   time.Time
	EscalationDeadline   time.Time
	ResponseTime         *time.Time
	ResolutionTime       *time.Time
	IsResponseBreached   bool
	IsResolutionBreached bool
	IsEscalated          bool
	UpdatedAt            time.Time
}

// Clone returns a deep copy.
func (s *SLATracking) Clone() *SLATracking {
	if s == nil {
		return nil
	}
	cp := *s
	cp.ResponseTime = clonePtr(s.ResponseTime)
	cp.ResolutionTime = clonePtr(s.ResolutionTime)
	return &cp
}
