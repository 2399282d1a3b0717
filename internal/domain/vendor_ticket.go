package domain

import "time"

// VendorTicketStatus enumerates states of a sub-request opened with a vendor.
type VendorTicketStatus string

const (
	VendorTicketPending    VendorTicketStatus = "PENDING"
	VendorTicketInProgress VendorTicketStatus = "IN_PROGRESS"
	VendorTicketResolved   VendorTicketStatus = "RESOLVED"
	VendorTicketCancelled  VendorTicketStatus = "CANCELLED"
)

// IsActive reports whether the vendor is still expected to act.
func (s VendorTicketStatus) IsActive() bool {
	return s == VendorTicketPending || s == VendorTicketInProgress
}

// VendorTicket links a main ticket to an external vendor's tracking number.
type VendorTicket struct {
	ID                 string
	TicketID           string
	VendorID           string
	VendorName         string
	VendorTicketNumber string
	Status             VendorTicketStatus
	ResolvedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
