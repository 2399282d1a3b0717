package dto

import (
	"bytes"
	"encoding/json"

	"github.com/spec-kit/servicedesk/internal/domain"
	"github.com/spec-kit/servicedesk/internal/service"
)

// NullableString distinguishes an absent field from an explicit null.
type NullableString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// UpdateTicketRequest payload. Omitted fields are left untouched; a null
// assignedToId unassigns the ticket.
type UpdateTicketRequest struct {
	Title               *string                     `json:"title"`
	Description         *string                     `json:"description"`
	Priority            *domain.TicketPriority      `json:"priority"`
	Justification       *string                     `json:"justification"`
	Status              *domain.TicketStatus        `json:"status"`
	AssignedToID        NullableString              `json:"assignedToId"`
	Category            *domain.TicketCategory      `json:"category"`
	IssueClassification *domain.IssueClassification `json:"issueClassification"`
	RootCause           *string                     `json:"rootCause"`
	ResolutionNotes     *string                     `json:"resolutionNotes"`
	EstimatedHours      *float64                    `json:"estimatedHours"`
	ActualHours         *float64                    `json:"actualHours"`
	Version             *int64                      `json:"version"`
}

// ToInput maps the payload onto the service input.
func (r UpdateTicketRequest) ToInput() service.UpdateTicketInput {
	in := service.UpdateTicketInput{
		Title:               r.Title,
		Description:         r.Description,
		Priority:            r.Priority,
		Justification:       r.Justification,
		Status:              r.Status,
		Category:            r.Category,
		IssueClassification: r.IssueClassification,
		RootCause:           r.RootCause,
		ResolutionNotes:     r.ResolutionNotes,
		EstimatedHours:      r.EstimatedHours,
		ActualHours:         r.ActualHours,
		Version:             r.Version,
	}
	if r.AssignedToID.Set {
		assignee := ""
		if r.AssignedToID.Value != nil {
			assignee = *r.AssignedToID.Value
		}
		in.AssignedToID = &assignee
	}
	return in
}

// TicketUpdateResponse wraps the committed ticket and any policy adjustments.
type TicketUpdateResponse struct {
	Data     *domain.Ticket    `json:"data"`
	Warnings []service.Warning `json:"warnings"`
}

// NewTicketUpdateResponse builds the response body.
func NewTicketUpdateResponse(res *service.UpdateResult) TicketUpdateResponse {
	warnings := res.Warnings
	if warnings == nil {
		warnings = []service.Warning{}
	}
	return TicketUpdateResponse{Data: res.Ticket, Warnings: warnings}
}
