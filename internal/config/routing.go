package config

import (
	"errors"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Recipient names a party resolved from the ticket when routing mail.
type Recipient string

const (
	RecipientRequester    Recipient = "requester"
	RecipientAssignee     Recipient = "assignee"
	RecipientSupportGroup Recipient = "support_group"
)

// Template keys used by the notification emitter.
const (
	TemplateTicketUpdated  = "ticket_updated"
	TemplateTicketResolved = "ticket_resolved"
	TemplateTicketClosed   = "ticket_closed"
)

// Routing maps e-mail template keys to recipients and text templates.
type Routing struct {
	Templates map[string]TemplateRoute `toml:"templates"`
}

// TemplateRoute is one entry of the routing table. Subject and Body are
// text/template sources rendered against the ticket event.
type TemplateRoute struct {
	Recipients []Recipient `toml:"recipients"`
	Subject    string      `toml:"subject"`
	Body       string      `toml:"body"`
}

// DefaultRouting is used when no routing file is configured.
func DefaultRouting() Routing {
	return Routing{
		Templates: map[string]TemplateRoute{
			TemplateTicketUpdated: {
				Recipients: []Recipient{RecipientRequester, RecipientAssignee},
				Subject:    "[{{.TicketNumber}}] Tiket diperbarui: {{.Title}}",
				Body:       "Tiket {{.TicketNumber}} diperbarui oleh {{.ActorName}}.\nStatus: {{.Status}}\nPrioritas: {{.Priority}}\n{{if .Description}}\n{{.Description}}\n{{end}}\n{{.Link}}\n",
			},
			TemplateTicketResolved: {
				Recipients: []Recipient{RecipientRequester},
				Subject:    "[{{.TicketNumber}}] Tiket diselesaikan: {{.Title}}",
				Body:       "Tiket {{.TicketNumber}} telah diselesaikan oleh {{.ActorName}}.\n{{if .ResolutionNotes}}Catatan: {{.ResolutionNotes}}\n{{end}}\n{{.Link}}\n",
			},
			TemplateTicketClosed: {
				Recipients: []Recipient{RecipientRequester, RecipientAssignee},
				Subject:    "[{{.TicketNumber}}] Tiket ditutup: {{.Title}}",
				Body:       "Tiket {{.TicketNumber}} telah ditutup.\n\n{{.Link}}\n",
			},
		},
	}
}

// LoadRouting reads the routing table from path. An empty path or a missing
// file yields DefaultRouting; entries in the file override the defaults per key.
func LoadRouting(path string) (Routing, error) {
	routing := DefaultRouting()
	if path == "" {
		return routing, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return routing, nil
		}
		return Routing{}, fmt.Errorf("read routing: %w", err)
	}

	var fromFile Routing
	if err := toml.Unmarshal(content, &fromFile); err != nil {
		return Routing{}, fmt.Errorf("decode toml: %w", err)
	}
	for key, route := range fromFile.Templates {
		routing.Templates[key] = route
	}
	if err := routing.Validate(); err != nil {
		return Routing{}, err
	}
	return routing, nil
}

// Validate checks every route names known recipients and has a subject.
func (r Routing) Validate() error {
	for key, route := range r.Templates {
		if route.Subject == "" {
			return fmt.Errorf("templates.%s.subject is required", key)
		}
		for idx, rcpt := range route.Recipients {
			switch rcpt {
			case RecipientRequester, RecipientAssignee, RecipientSupportGroup:
			default:
				return fmt.Errorf("templates.%s.recipients[%d] is unknown: %q", key, idx, rcpt)
			}
		}
	}
	return nil
}

// Route returns the entry for key, falling back to the generic update template.
func (r Routing) Route(key string) TemplateRoute {
	if route, ok := r.Templates[key]; ok {
		return route
	}
	return r.Templates[TemplateTicketUpdated]
}
