// Package domain defines the core business entities for the charter leads BFA.
// These models are independent of the persistence backend (Supabase PostgREST
// or direct Postgres) and of the upstream aviation/LLM providers.
package domain

import "time"

// ============================================================
// Leads
// ============================================================

// Lead statuses. Leads are never hard-deleted; archiving is a status.
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusQuoted    = "quoted"
	LeadStatusConverted = "converted"
	LeadStatusLost      = "lost"
	LeadStatusArchived  = "archived"
)

// Lead sources.
const (
	LeadSourceManual    = "manual"
	LeadSourceExtension = "extension"
	LeadSourceChat      = "chat"
	LeadSourceScrape    = "scrape"
	LeadSourceAIParse   = "ai_parse"
)

// Trip types.
const (
	TripTypeOneWay    = "one_way"
	TripTypeRoundTrip = "round_trip"
	TripTypeMultiLeg  = "multi_leg"
)

var leadStatuses = map[string]bool{
	LeadStatusNew:       true,
	LeadStatusContacted: true,
	LeadStatusQuoted:    true,
	LeadStatusConverted: true,
	LeadStatusLost:      true,
	LeadStatusArchived:  true,
}

// IsValidLeadStatus reports whether s is a known lead status.
func IsValidLeadStatus(s string) bool {
	return leadStatuses[s]
}

// Lead is an inbound charter trip request.
type Lead struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id,omitempty"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	Company          string     `json:"company,omitempty"`
	TripType         string     `json:"trip_type"`
	DepartureAirport string     `json:"departure_airport"`
	ArrivalAirport   string     `json:"arrival_airport"`
	DepartureDate    string     `json:"departure_date"` // YYYY-MM-DD
	DepartureTime    string     `json:"departure_time,omitempty"`
	ReturnDate       string     `json:"return_date,omitempty"`
	ReturnTime       string     `json:"return_time,omitempty"`
	Passengers       int        `json:"passengers"`
	Status           string     `json:"status"`
	Source           string     `json:"source,omitempty"`
	SourceURL        string     `json:"source_url,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	ConvertedAt      *time.Time `json:"converted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// FullName joins first and last name.
func (l *Lead) FullName() string {
	switch {
	case l.FirstName == "":
		return l.LastName
	case l.LastName == "":
		return l.FirstName
	}
	return l.FirstName + " " + l.LastName
}

// CreateLeadRequest is the body of POST /v1/leads and the payload of the
// create_lead chat tool.
type CreateLeadRequest struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	Company          string `json:"company,omitempty"`
	TripType         string `json:"trip_type,omitempty"`
	DepartureAirport string `json:"departure_airport"`
	ArrivalAirport   string `json:"arrival_airport"`
	DepartureDate    string `json:"departure_date"`
	DepartureTime    string `json:"departure_time,omitempty"`
	ReturnDate       string `json:"return_date,omitempty"`
	ReturnTime       string `json:"return_time,omitempty"`
	Passengers       int    `json:"passengers"`
	Source           string `json:"source,omitempty"`
	SourceURL        string `json:"source_url,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// UpdateLeadRequest is the body of PATCH /v1/leads/{leadId}.
// Nil fields are left untouched.
type UpdateLeadRequest struct {
	Status *string `json:"status,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

// LeadFilter narrows ListLeads.
type LeadFilter struct {
	UserID string
	Status string
	Limit  int
}

// ============================================================
// Capture intake (capture agent -> BFA)
// ============================================================

// PageData is what the capture agent extracts from a web page.
type PageData struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
	HTML        string    `json:"html,omitempty"`
	Emails      []string  `json:"emails,omitempty"`
	Phones      []string  `json:"phones,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
	Description string    `json:"description,omitempty"`
}

// IntakeRequest is the body of POST /v1/leads/intake.
type IntakeRequest struct {
	PageData  PageData  `json:"pageData"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// IntakeResponse is returned by the intake endpoint.
type IntakeResponse struct {
	Success    bool   `json:"success"`
	LeadID     string `json:"leadId"`
	ArchiveKey string `json:"archiveKey,omitempty"`
}
