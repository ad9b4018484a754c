package domain

import "time"

// ============================================================
// Quotes & open legs
// ============================================================

// ParsedQuote is one option extracted from pasted quote text.
type ParsedQuote struct {
	Option       int    `json:"option"`
	Price        string `json:"price"`
	Aircraft     string `json:"aircraft"`
	Passengers   string `json:"passengers"`
	Category     string `json:"category"`
	SafetyRating string `json:"safetyRating,omitempty"`
	Route        string `json:"route,omitempty"`
	Dates        string `json:"dates,omitempty"`
}

// Quote is a persisted operator quote, usually parsed from an inbound email.
type Quote struct {
	ID            string    `json:"id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	LeadID        string    `json:"lead_id,omitempty"`
	OperatorName  string    `json:"operator_name"`
	AircraftType  string    `json:"aircraft_type"`
	Category      string    `json:"category,omitempty"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	Passengers    int       `json:"passengers,omitempty"`
	Route         string    `json:"route,omitempty"`
	DepartureDate string    `json:"departure_date,omitempty"`
	ReturnDate    string    `json:"return_date,omitempty"`
	SafetyRating  string    `json:"safety_rating,omitempty"`
	RawText       string    `json:"raw_text,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// OpenLeg is an empty repositioning flight advertised by an operator.
type OpenLeg struct {
	ID               string    `json:"id,omitempty"`
	UserID           string    `json:"user_id,omitempty"`
	OperatorName     string    `json:"operator_name"`
	AircraftType     string    `json:"aircraft_type"`
	Registration     string    `json:"registration,omitempty"`
	DepartureAirport string    `json:"departure_airport"`
	ArrivalAirport   string    `json:"arrival_airport"`
	DepartureDate    string    `json:"departure_date"`
	Seats            int       `json:"seats,omitempty"`
	Price            float64   `json:"price,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ParseTextRequest carries free text for the regex/LLM parsers.
type ParseTextRequest struct {
	Text   string `json:"text"`
	LeadID string `json:"leadId,omitempty"`
}

// ParseEmailRequest is the body of the LLM email parsers.
type ParseEmailRequest struct {
	Email  string `json:"email"`
	LeadID string `json:"leadId,omitempty"`
}

// ParseQuotesResponse is returned by POST /v1/quotes/parse.
type ParseQuotesResponse struct {
	Success bool          `json:"success"`
	Quotes  []ParsedQuote `json:"quotes"`
}

// ============================================================
// Email templates
// ============================================================

// EmailTemplate is a reusable email with {{placeholder}} fields.
type EmailTemplate struct {
	ID        string    `json:"id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Name      string    `json:"name"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Category  string    `json:"category,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TemplateRequest is the body of POST/PUT /v1/templates. On update, empty
// fields are left untouched.
type TemplateRequest struct {
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Category string `json:"category,omitempty"`
}

// RenderTemplateRequest selects the lead a template is rendered against.
type RenderTemplateRequest struct {
	LeadID string `json:"leadId"`
}

// RenderedEmail is a template rendered against a lead.
type RenderedEmail struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	To      string `json:"to,omitempty"`
}

// ============================================================
// Pending lead imports (scraping)
// ============================================================

// PendingLeadImport is a scraped lead waiting for user approval.
type PendingLeadImport struct {
	ID        string             `json:"id,omitempty"`
	UserID    string             `json:"user_id,omitempty"`
	SourceURL string             `json:"source_url"`
	RawText   string             `json:"raw_text,omitempty"`
	Parsed    *CreateLeadRequest `json:"parsed_data"`
	CreatedAt time.Time          `json:"created_at"`
}

// ScrapeRequest is the body of POST /v1/imports/scrape.
type ScrapeRequest struct {
	URL string `json:"url"`
}
