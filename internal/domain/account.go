package domain

import "time"

// ============================================================
// Accounts & Opportunities (created by lead conversion)
// ============================================================

// Opportunity stages.
const (
	StageQualification = "qualification"
	StageProposal      = "proposal"
	StageNegotiation   = "negotiation"
	StageClosedWon     = "closed_won"
	StageClosedLost    = "closed_lost"
)

// Account is the customer created when a lead converts.
type Account struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	LeadID    string    `json:"lead_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Opportunity carries the sales-pipeline fields plus the trip copied from the lead.
type Opportunity struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id,omitempty"`
	AccountID        string    `json:"account_id"`
	LeadID           string    `json:"lead_id"`
	Name             string    `json:"name"`
	Stage            string    `json:"stage"`
	Amount           float64   `json:"amount"`
	Probability      int       `json:"probability"`
	TripType         string    `json:"trip_type"`
	DepartureAirport string    `json:"departure_airport"`
	ArrivalAirport   string    `json:"arrival_airport"`
	DepartureDate    string    `json:"departure_date"`
	DepartureTime    string    `json:"departure_time,omitempty"`
	ReturnDate       string    `json:"return_date,omitempty"`
	ReturnTime       string    `json:"return_time,omitempty"`
	Passengers       int       `json:"passengers"`
	CreatedAt        time.Time `json:"created_at"`
}

// ConvertLeadRequest is the optional body of POST /v1/leads/{leadId}/convert.
type ConvertLeadRequest struct {
	AccountName string  `json:"account_name,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
	Probability int     `json:"probability,omitempty"`
	Stage       string  `json:"stage,omitempty"`
}

// ConversionResult is returned by a successful conversion.
type ConversionResult struct {
	Success     bool         `json:"success"`
	Lead        *Lead        `json:"lead"`
	Account     *Account     `json:"account"`
	Opportunity *Opportunity `json:"opportunity"`
}
