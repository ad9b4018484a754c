package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/boddenberg/charter-leads-bfa/internal/chat/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/chat/port"
	maindomain "github.com/boddenberg/charter-leads-bfa/internal/domain"
)

// LeadTools returns every lead tool backed by leads.
func LeadTools(leads port.LeadManager) []ChatTool {
	return []ChatTool{
		&CreateLeadTool{leads: leads},
		&UpdateLeadStatusTool{leads: leads},
		&AddLeadNoteTool{leads: leads},
		&ListRecentLeadsTool{leads: leads},
	}
}

func functionTool(name, description, schema string) domain.ToolDefinition {
	return domain.ToolDefinition{
		Type: "function",
		Function: domain.FunctionSpec{
			Name:        name,
			Description: description,
			Parameters:  json.RawMessage(schema),
		},
	}
}

func route(dep, arr string) string {
	if dep == "" && arr == "" {
		return "route TBD"
	}
	return fmt.Sprintf("%s → %s", orDash(dep), orDash(arr))
}

func orDash(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

// ============================================================
// create_lead
// ============================================================

type CreateLeadTool struct {
	leads port.LeadManager
}

func (t *CreateLeadTool) Definition() domain.ToolDefinition {
	return functionTool("create_lead", "Create a new charter lead from the conversation.", `{
  "type": "object",
  "properties": {
    "first_name": {"type": "string"},
    "last_name": {"type": "string"},
    "email": {"type": "string"},
    "phone": {"type": "string"},
    "company": {"type": "string"},
    "trip_type": {"type": "string", "enum": ["one_way", "round_trip", "multi_leg"]},
    "departure_airport": {"type": "string", "description": "ICAO or IATA code"},
    "arrival_airport": {"type": "string", "description": "ICAO or IATA code"},
    "departure_date": {"type": "string", "description": "YYYY-MM-DD"},
    "return_date": {"type": "string", "description": "YYYY-MM-DD"},
    "passengers": {"type": "integer", "minimum": 1},
    "notes": {"type": "string"}
  },
  "required": ["first_name", "departure_airport", "arrival_airport", "departure_date", "passengers"]
}`)
}

func (t *CreateLeadTool) Execute(ctx context.Context, userID string, arguments json.RawMessage) (string, error) {
	var req maindomain.CreateLeadRequest
	if err := json.Unmarshal(arguments, &req); err != nil {
		return "", fmt.Errorf("invalid create_lead arguments: %w", err)
	}
	req.Source = maindomain.LeadSourceChat

	lead, err := t.leads.CreateLead(ctx, userID, &req)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Lead created for %s: %s on %s, %d passenger(s). ID: %s",
		lead.FullName(), route(lead.DepartureAirport, lead.ArrivalAirport),
		orDash(lead.DepartureDate), lead.Passengers, lead.ID), nil
}

// ============================================================
// update_lead_status
// ============================================================

type UpdateLeadStatusTool struct {
	leads port.LeadManager
}

func (t *UpdateLeadStatusTool) Definition() domain.ToolDefinition {
	return functionTool("update_lead_status", "Change the status of an existing lead.", `{
  "type": "object",
  "properties": {
    "lead_id": {"type": "string"},
    "status": {"type": "string", "enum": ["new", "contacted", "quoted", "lost", "archived"]}
  },
  "required": ["lead_id", "status"]
}`)
}

func (t *UpdateLeadStatusTool) Execute(ctx context.Context, userID string, arguments json.RawMessage) (string, error) {
	var args struct {
		LeadID string `json:"lead_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return "", fmt.Errorf("invalid update_lead_status arguments: %w", err)
	}
	if args.LeadID == "" {
		return "", &maindomain.ErrValidation{Field: "lead_id", Message: "is required"}
	}

	lead, err := t.leads.UpdateLead(ctx, userID, args.LeadID, &maindomain.UpdateLeadRequest{Status: &args.Status})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Lead %s (%s) is now %s.", lead.ID, lead.FullName(), lead.Status), nil
}

// ============================================================
// add_lead_note
// ============================================================

type AddLeadNoteTool struct {
	leads port.LeadManager
}

func (t *AddLeadNoteTool) Definition() domain.ToolDefinition {
	return functionTool("add_lead_note", "Append a note to an existing lead.", `{
  "type": "object",
  "properties": {
    "lead_id": {"type": "string"},
    "note": {"type": "string"}
  },
  "required": ["lead_id", "note"]
}`)
}

func (t *AddLeadNoteTool) Execute(ctx context.Context, userID string, arguments json.RawMessage) (string, error) {
	var args struct {
		LeadID string `json:"lead_id"`
		Note   string `json:"note"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return "", fmt.Errorf("invalid add_lead_note arguments: %w", err)
	}
	note := strings.TrimSpace(args.Note)
	if args.LeadID == "" || note == "" {
		return "", &maindomain.ErrValidation{Field: "note", Message: "lead_id and note are required"}
	}

	current, err := t.leads.GetLead(ctx, userID, args.LeadID)
	if err != nil {
		return "", err
	}
	notes := note
	if current.Notes != "" {
		notes = current.Notes + "\n" + note
	}

	lead, err := t.leads.UpdateLead(ctx, userID, args.LeadID, &maindomain.UpdateLeadRequest{Notes: &notes})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("📝 Note added to %s (%s).", lead.FullName(), lead.ID), nil
}

// ============================================================
// list_recent_leads
// ============================================================

type ListRecentLeadsTool struct {
	leads port.LeadManager
}

func (t *ListRecentLeadsTool) Definition() domain.ToolDefinition {
	return functionTool("list_recent_leads", "List the most recent leads, optionally filtered by status.", `{
  "type": "object",
  "properties": {
    "status": {"type": "string"},
    "limit": {"type": "integer", "minimum": 1, "maximum": 20}
  }
}`)
}

func (t *ListRecentLeadsTool) Execute(ctx context.Context, userID string, arguments json.RawMessage) (string, error) {
	var args struct {
		Status string `json:"status"`
		Limit  int    `json:"limit"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return "", fmt.Errorf("invalid list_recent_leads arguments: %w", err)
	}
	switch {
	case args.Limit <= 0:
		args.Limit = 5
	case args.Limit > 20:
		args.Limit = 20
	}

	leads, err := t.leads.ListLeads(ctx, maindomain.LeadFilter{UserID: userID, Status: args.Status, Limit: args.Limit})
	if err != nil {
		return "", err
	}
	if len(leads) == 0 {
		return "No leads found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 %d recent lead(s):", len(leads))
	for _, l := range leads {
		fmt.Fprintf(&b, "\n• %s, %s, %s (%s) [%s]",
			l.FullName(), route(l.DepartureAirport, l.ArrivalAirport), orDash(l.DepartureDate), l.Status, l.ID)
	}
	return b.String(), nil
}
