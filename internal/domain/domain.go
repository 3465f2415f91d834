package domain

import (
	"encoding/json"
	"strings"
)

// Action is the verdict the Decision Service reached for a ticket.
type Action string

const (
	ActionAutoResolve Action = "auto_resolve"
	ActionEscalate    Action = "escalate"
	ActionRoute       Action = "route"
)

type Route string

const (
	RouteBilling Route = "billing"
	RouteTech    Route = "tech"
	RouteAccount Route = "account"
	RouteSales   Route = "sales"
	RouteOther   Route = "other"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// TicketRequest is the body of POST /decide.
type TicketRequest struct {
	TicketText string `json:"ticket_text"`
}

type Decision struct {
	Action        Action   `json:"decision" enum:"auto_resolve,escalate,route"`
	Route         Route    `json:"route" enum:"billing,tech,account,sales,other"`
	Urgency       Urgency  `json:"urgency" enum:"low,medium,high"`
	Confidence    float64  `json:"confidence" minimum:"0" maximum:"1"`
	Reasons       []string `json:"reasons"`
	DraftResponse string   `json:"draft_response"`
	Citations     []string `json:"citations"`
}

type Evaluation struct {
	Passed       bool     `json:"passed"`
	Score        float64  `json:"score"`
	Issues       []string `json:"issues"`
	SuggestedFix string   `json:"suggested_fix"`
}

// DecisionResult is the response of one successful decide call. It is
// replaced wholesale, never merged.
type DecisionResult struct {
	RunID      string     `json:"run_id"`
	Decision   Decision   `json:"decision"`
	Evaluation Evaluation `json:"evaluation"`
}

// HistoryItem is one logged run as returned by GET /history. The decision
// and evaluation payloads are a weaker contract than DecisionResult and are
// read through Record accessors.
type HistoryItem struct {
	ID           string `json:"id"`
	TicketText   string `json:"ticket_text"`
	Decision     Record `json:"decision_json"`
	Evaluation   Record `json:"evaluation_json"`
	ModelVersion string `json:"model_version"`
	CreatedAt    string `json:"created_at"`
}

// HistoryPage is the body of GET /history.
type HistoryPage struct {
	Items []HistoryItem `json:"items"`
}

// Health is the body of GET /health.
type Health struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Record is a loosely-typed JSON object. Lookups never fail; a missing or
// mistyped field reports ok=false.
type Record map[string]any

// UnmarshalJSON accepts any JSON value; anything but an object decodes to an
// empty record.
func (r *Record) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		*r = Record{}
		return nil
	}
	*r = obj
	return nil
}

func (r Record) String(key string) (string, bool) {
	v, ok := r[key].(string)
	return v, ok
}

func (r Record) Float(key string) (float64, bool) {
	v, ok := r[key].(float64)
	return v, ok
}

func (r Record) Bool(key string) (bool, bool) {
	v, ok := r[key].(bool)
	return v, ok
}

// Strings returns the string entries of an array field, skipping anything else.
func (r Record) Strings(key string) []string {
	raw, ok := r[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// MinTicketLength is the trimmed length a ticket needs before it may be submitted.
const MinTicketLength = 5

// Submittable reports whether text passes the submission gate.
func Submittable(text string) bool {
	return len([]rune(strings.TrimSpace(text))) >= MinTicketLength
}
