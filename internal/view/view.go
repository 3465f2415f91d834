// Package view derives display values from engine state. Nothing here
// mutates its input or fails; unknown or malformed data falls back to a
// placeholder or to the raw value.
package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"sentinel/internal/domain"
	"sentinel/internal/engine"
)

const (
	// Placeholder stands in for an absent value.
	Placeholder = "—"
	// NoRun is the evaluation badge before any run has completed.
	NoRun = "No run"
	// PreviewLimit is the number of characters kept by Preview.
	PreviewLimit = 120
	Ellipsis     = "…"
)

// Tier is the display class of an urgency value.
type Tier string

const (
	TierHigh    Tier = "high"
	TierMedium  Tier = "medium"
	TierLow     Tier = "low"
	TierUnknown Tier = "unknown"
)

func UrgencyTier(u string) Tier {
	switch domain.Urgency(u) {
	case domain.UrgencyHigh:
		return TierHigh
	case domain.UrgencyMedium:
		return TierMedium
	case domain.UrgencyLow:
		return TierLow
	}
	return TierUnknown
}

func (t Tier) Label() string {
	switch t {
	case TierHigh:
		return "High"
	case TierMedium:
		return "Medium"
	case TierLow:
		return "Low"
	}
	return Placeholder
}

// EvalBadge renders "Pass • 0.93" style text, or NoRun for a nil evaluation.
func EvalBadge(ev *domain.Evaluation) string {
	if ev == nil {
		return NoRun
	}
	return badge(ev.Passed, fmt.Sprintf("%.2f", ev.Score))
}

// HistoryEval renders the badge for a history row from its partial record.
// A missing or non-numeric score shows as "--"; a missing passed flag counts
// as a failure.
func HistoryEval(rec domain.Record) string {
	passed, _ := rec.Bool("passed")
	score := "--"
	if s, ok := rec.Float("score"); ok {
		score = fmt.Sprintf("%.2f", s)
	}
	return badge(passed, score)
}

func badge(passed bool, score string) string {
	verdict := "Fail"
	if passed {
		verdict = "Pass"
	}
	return verdict + " • " + score
}

// TimestampLayout mirrors a conventional en-US locale rendering.
const TimestampLayout = "1/2/2006, 3:04:05 PM"

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 and the ISO variants a Python backend
// emits (space separator, no zone). Zone-less values are read as UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders raw in loc, or returns raw verbatim when it cannot
// be parsed.
func FormatTimestamp(raw string, loc *time.Location) string {
	t, ok := ParseTimestamp(raw)
	if !ok {
		return raw
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(TimestampLayout)
}

// Age renders raw relative to now ("3 minutes ago"); empty when unparseable.
func Age(raw string, now time.Time) string {
	t, ok := ParseTimestamp(raw)
	if !ok {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Preview keeps the first PreviewLimit characters of text and marks the cut.
func Preview(text string) string {
	r := []rune(text)
	if len(r) <= PreviewLimit {
		return text
	}
	return string(r[:PreviewLimit]) + Ellipsis
}

// Citations returns one tag per citation in the given order, or a single
// Placeholder when there are none. Duplicates are kept as sent.
func Citations(c []string) []string {
	if len(c) == 0 {
		return []string{Placeholder}
	}
	out := make([]string, len(c))
	copy(out, c)
	return out
}

// Row is one line of the run history table.
type Row struct {
	ID      string
	Time    string
	Age     string
	Route   string
	Urgency Tier
	Eval    string
	Ticket  string
	Model   string
}

func HistoryRow(item domain.HistoryItem, loc *time.Location, now time.Time) Row {
	route, ok := item.Decision.String("route")
	if !ok || route == "" {
		route = Placeholder
	}
	urgency, _ := item.Decision.String("urgency")
	return Row{
		ID:      item.ID,
		Time:    FormatTimestamp(item.CreatedAt, loc),
		Age:     Age(item.CreatedAt, now),
		Route:   route,
		Urgency: UrgencyTier(urgency),
		Eval:    HistoryEval(item.Evaluation),
		Ticket:  Preview(item.TicketText),
		Model:   item.ModelVersion,
	}
}

func HistoryRows(items []domain.HistoryItem, loc *time.Location, now time.Time) []Row {
	rows := make([]Row, 0, len(items))
	for _, it := range items {
		rows = append(rows, HistoryRow(it, loc, now))
	}
	return rows
}

// Summary is the decision panel for a completed run.
type Summary struct {
	RunID         string
	Action        string
	Route         string
	Urgency       Tier
	Confidence    string
	Citations     []string
	Sources       string
	Eval          string
	Passed        bool
	Reasons       []string
	DraftResponse string
	Issues        []string
	NoIssues      bool
	SuggestedFix  string
}

func Summarize(res domain.DecisionResult) Summary {
	d, ev := res.Decision, res.Evaluation
	return Summary{
		RunID:         res.RunID,
		Action:        string(d.Action),
		Route:         string(d.Route),
		Urgency:       UrgencyTier(string(d.Urgency)),
		Confidence:    fmt.Sprintf("%.2f", d.Confidence),
		Citations:     Citations(d.Citations),
		Sources:       strings.Join(d.Citations, ", "),
		Eval:          EvalBadge(&ev),
		Passed:        ev.Passed,
		Reasons:       d.Reasons,
		DraftResponse: d.DraftResponse,
		Issues:        ev.Issues,
		NoIssues:      len(ev.Issues) == 0,
		SuggestedFix:  ev.SuggestedFix,
	}
}

// Model is everything a front end renders for one engine snapshot.
type Model struct {
	Text       string
	CanDecide  bool
	Deciding   bool
	Refreshing bool
	// Error is the decide failure, if any. History failures never appear.
	Error   string
	Badge   string
	Summary *Summary
	Rows    []Row
}

func Project(s engine.Snapshot, loc *time.Location, now time.Time) Model {
	m := Model{
		Text:       s.Text,
		CanDecide:  s.CanDecide,
		Deciding:   s.Decide.Loading(),
		Refreshing: s.History.Loading(),
		Error:      s.Decide.VisibleErr(),
		Badge:      NoRun,
		Rows:       HistoryRows(s.Items, loc, now),
	}
	if res, ok := s.Decide.Get(); ok {
		sum := Summarize(res)
		m.Summary = &sum
		m.Badge = sum.Eval
	}
	return m
}
