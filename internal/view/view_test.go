package view

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"sentinel/internal/domain"
	"sentinel/internal/engine"
	"sentinel/internal/state"
)

func TestUrgencyTier(t *testing.T) {
	cases := map[string]Tier{
		"high":   TierHigh,
		"medium": TierMedium,
		"low":    TierLow,
		"":       TierUnknown,
		"HIGH":   TierUnknown,
		"urgent": TierUnknown,
	}
	for in, want := range cases {
		if got := UrgencyTier(in); got != want {
			t.Fatalf("UrgencyTier(%q) = %s, want %s", in, got, want)
		}
	}
	if TierUnknown.Label() != Placeholder || TierHigh.Label() != "High" {
		t.Fatalf("labels: %q %q", TierUnknown.Label(), TierHigh.Label())
	}
}

func TestEvalBadge(t *testing.T) {
	if got := EvalBadge(nil); got != NoRun {
		t.Fatalf("nil badge = %q", got)
	}
	if got := EvalBadge(&domain.Evaluation{Passed: true, Score: 0.93}); got != "Pass • 0.93" {
		t.Fatalf("pass badge = %q", got)
	}
	if got := EvalBadge(&domain.Evaluation{Passed: false, Score: 0.4}); got != "Fail • 0.40" {
		t.Fatalf("fail badge = %q", got)
	}
}

func TestHistoryEvalPartialRecord(t *testing.T) {
	if got := HistoryEval(domain.Record{"passed": true, "score": 0.8}); got != "Pass • 0.80" {
		t.Fatalf("badge = %q", got)
	}
	if got := HistoryEval(domain.Record{"passed": true, "score": "high"}); got != "Pass • --" {
		t.Fatalf("non-numeric score badge = %q", got)
	}
	if got := HistoryEval(nil); got != "Fail • --" {
		t.Fatalf("empty record badge = %q", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := FormatTimestamp("2024-05-01T14:03:09Z", time.UTC); got != "5/1/2024, 2:03:09 PM" {
		t.Fatalf("rfc3339 = %q", got)
	}
	if got := FormatTimestamp("2024-05-01T14:03:09.123456", time.UTC); got != "5/1/2024, 2:03:09 PM" {
		t.Fatalf("zone-less iso = %q", got)
	}
	for _, raw := range []string{"yesterday-ish", "", "2024-13-45T99:00:00Z", "  not a date  "} {
		if got := FormatTimestamp(raw, time.UTC); got != raw {
			t.Fatalf("FormatTimestamp(%q) = %q, want raw value", raw, got)
		}
	}
}

func TestAge(t *testing.T) {
	now := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	if got := Age("2024-05-01T14:00:00Z", now); got != "1 hour ago" {
		t.Fatalf("age = %q", got)
	}
	if got := Age("garbage", now); got != "" {
		t.Fatalf("age of garbage = %q", got)
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("a", 150)
	got := Preview(long)
	if got != strings.Repeat("a", 120)+Ellipsis {
		t.Fatalf("preview of 150 chars = %q", got)
	}
	short := strings.Repeat("b", 90)
	if Preview(short) != short {
		t.Fatalf("preview of 90 chars altered")
	}
	exact := strings.Repeat("c", 120)
	if Preview(exact) != exact {
		t.Fatalf("preview of exactly 120 chars altered")
	}
	multi := strings.Repeat("é", 130)
	if n := utf8.RuneCountInString(strings.TrimSuffix(Preview(multi), Ellipsis)); n != 120 {
		t.Fatalf("multibyte preview kept %d characters", n)
	}
}

func TestCitations(t *testing.T) {
	if got := Citations(nil); len(got) != 1 || got[0] != Placeholder {
		t.Fatalf("empty citations = %v", got)
	}
	in := []string{"b.md", "a.md", "b.md"}
	got := Citations(in)
	if strings.Join(got, ",") != "b.md,a.md,b.md" {
		t.Fatalf("citations reordered or deduped: %v", got)
	}
	got[0] = "changed"
	if in[0] != "b.md" {
		t.Fatalf("Citations aliased its input")
	}
}

func TestHistoryRow(t *testing.T) {
	item := domain.HistoryItem{
		ID:           "h1",
		TicketText:   strings.Repeat("x", 130),
		Decision:     domain.Record{"urgency": "medium"},
		Evaluation:   domain.Record{"passed": false, "score": 0.25},
		ModelVersion: "stub-v1",
		CreatedAt:    "not-a-time",
	}
	row := HistoryRow(item, time.UTC, time.Now())
	if row.Route != Placeholder {
		t.Fatalf("route = %q", row.Route)
	}
	if row.Urgency != TierMedium {
		t.Fatalf("urgency = %s", row.Urgency)
	}
	if row.Time != "not-a-time" || row.Age != "" {
		t.Fatalf("time = %q age = %q", row.Time, row.Age)
	}
	if row.Eval != "Fail • 0.25" {
		t.Fatalf("eval = %q", row.Eval)
	}
	if !strings.HasSuffix(row.Ticket, Ellipsis) {
		t.Fatalf("ticket not truncated: %q", row.Ticket)
	}
}

func TestProject(t *testing.T) {
	slot := state.NewSlot[domain.DecisionResult](state.Surface)
	gen := slot.Begin()
	slot.Succeed(gen, domain.DecisionResult{
		RunID: "r-1",
		Decision: domain.Decision{
			Action:     domain.ActionEscalate,
			Route:      domain.RouteTech,
			Urgency:    domain.UrgencyHigh,
			Confidence: 0.5,
		},
		Evaluation: domain.Evaluation{Passed: true, Score: 1},
	})
	hist := state.NewSlot[[]domain.HistoryItem](state.Absorb)
	hgen := hist.Begin()
	hist.Fail(hgen, "HISTORY_FAILED: History fetch failed")

	m := Project(engine.Snapshot{
		Text:    "server down",
		Decide:  slot.State(),
		History: hist.State(),
	}, time.UTC, time.Now())
	if m.Summary == nil || m.Summary.RunID != "r-1" {
		t.Fatalf("summary = %+v", m.Summary)
	}
	if m.Badge != "Pass • 1.00" {
		t.Fatalf("badge = %q", m.Badge)
	}
	if m.Summary.Citations[0] != Placeholder || !m.Summary.NoIssues {
		t.Fatalf("summary placeholders %+v", m.Summary)
	}
	if m.Error != "" {
		t.Fatalf("absorbed history error surfaced: %q", m.Error)
	}

	empty := Project(engine.Snapshot{}, time.UTC, time.Now())
	if empty.Summary != nil || empty.Badge != NoRun {
		t.Fatalf("empty projection %+v", empty)
	}
}
