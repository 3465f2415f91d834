package server

import (
	"testing"

	"sentinel/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		text    string
		route   domain.Route
		urgency domain.Urgency
		action  domain.Action
	}{
		{sampleTicket, domain.RouteBilling, domain.UrgencyHigh, domain.ActionRoute},
		{"The dashboard is down and every request returns error 500", domain.RouteTech, domain.UrgencyHigh, domain.ActionEscalate},
		{"I forgot my password and my account is locked, can't login", domain.RouteAccount, domain.UrgencyLow, domain.ActionAutoResolve},
		{"Could you send a quote for the enterprise plan?", domain.RouteSales, domain.UrgencyLow, domain.ActionRoute},
		{"Just wanted to say hello to the team", domain.RouteOther, domain.UrgencyLow, domain.ActionEscalate},
	}
	for _, tc := range cases {
		d := Classify(tc.text)
		if d.Route != tc.route || d.Urgency != tc.urgency || d.Action != tc.action {
			t.Fatalf("Classify(%q) = %s/%s/%s, want %s/%s/%s", tc.text, d.Route, d.Urgency, d.Action, tc.route, tc.urgency, tc.action)
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			t.Fatalf("confidence out of range: %v", d.Confidence)
		}
		if len(d.Reasons) == 0 || d.DraftResponse == "" {
			t.Fatalf("decision missing reasons or draft: %+v", d)
		}
	}
}

func TestEvaluate(t *testing.T) {
	ev := Evaluate(sampleTicket, Classify(sampleTicket))
	if !ev.Passed || ev.Score != 1 || len(ev.Issues) != 0 || ev.SuggestedFix != "" {
		t.Fatalf("sample ticket evaluation %+v", ev)
	}
	text := "hello there"
	ev = Evaluate(text, Classify(text))
	if ev.Passed || len(ev.Issues) == 0 || ev.SuggestedFix == "" {
		t.Fatalf("weak ticket evaluation %+v", ev)
	}
	if ev.Score >= 1 {
		t.Fatalf("score = %v", ev.Score)
	}
}
