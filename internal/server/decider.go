package server

import (
	"fmt"
	"math"
	"strings"

	"sentinel/internal/domain"
)

type routeRule struct {
	route    domain.Route
	keywords []string
	source   string
}

// Rules are checked in order; the route with the most keyword hits wins and
// ties go to the earlier rule.
var routeRules = []routeRule{
	{domain.RouteBilling, []string{"charge", "charged", "refund", "invoice", "payment", "billing", "subscription"}, "kb/billing_refunds.md"},
	{domain.RouteTech, []string{"error", "crash", "bug", "outage", "down", "broken", "timeout", "500"}, "kb/tech_incidents.md"},
	{domain.RouteAccount, []string{"password", "login", "log in", "locked", "2fa", "account", "email change"}, "kb/account_access.md"},
	{domain.RouteSales, []string{"pricing", "quote", "upgrade", "plan", "demo", "enterprise"}, "kb/sales_plans.md"},
}

var (
	highUrgency   = []string{"asap", "urgent", "immediately", "outage", "down", "critical", "emergency"}
	mediumUrgency = []string{"soon", "today", "please help", "blocked", "twice"}
)

var drafts = map[domain.Route]string{
	domain.RouteBilling: "Thanks for reaching out. We've located the charge in question and our billing team will review it and issue any refund that is due within 3-5 business days.",
	domain.RouteTech:    "Thanks for the report. Our engineering team is investigating the issue now and we will update you as soon as we have more information.",
	domain.RouteAccount: "Thanks for contacting us. For your security, please use the account recovery link we've sent to your registered email address to regain access.",
	domain.RouteSales:   "Thanks for your interest. A member of our sales team will reach out shortly with plan details and pricing tailored to your needs.",
	domain.RouteOther:   "Thanks for your message. We've passed it to the right team and will get back to you shortly.",
}

// Classify produces a decision for text from keyword matches.
func Classify(text string) domain.Decision {
	lower := strings.ToLower(text)

	route := domain.RouteOther
	var best routeRule
	var hits []string
	for _, rule := range routeRules {
		var matched []string
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > len(hits) {
			route, best, hits = rule.route, rule, matched
		}
	}

	urgency := domain.UrgencyLow
	switch {
	case containsAny(lower, highUrgency):
		urgency = domain.UrgencyHigh
	case containsAny(lower, mediumUrgency):
		urgency = domain.UrgencyMedium
	}

	confidence := math.Min(0.95, 0.45+0.15*float64(len(hits)))
	confidence = math.Round(confidence*100) / 100

	action := domain.ActionRoute
	switch {
	case route == domain.RouteOther:
		action = domain.ActionEscalate
	case route == domain.RouteTech && urgency == domain.UrgencyHigh:
		action = domain.ActionEscalate
	case route == domain.RouteAccount && confidence >= 0.75:
		action = domain.ActionAutoResolve
	}

	reasons := make([]string, 0, len(hits)+1)
	for _, kw := range hits {
		reasons = append(reasons, fmt.Sprintf("ticket mentions %q", kw))
	}
	reasons = append(reasons, fmt.Sprintf("urgency assessed as %s", urgency))

	var citations []string
	if route != domain.RouteOther {
		citations = []string{best.source}
	} else {
		citations = []string{}
	}

	return domain.Decision{
		Action:        action,
		Route:         route,
		Urgency:       urgency,
		Confidence:    confidence,
		Reasons:       reasons,
		DraftResponse: drafts[route],
		Citations:     citations,
	}
}

// Evaluate is the QA pass over a decision.
func Evaluate(text string, d domain.Decision) domain.Evaluation {
	var issues []string
	if d.Confidence < 0.6 {
		issues = append(issues, "routing confidence is below 0.60")
	}
	if len(d.Citations) == 0 {
		issues = append(issues, "draft response is not grounded in any knowledge base article")
	}
	if d.Urgency == domain.UrgencyHigh && d.Action == domain.ActionAutoResolve {
		issues = append(issues, "high urgency ticket was auto-resolved")
	}
	if len(strings.TrimSpace(text)) < 20 {
		issues = append(issues, "ticket text is very short; decision may lack context")
	}

	score := math.Max(0, 1-0.25*float64(len(issues)))
	ev := domain.Evaluation{
		Passed: len(issues) == 0,
		Score:  score,
		Issues: issues,
	}
	if ev.Issues == nil {
		ev.Issues = []string{}
	}
	if !ev.Passed {
		ev.SuggestedFix = "Ask the customer for more detail or escalate to a human agent before sending the draft."
	}
	return ev
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
