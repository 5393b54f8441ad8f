package triage

import "strings"

// keywordRule maps trigger substrings to a label. Rules are evaluated in
// order and the first match wins, so emergency rules must come first.
type keywordRule struct {
	label    string
	keywords []string
}

var routeRules = []keywordRule{
	{RouteEmergency, []string{
		"emergency", "chest pain", "can't breathe", "cannot breathe", "not breathing",
		"unconscious", "severe bleeding", "bleeding heavily", "overdose", "suicide",
		"stroke", "heart attack", "seizure", "anaphyla", "ambulance", "999", "911",
	}},
	{RoutePersonal, []string{
		"my order", "order history", "my profile", "my account", "my medication",
		"my medications", "my allergies", "my conditions", "my prescriptions",
		"update my", "my summary", "my history", "place an order", "reorder",
	}},
	{RouteFAQ, []string{
		"what is", "what are your", "how does", "how do i", "opening hours",
		"who are you", "tell me about your", "how can i contact",
	}},
}

var severityRules = []keywordRule{
	{SeverityCritical, []string{
		"chest pain", "can't breathe", "cannot breathe", "not breathing", "unconscious",
		"severe bleeding", "overdose", "suicide", "stroke", "heart attack", "seizure",
		"anaphyla",
	}},
	{SeverityHigh, []string{
		"severe", "intense", "unbearable", "worst", "blood", "fainted", "faint",
		"emergency", "collapsed", "spreading fast",
	}},
	{SeverityMedium, []string{
		"fever", "vomit", "persistent", "getting worse", "worsening", "spreading",
		"infection", "swollen", "dizzy",
	}},
}

func matchRules(rules []keywordRule, text, fallback string) string {
	lowered := strings.ToLower(text)
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.label
			}
		}
	}
	return fallback
}

// classifyRouteByKeywords routes a query without model assistance. Anything
// that is not an emergency, a personal-data request, or a definitional
// question goes to the clinical agent.
func classifyRouteByKeywords(query string) string {
	return matchRules(routeRules, query, RouteClinical)
}

// classifySeverityByKeywords grades a query without model assistance,
// defaulting to medium rather than low when nothing matches.
func classifySeverityByKeywords(query string) string {
	return matchRules(severityRules, query, SeverityMedium)
}

func validRoute(s string) bool {
	switch s {
	case RouteClinical, RouteEmergency, RoutePersonal, RouteFAQ:
		return true
	}
	return false
}

func validSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// severityAtLeast reports whether a is at least as urgent as b.
func severityAtLeast(a, b string) bool {
	rank := map[string]int{SeverityLow: 0, SeverityMedium: 1, SeverityHigh: 2, SeverityCritical: 3}
	return rank[a] >= rank[b]
}
