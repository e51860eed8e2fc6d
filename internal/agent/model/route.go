package model

import "strings"

// Route is the handling strategy selected for a single conversation turn.
type Route string

const (
	RouteDirect  Route = "direct"
	RouteRAG     Route = "rag"
	RouteWeb     Route = "web"
	RouteClarify Route = "clarify"
)

// Valid reports whether the route is one of the known handling strategies.
func (r Route) Valid() bool {
	switch r {
	case RouteDirect, RouteRAG, RouteWeb, RouteClarify:
		return true
	}
	return false
}

// ParseRoute normalises a raw classifier label into a Route.
func ParseRoute(s string) (Route, bool) {
	r := Route(strings.ToLower(strings.TrimSpace(s)))
	if r.Valid() {
		return r, true
	}
	return "", false
}

// RouteDecision is the outcome of routing a turn. Reason is advisory text
// for logs and debugging only; it is never parsed.
type RouteDecision struct {
	Route  Route  `json:"route"`
	Reason string `json:"reason"`
}

// ContextFlags carries the per-turn signals the router inspects before
// consulting the classifier model.
type ContextFlags struct {
	GlobalRAG     bool
	DocumentScope bool
}

// Forced reports whether the flags mandate the retrieval route without a
// classifier call.
func (f ContextFlags) Forced() bool {
	return f.GlobalRAG || f.DocumentScope
}
