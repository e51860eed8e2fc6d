package parsers

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/pdfchat-core/server/internal/agent/model"
)

var ErrNoRoute = errors.New("no route decision in model output")

// ParseRouteDecision extracts the routing decision from raw model output.
// The classifier is asked for a bare JSON object but models routinely wrap
// it in code fences or prose, so we cut the first balanced-looking object
// out of the text before decoding.
func ParseRouteDecision(raw string) (*model.RouteDecision, error) {
	payload := extractJSONObject(stripCodeFences(raw))
	if payload == "" {
		return nil, ErrNoRoute
	}

	var decision model.RouteDecision
	if err := json.Unmarshal([]byte(payload), &decision); err != nil {
		return nil, err
	}

	route, ok := model.ParseRoute(string(decision.Route))
	if !ok {
		return nil, ErrNoRoute
	}
	decision.Route = route
	return &decision, nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
