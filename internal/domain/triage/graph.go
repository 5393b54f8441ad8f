package triage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/carebridge/carebridge/internal/domain/communication"
)

// Node is one step of the conversation graph. Nodes read the state and
// return a Patch; only the runner applies patches, in node order.
type Node interface {
	Name() string
	Run(ctx context.Context, state *State) (Patch, error)
}

// Graph is the fixed conversation topology: supervisor grades the route,
// the severity grader assigns urgency, then exactly one agent runs. The
// topology is wired once at startup and never changes per request.
type Graph struct {
	supervisor Node
	severity   Node
	agents     map[string]Node
	logger     zerolog.Logger
}

func NewGraph(supervisor, severity Node, agents map[string]Node, logger zerolog.Logger) (*Graph, error) {
	for _, route := range []string{RouteClinical, RouteEmergency, RoutePersonal, RouteFAQ} {
		if _, ok := agents[route]; !ok {
			return nil, fmt.Errorf("no agent registered for route %q", route)
		}
	}
	return &Graph{supervisor: supervisor, severity: severity, agents: agents, logger: logger}, nil
}

// Run executes the graph on the state. Node errors abort the run; fallbacks
// for flaky upstreams live inside the nodes themselves.
func (g *Graph) Run(ctx context.Context, state *State) error {
	for _, node := range []Node{g.supervisor, g.severity} {
		patch, err := node.Run(ctx, state)
		if err != nil {
			return fmt.Errorf("node %s: %w", node.Name(), err)
		}
		state.Apply(patch)
	}

	agent, ok := g.agents[state.Route]
	if !ok {
		g.logger.Warn().Str("route", state.Route).Msg("unknown route, falling back to clinical agent")
		agent = g.agents[RouteClinical]
	}
	patch, err := agent.Run(ctx, state)
	if err != nil {
		return fmt.Errorf("node %s: %w", agent.Name(), err)
	}
	state.Apply(patch)
	return nil
}

// shouldNotifyDoctor decides whether this exchange triggers a doctor alert:
// every emergency, and clinical exchanges graded high or critical.
func shouldNotifyDoctor(state *State) bool {
	if state.Route == RouteEmergency {
		return true
	}
	return state.Route == RouteClinical && severityAtLeast(state.Severity, SeverityHigh)
}

// formatHistory renders the last n turns for inclusion in a prompt.
func formatHistory(history []*communication.ChatMessage, turns int) string {
	if len(history) == 0 {
		return "(none)\n"
	}
	start := len(history) - turns
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, msg := range history[start:] {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	return b.String()
}
