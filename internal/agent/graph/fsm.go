package graph

// State names a phase of one conversation turn.
type State int

const (
	StateRouter State = iota
	StateAgent
	StateTools
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateRouter:
		return "router"
	case StateAgent:
		return "agent"
	case StateTools:
		return "tools"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Event is the outcome a state reports after running.
type Event int

const (
	// EventRouted means the router picked a route.
	EventRouted Event = iota
	// EventToolRequests means the agent asked for tool executions, or a
	// scoped turn still owes its forced retrieval.
	EventToolRequests
	// EventAnswered means the agent produced a final answer.
	EventAnswered
	// EventToolsDone means tool results were appended and the agent
	// should run again.
	EventToolsDone
	// EventAborted means the turn short-circuited with a fixed answer.
	EventAborted
)

func (e Event) String() string {
	switch e {
	case EventRouted:
		return "routed"
	case EventToolRequests:
		return "tool_requests"
	case EventAnswered:
		return "answered"
	case EventToolsDone:
		return "tools_done"
	case EventAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Next is the turn state machine. It is a pure function of the current
// state and the event it reported.
func Next(s State, e Event) State {
	if e == EventAborted {
		return StateEnd
	}
	switch s {
	case StateRouter:
		if e == EventRouted {
			return StateAgent
		}
	case StateAgent:
		switch e {
		case EventToolRequests:
			return StateTools
		case EventAnswered:
			return StateEnd
		}
	case StateTools:
		if e == EventToolsDone {
			return StateAgent
		}
	}
	return StateEnd
}
