package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	errx "github.com/pdfchat-core/server/internal/core/error"

	"github.com/pdfchat-core/server/internal/agent/graph/conversations"
	"github.com/pdfchat-core/server/internal/agent/graph/nodes"
	"github.com/pdfchat-core/server/internal/agent/graph/observers"
	"github.com/pdfchat-core/server/internal/agent/graph/prompts"
	"github.com/pdfchat-core/server/internal/agent/graph/tools"
	"github.com/pdfchat-core/server/internal/agent/model"
	"github.com/pdfchat-core/server/internal/docstore"
	"github.com/pdfchat-core/server/internal/retrieval"
	logx "github.com/pdfchat-core/server/pkg/logger"
)

// forcedRetrieveCallID marks the synthetic retrieval injected when a
// scoped turn finished its first step without calling any tool.
const forcedRetrieveCallID = "auto-retrieve"

// DocumentResolver maps document ids to filenames and enumerates the
// registered documents.
type DocumentResolver interface {
	ResolveFilename(id string) (string, error)
	ListDocuments() ([]model.Document, error)
}

// Config holds everything needed to build a conversation engine.
type Config struct {
	APIKey       string
	BaseURL      string
	RouterModel  model.RouterModelConfig
	AgentModel   model.AgentModelConfig
	Conversation model.ConversationConfig
	Timeouts     model.TimeoutConfig
	WebSearch    tools.WebSearchConfig

	Repo      model.CheckpointRepository
	Retriever tools.Retriever
	Docs      DocumentResolver
}

// Engine drives one conversation turn through the router, agent and
// tool states. Turns on the same thread are serialized.
type Engine struct {
	router  *Router
	agent   *nodes.AgentNode
	toolset *tools.Set
	mm      *conversations.MessagesManager

	retriever tools.Retriever
	docs      DocumentResolver

	maxIterations   int
	scopedMaxRounds int
	timeouts        model.TimeoutConfig

	mu      sync.Mutex
	threads map[string]*sync.Mutex
}

// BuildEngine constructs the chat models, binds the toolset and wires
// the engine together.
func BuildEngine(ctx context.Context, cfg Config) (*Engine, error) {
	chatModels, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		RouterCfg: &cfg.RouterModel,
		AgentCfg:  &cfg.AgentModel,
	})
	if err != nil {
		return nil, err
	}

	toolset := tools.New(tools.Deps{
		Retriever: cfg.Retriever,
		Docs:      cfg.Docs,
		Web:       cfg.WebSearch,
	})
	infos, err := toolset.Infos(ctx)
	if err != nil {
		return nil, err
	}
	if err := chatModels.BindToolsToAgentModel(ctx, infos); err != nil {
		return nil, err
	}

	return &Engine{
		router:          NewRouter(chatModels.Router, cfg.Retriever.HasDocuments),
		agent:           nodes.NewAgentNode(chatModels.Agent, chatModels.AgentModelName),
		toolset:         toolset,
		mm:              conversations.NewMessagesManager(cfg.Repo),
		retriever:       cfg.Retriever,
		docs:            cfg.Docs,
		maxIterations:   cfg.Conversation.MaxIterations,
		scopedMaxRounds: cfg.Conversation.ScopedMaxRounds,
		timeouts:        cfg.Timeouts,
		threads:         make(map[string]*sync.Mutex),
	}, nil
}

// ClearHistory wipes a thread's conversation.
func (e *Engine) ClearHistory(ctx context.Context, threadID string) error {
	return e.mm.ClearHistory(ctx, threadID)
}

// Run executes one conversation turn and returns the assistant answer.
func (e *Engine) Run(ctx context.Context, in model.TurnInput) (string, error) {
	threadID := strings.TrimSpace(in.ThreadID)
	if threadID == "" {
		return "", errx.New(errors.New("missing thread_id"), http.StatusBadRequest, "thread_id is required")
	}
	if strings.TrimSpace(in.Message) == "" {
		return "", errx.New(errors.New("missing message"), http.StatusBadRequest, "message is required")
	}

	unlock := e.lockThread(threadID)
	defer unlock()

	ctx = observers.Attach(ctx, threadID)

	st, err := e.mm.LoadState(ctx, threadID)
	if err != nil {
		return "", err
	}

	scope := e.resolveScope(in)
	// A supplied doc_id forces the retrieval route even when it cannot
	// be resolved, the question was about a document either way.
	flags := model.ContextFlags{GlobalRAG: in.GlobalRAG, DocumentScope: in.DocumentID != ""}

	turn := &turnRun{
		engine:   e,
		threadID: threadID,
		input:    in,
		scope:    scope,
		flags:    flags,
		history:  append([]*schema.Message{}, st.Messages...),
	}
	turn.appendPending(schema.UserMessage(in.Message))

	answer, runErr := turn.loop(ctx)

	// Persist whatever the turn produced even when it failed, so the
	// next turn sees a consistent history.
	if err := e.mm.PersistTurn(ctx, threadID, scope, in.GlobalRAG, turn.pending); err != nil {
		if runErr == nil {
			return "", err
		}
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to persist turn after run error")
	}
	if runErr != nil {
		return "", runErr
	}
	return answer, nil
}

// resolveScope binds the turn to a document when the boundary supplied
// a known document id. Unknown ids degrade to an unscoped turn.
func (e *Engine) resolveScope(in model.TurnInput) *model.DocumentScope {
	if in.DocumentID == "" {
		return nil
	}
	filename, err := e.docs.ResolveFilename(in.DocumentID)
	if err != nil {
		if errors.Is(err, docstore.ErrUnknownDocument) {
			logx.Warn().Str("doc_id", in.DocumentID).Msg("unknown document id, running unscoped")
		} else {
			logx.Warn().Err(err).Str("doc_id", in.DocumentID).Msg("scope resolution failed, running unscoped")
		}
		return nil
	}
	return &model.DocumentScope{ID: in.DocumentID, Filename: filename}
}

func (e *Engine) lockThread(threadID string) func() {
	e.mu.Lock()
	lock, ok := e.threads[threadID]
	if !ok {
		lock = &sync.Mutex{}
		e.threads[threadID] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// turnRun carries the mutable state of a single turn through the state
// machine.
type turnRun struct {
	engine   *Engine
	threadID string
	input    model.TurnInput
	scope    *model.DocumentScope
	flags    model.ContextFlags

	history []*schema.Message
	pending []*schema.Message

	route      model.Route
	system     *schema.Message
	toolRounds int
	agentSteps int
	answer     string
}

func (t *turnRun) appendPending(msgs ...*schema.Message) {
	t.pending = append(t.pending, msgs...)
	t.history = append(t.history, msgs...)
}

func (t *turnRun) loop(ctx context.Context) (string, error) {
	state := StateRouter
	for state != StateEnd {
		event, err := t.step(ctx, state)
		if err != nil {
			return "", err
		}
		next := Next(state, event)
		logx.Debug().
			Str("thread_id", t.threadID).
			Str("state", state.String()).
			Str("event", event.String()).
			Str("next", next.String()).
			Msg("turn transition")
		state = next
	}

	if t.answer == "" {
		t.answer = lastAssistantContent(t.history)
	}
	return t.answer, nil
}

func (t *turnRun) step(ctx context.Context, state State) (Event, error) {
	switch state {
	case StateRouter:
		return t.runRouter(ctx), nil
	case StateAgent:
		return t.runAgent(ctx)
	case StateTools:
		return t.runTools(ctx), nil
	default:
		return EventAborted, fmt.Errorf("no handler for state %s", state)
	}
}

func (t *turnRun) runRouter(ctx context.Context) Event {
	mctx, cancel := t.engine.modelContext(ctx)
	defer cancel()

	decision := t.engine.router.Decide(mctx, t.flags, t.input.Message)
	t.route = decision.Route
	// Clarification requests are answered directly, there is no
	// dedicated clarify agent.
	if t.route == model.RouteClarify || !t.route.Valid() {
		t.route = model.RouteDirect
	}
	return EventRouted
}

func (t *turnRun) runAgent(ctx context.Context) (Event, error) {
	if t.agentSteps >= t.engine.maxIterations {
		logx.Warn().Str("thread_id", t.threadID).Int("steps", t.agentSteps).Msg("iteration limit reached")
		return EventAnswered, nil
	}
	t.agentSteps++

	if t.system == nil {
		t.system = t.composeSystem(ctx)
	}

	mctx, cancel := t.engine.modelContext(ctx)
	defer cancel()

	out, err := t.engine.agent.Step(mctx, t.system, t.history)
	if err != nil {
		return EventAborted, err
	}
	t.appendPending(out)

	if t.scope != nil {
		// Scoped turns always ground themselves in the document once,
		// then stop after the grounded regeneration.
		if t.toolRounds < t.engine.scopedMaxRounds {
			return EventToolRequests, nil
		}
		return EventAnswered, nil
	}
	if len(out.ToolCalls) > 0 && t.route != model.RouteDirect {
		return EventToolRequests, nil
	}
	return EventAnswered, nil
}

func (t *turnRun) runTools(ctx context.Context) Event {
	t.toolRounds++

	last := t.history[len(t.history)-1]
	if len(last.ToolCalls) == 0 {
		if t.scope == nil {
			return EventToolsDone
		}
		t.appendPending(t.forcedRetrieve(ctx)...)
	} else {
		results := nodes.ExecuteToolCalls(ctx, t.engine.toolset, last.ToolCalls, t.scope, t.engine.timeouts.Tool)
		t.appendPending(results...)
	}

	if t.scope != nil {
		// A scoped retrieval with no hits ends the turn with the
		// sentinel rather than letting the model improvise.
		for i := len(t.history) - 1; i >= 0 && t.history[i].Role == schema.Tool; i-- {
			if t.history[i].Content == retrieval.NoScopeMatchMessage {
				t.answer = retrieval.NoScopeMatchMessage
				return EventAborted
			}
		}
	}
	return EventToolsDone
}

// forcedRetrieve synthesizes a retrieve call and its result so a scoped
// turn is always grounded even when the model never asked for tools.
func (t *turnRun) forcedRetrieve(ctx context.Context) []*schema.Message {
	args := fmt.Sprintf(`{"query": %q}`, t.input.Message)
	request := &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID: forcedRetrieveCallID,
			Function: schema.FunctionCall{
				Name:      tools.ToolRetrieve,
				Arguments: args,
			},
		}},
	}

	tctx := ctx
	if t.engine.timeouts.Tool > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, t.engine.timeouts.Tool)
		defer cancel()
	}
	content := t.engine.toolset.Invoke(tctx, tools.ToolRetrieve, args, t.scope)
	result := schema.ToolMessage(content, forcedRetrieveCallID, schema.WithToolName(tools.ToolRetrieve))

	return []*schema.Message{request, result}
}

// composeSystem builds the system message for the turn's route, with the
// document scope and prefetched excerpts folded in for scoped turns.
func (t *turnRun) composeSystem(ctx context.Context) *schema.Message {
	base := prompts.AgentSystem(t.route)
	if t.scope == nil {
		return base
	}

	var b strings.Builder
	b.WriteString(base.Content)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "The user is currently viewing the document %q. Answer only from this document.", t.scope.Filename)

	if excerpts := t.prefetchExcerpts(ctx); excerpts != "" {
		b.WriteString("\n\nRelevant excerpts from the document:\n\n")
		b.WriteString(excerpts)
	}
	return schema.SystemMessage(b.String())
}

func (t *turnRun) prefetchExcerpts(ctx context.Context) string {
	passages, err := t.engine.retriever.Retrieve(ctx, retrieval.Query{
		Text: t.input.Message,
		Scope: retrieval.Scope{
			DocID:  t.scope.ID,
			Source: t.scope.Filename,
			Exact:  true,
		},
	})
	if err != nil {
		logx.Warn().Err(err).Str("doc_id", t.scope.ID).Msg("scope prefetch failed")
		return ""
	}
	if len(passages) == 0 {
		return ""
	}
	return retrieval.FormatPassages(passages)
}

func (e *Engine) modelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeouts.Model <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.timeouts.Model)
}

func lastAssistantContent(messages []*schema.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m != nil && m.Role == schema.Assistant && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	return ""
}
