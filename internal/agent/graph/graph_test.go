package graph

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/pdfchat-core/server/internal/core/error"

	"github.com/pdfchat-core/server/internal/agent/graph/conversations"
	"github.com/pdfchat-core/server/internal/agent/graph/nodes"
	"github.com/pdfchat-core/server/internal/agent/graph/tools"
	"github.com/pdfchat-core/server/internal/agent/model"
	"github.com/pdfchat-core/server/internal/agent/repo"
	"github.com/pdfchat-core/server/internal/docstore"
	"github.com/pdfchat-core/server/internal/retrieval"
)

type fakeModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	err       error
	calls     int
}

func (f *fakeModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return schema.AssistantMessage("out of scripted responses", nil), nil
	}
	out := f.responses[0]
	f.responses = f.responses[1:]
	return out, nil
}

type fakeRetriever struct {
	mu       sync.Mutex
	passages []model.RetrievedPassage
	hasDocs  bool
	queries  []retrieval.Query
}

func (f *fakeRetriever) Retrieve(ctx context.Context, q retrieval.Query) ([]model.RetrievedPassage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.passages, nil
}

func (f *fakeRetriever) HasDocuments() bool { return f.hasDocs }

type fakeDocs struct {
	byID map[string]string
}

func (f *fakeDocs) ResolveFilename(id string) (string, error) {
	name, ok := f.byID[id]
	if !ok {
		return "", docstore.ErrUnknownDocument
	}
	return name, nil
}

func (f *fakeDocs) ListDocuments() ([]model.Document, error) {
	var docs []model.Document
	for id, name := range f.byID {
		docs = append(docs, model.Document{ID: id, Filename: name})
	}
	return docs, nil
}

type engineFixture struct {
	engine    *Engine
	router    *fakeModel
	agent     *fakeModel
	retriever *fakeRetriever
	store     *repo.MemoryCheckpointStore
}

func newEngineFixture(routerModel, agentModel *fakeModel, retriever *fakeRetriever, docs *fakeDocs) *engineFixture {
	store := repo.NewMemoryCheckpointStore()
	toolset := tools.New(tools.Deps{
		Retriever: retriever,
		Docs:      docs,
		Web:       tools.WebSearchConfig{Enabled: false, MaxResults: 5},
	})
	e := &Engine{
		router:          NewRouter(routerModel, retriever.HasDocuments),
		agent:           nodes.NewAgentNode(agentModel, "fake-model"),
		toolset:         toolset,
		mm:              conversations.NewMessagesManager(store),
		retriever:       retriever,
		docs:            docs,
		maxIterations:   8,
		scopedMaxRounds: 1,
		threads:         make(map[string]*sync.Mutex),
	}
	return &engineFixture{engine: e, router: routerModel, agent: agentModel, retriever: retriever, store: store}
}

func routeMessage(route string) *schema.Message {
	return schema.AssistantMessage(`{"route": "`+route+`", "reason": "test"}`, nil)
}

func toolCallMessage(name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call-1",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

func TestRunDirectTurn(t *testing.T) {
	fx := newEngineFixture(
		&fakeModel{responses: []*schema.Message{routeMessage("direct")}},
		&fakeModel{responses: []*schema.Message{schema.AssistantMessage("hi there", nil)}},
		&fakeRetriever{},
		&fakeDocs{},
	)

	answer, err := fx.engine.Run(context.Background(), model.TurnInput{ThreadID: "t1", Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", answer)

	st, err := fx.store.LoadState(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, st.Messages, 2)
	assert.Equal(t, schema.User, st.Messages[0].Role)
	assert.Equal(t, schema.Assistant, st.Messages[1].Role)
}

func TestRunRouterFailureFallsOpenToDirect(t *testing.T) {
	fx := newEngineFixture(
		&fakeModel{err: errors.New("classifier down")},
		&fakeModel{responses: []*schema.Message{schema.AssistantMessage("still answering", nil)}},
		&fakeRetriever{},
		&fakeDocs{},
	)

	answer, err := fx.engine.Run(context.Background(), model.TurnInput{ThreadID: "t1", Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "still answering", answer)
}

func TestRunDirectRouteIgnoresToolCalls(t *testing.T) {
	retriever := &fakeRetriever{hasDocs: true}
	fx := newEngineFixture(
		&fakeModel{responses: []*schema.Message{routeMessage("direct")}},
		&fakeModel{responses: []*schema.Message{
			toolCallMessage(tools.ToolRetrieve, `{"query": "anything"}`),
		}},
		retriever,
		&fakeDocs{},
	)

	_, err := fx.engine.Run(context.Background(), model.TurnInput{ThreadID: "t1", Message: "hello"})
	require.NoError(t, err)
	assert.Empty(t, retriever.queries)
	assert.Equal(t, 1, fx.agent.calls)
}

func TestRunUnscopedToolLoop(t *testing.T) {
	retriever := &fakeRetriever{hasDocs: true, passages: []model.RetrievedPassage{
		{Source: "report.pdf", Rank: 1, Text: "revenue grew 12%"},
	}}
	fx := newEngineFixture(
		&fakeModel{responses: []*schema.Message{routeMessage("rag")}},
		&fakeModel{responses: []*schema.Message{
			toolCallMessage(tools.ToolRetrieve, `{"query": "revenue"}`),
			schema.AssistantMessage("revenue grew 12% (report.pdf)", nil),
		}},
		retriever,
		&fakeDocs{},
	)

	answer, err := fx.engine.Run(context.Background(), model.TurnInput{ThreadID: "t1", Message: "how did revenue do?"})
	require.NoError(t, err)
	assert.Equal(t, "revenue grew 12% (report.pdf)", answer)
	assert.Equal(t, 2, fx.agent.calls)

	st, err := fx.store.LoadState(context.Background(), "t1")
	require.NoError(t, err)
	// user, assistant tool request, tool result, final answer
	require.Len(t, st.Messages, 4)
	assert.Equal(t, schema.Tool, st.Messages[2].Role)
	assert.Contains(t, st.Messages[2].Content, "revenue grew 12%")
}

func TestRunScopedTurnForcesRetrieval(t *testing.T) {
	retriever := &fakeRetriever{hasDocs: true, passages: []model.RetrievedPassage{
		{Source: "report.pdf", Rank: 1, Text: "the scoped passage"},
	}}
	router := &fakeModel{err: errors.New("must not be called")}
	fx := newEngineFixture(
		router,
		&fakeModel{responses: []*schema.Message{
			schema.AssistantMessage("ungrounded guess", nil),
			schema.AssistantMessage("grounded answer", nil),
		}},
		retriever,
		&fakeDocs{byID: map[string]string{"doc-1": "report.pdf"}},
	)

	answer, err := fx.engine.Run(context.Background(), model.TurnInput{
		ThreadID:   "t1",
		Message:    "what does it say?",
		DocumentID: "doc-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "grounded answer", answer)
	assert.Equal(t, 0, fx.router.calls)

	// prefetch plus the forced retrieve, both pinned to the document
	require.GreaterOrEqual(t, len(retriever.queries), 2)
	for _, q := range retriever.queries {
		assert.Equal(t, "doc-1", q.Scope.DocID)
		assert.Equal(t, "report.pdf", q.Scope.Source)
		assert.True(t, q.Scope.Exact)
	}

	st, err := fx.store.LoadState(context.Background(), "t1")
	require.NoError(t, err)
	var foundForced bool
	for _, m := range st.Messages {
		if m.Role == schema.Tool && m.ToolCallID == forcedRetrieveCallID {
			foundForced = true
			assert.Contains(t, m.Content, "the scoped passage")
		}
	}
	assert.True(t, foundForced)
}

func TestRunScopedZeroHitShortCircuits(t *testing.T) {
	retriever := &fakeRetriever{hasDocs: true}
	fx := newEngineFixture(
		&fakeModel{},
		&fakeModel{responses: []*schema.Message{
			schema.AssistantMessage("a guess", nil),
		}},
		retriever,
		&fakeDocs{byID: map[string]string{"doc-1": "report.pdf"}},
	)

	answer, err := fx.engine.Run(context.Background(), model.TurnInput{
		ThreadID:   "t1",
		Message:    "anything about unicorns?",
		DocumentID: "doc-1",
	})
	require.NoError(t, err)
	assert.Equal(t, retrieval.NoScopeMatchMessage, answer)
	assert.Equal(t, 1, fx.agent.calls)
}

func TestRunUnknownDocumentRunsUnscoped(t *testing.T) {
	retriever := &fakeRetriever{hasDocs: true, passages: []model.RetrievedPassage{
		{Source: "other.pdf", Rank: 1, Text: "some passage"},
	}}
	fx := newEngineFixture(
		&fakeModel{err: errors.New("must not be called")},
		&fakeModel{responses: []*schema.Message{
			toolCallMessage(tools.ToolRetrieve, `{"query": "x"}`),
			schema.AssistantMessage("answer from all docs", nil),
		}},
		retriever,
		&fakeDocs{},
	)

	answer, err := fx.engine.Run(context.Background(), model.TurnInput{
		ThreadID:   "t1",
		Message:    "question",
		DocumentID: "missing",
	})
	require.NoError(t, err)
	assert.Equal(t, "answer from all docs", answer)
	// the doc id forces the retrieval route, so the classifier is skipped
	assert.Equal(t, 0, fx.router.calls)
	// and with no resolvable scope the search stays unrestricted
	require.NotEmpty(t, retriever.queries)
	assert.Empty(t, retriever.queries[0].Scope.DocID)
}

func TestRunValidation(t *testing.T) {
	fx := newEngineFixture(&fakeModel{}, &fakeModel{}, &fakeRetriever{}, &fakeDocs{})

	_, err := fx.engine.Run(context.Background(), model.TurnInput{Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errx.StatusOf(err))

	_, err = fx.engine.Run(context.Background(), model.TurnInput{ThreadID: "t1", Message: "  "})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errx.StatusOf(err))
}

func TestRunModelErrorPersistsUserMessage(t *testing.T) {
	fx := newEngineFixture(
		&fakeModel{responses: []*schema.Message{routeMessage("direct")}},
		&fakeModel{err: errors.New("provider down")},
		&fakeRetriever{},
		&fakeDocs{},
	)

	_, err := fx.engine.Run(context.Background(), model.TurnInput{ThreadID: "t1", Message: "hello"})
	require.Error(t, err)

	st, err := fx.store.LoadState(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, schema.User, st.Messages[0].Role)
}

func TestRunIterationLimit(t *testing.T) {
	// The agent keeps asking for tools forever, the iteration cap must
	// end the turn anyway.
	agent := &fakeModel{}
	for i := 0; i < 20; i++ {
		agent.responses = append(agent.responses, toolCallMessage(tools.ToolRetrieve, `{"query": "again"}`))
	}
	retriever := &fakeRetriever{hasDocs: true, passages: []model.RetrievedPassage{
		{Source: "a.pdf", Rank: 1, Text: "x"},
	}}
	fx := newEngineFixture(
		&fakeModel{responses: []*schema.Message{routeMessage("rag")}},
		agent,
		retriever,
		&fakeDocs{},
	)

	_, err := fx.engine.Run(context.Background(), model.TurnInput{ThreadID: "t1", Message: "loop"})
	require.NoError(t, err)
	assert.Equal(t, fx.engine.maxIterations, fx.agent.calls)
}
