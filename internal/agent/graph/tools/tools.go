package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/pdfchat-core/server/internal/agent/model"
	"github.com/pdfchat-core/server/internal/retrieval"
	logx "github.com/pdfchat-core/server/pkg/logger"
)

const (
	ToolRetrieve  = "retrieve"
	ToolWebSearch = "web_search"
	ToolListDocs  = "list_docs"
)

// Retriever is the retrieval gateway surface the tools depend on.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) ([]model.RetrievedPassage, error)
	HasDocuments() bool
}

// DocumentLister enumerates registered documents.
type DocumentLister interface {
	ListDocuments() ([]model.Document, error)
}

// Deps wires the collaborators the toolset needs.
type Deps struct {
	Retriever Retriever
	Docs      DocumentLister
	Web       WebSearchConfig
}

// textTool is a tool whose result is plain text rather than JSON.
type textTool struct {
	info *schema.ToolInfo
	run  func(ctx context.Context, argumentsInJSON string) (string, error)
}

func (t *textTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *textTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	return t.run(ctx, argumentsInJSON)
}

var _ tool.InvokableTool = (*textTool)(nil)

// Set is the closed tool registry built once at startup.
type Set struct {
	order  []tool.InvokableTool
	byName map[string]tool.InvokableTool
}

// New builds the registry: retrieve, web_search and list_docs. The web
// search tool is always registered; when disabled it answers with an
// explanatory message instead of touching the network.
func New(deps Deps) *Set {
	s := &Set{byName: make(map[string]tool.InvokableTool)}
	for _, t := range []tool.InvokableTool{
		newRetrieveTool(deps.Retriever),
		newWebSearchTool(deps.Web),
		newListDocsTool(deps.Docs),
	} {
		info, err := t.Info(context.Background())
		if err != nil || info == nil {
			continue
		}
		s.order = append(s.order, t)
		s.byName[info.Name] = t
	}
	return s
}

// Resolve looks a tool up by name.
func (s *Set) Resolve(name string) (tool.InvokableTool, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Infos returns the tool schemas for model binding.
func (s *Set) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(s.order))
	for _, t := range s.order {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Invoke executes a named tool with the model-supplied arguments. The
// result is always text: unknown tools, malformed arguments and tool
// failures all degrade to an explanatory string, never an error.
func (s *Set) Invoke(ctx context.Context, name, rawArgs string, scope *model.DocumentScope) string {
	t, ok := s.byName[name]
	if !ok {
		logx.Warn().Str("tool", name).Msg("unknown tool requested")
		return fmt.Sprintf("tool %q not found", name)
	}

	args := coerceArgs(rawArgs)
	injectScope(name, args, scope)

	b, err := json.Marshal(args)
	if err != nil {
		return "tool error: " + err.Error()
	}

	result, err := t.InvokableRun(ctx, string(b))
	if err != nil {
		logx.Warn().Err(err).Str("tool", name).Msg("tool invocation failed")
		return "tool error: " + err.Error()
	}
	return result
}

// coerceArgs parses the serialized arguments into a map. Anything that is
// not a JSON object becomes a single free-form query argument.
func coerceArgs(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{"query": raw}
	}
	return m
}

// injectScope forces the document scope onto retrieval-facing calls so
// the model cannot reach outside the bound document, whatever arguments
// it supplied.
func injectScope(name string, args map[string]any, scope *model.DocumentScope) {
	if scope == nil {
		return
	}
	switch name {
	case ToolRetrieve:
		if scope.ID != "" {
			args["doc_id"] = scope.ID
		}
		if scope.Filename != "" {
			args["source"] = scope.Filename
			args["source_exact"] = true
		}
	case ToolListDocs:
		if scope.Filename != "" {
			args["filter"] = filepath.Base(scope.Filename)
		}
	}
}
