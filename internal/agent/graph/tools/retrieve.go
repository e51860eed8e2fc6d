package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/pdfchat-core/server/internal/retrieval"
)

type retrieveArgs struct {
	Query       string `json:"query"`
	K           int    `json:"k"`
	DocID       string `json:"doc_id"`
	Source      string `json:"source"`
	SourceExact bool   `json:"source_exact"`
}

func newRetrieveTool(r Retriever) *textTool {
	info := &schema.ToolInfo{
		Name: ToolRetrieve,
		Desc: "Search the indexed documents for passages relevant to a query. " +
			"Returns the best matching excerpts with their source filenames.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "What to look for in the documents",
				Required: true,
			},
			"k": {
				Type: schema.Integer,
				Desc: "How many passages to return",
			},
			"source": {
				Type: schema.String,
				Desc: "Restrict results to documents whose filename contains this value",
			},
		}),
	}

	return &textTool{
		info: info,
		run: func(ctx context.Context, argumentsInJSON string) (string, error) {
			var args retrieveArgs
			if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
				return "", fmt.Errorf("parse arguments: %w", err)
			}

			q := retrieval.Query{
				Text: args.Query,
				K:    args.K,
				Scope: retrieval.Scope{
					DocID:  args.DocID,
					Source: args.Source,
					Exact:  args.SourceExact,
				},
			}

			passages, err := r.Retrieve(ctx, q)
			if err != nil {
				return "", err
			}
			if len(passages) == 0 {
				if !r.HasDocuments() {
					return retrieval.NoDocumentsMessage, nil
				}
				if q.Scope.DocID != "" || q.Scope.Source != "" {
					return retrieval.NoScopeMatchMessage, nil
				}
				return retrieval.NoMatchesMessage, nil
			}
			return retrieval.FormatPassages(passages), nil
		},
	}
}
