package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

const noDocumentsListed = "No documents available."

type listDocsArgs struct {
	Filter string `json:"filter"`
}

func newListDocsTool(docs DocumentLister) *textTool {
	info := &schema.ToolInfo{
		Name: ToolListDocs,
		Desc: "List the documents that have been uploaded and indexed.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"filter": {
				Type: schema.String,
				Desc: "Only list documents whose filename contains this value",
			},
		}),
	}

	return &textTool{
		info: info,
		run: func(ctx context.Context, argumentsInJSON string) (string, error) {
			var args listDocsArgs
			if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
				return "", fmt.Errorf("parse arguments: %w", err)
			}

			all, err := docs.ListDocuments()
			if err != nil {
				return "", err
			}

			filter := strings.ToLower(strings.TrimSpace(args.Filter))
			var lines []string
			for _, d := range all {
				if filter != "" && !strings.Contains(strings.ToLower(d.Filename), filter) {
					continue
				}
				lines = append(lines, fmt.Sprintf("- %s (id: %s)", d.Filename, d.ID))
			}
			if len(lines) == 0 {
				return noDocumentsListed, nil
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}
