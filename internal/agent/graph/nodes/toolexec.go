package nodes

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/pdfchat-core/server/internal/agent/graph/tools"
	"github.com/pdfchat-core/server/internal/agent/model"
)

// ExecuteToolCalls runs every requested tool call concurrently and
// returns the tool messages in request order. Individual failures are
// reported as tool message text, never as an error.
func ExecuteToolCalls(ctx context.Context, set *tools.Set, calls []schema.ToolCall, scope *model.DocumentScope, timeout time.Duration) []*schema.Message {
	results := make([]*schema.Message, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			callCtx := gctx
			if timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gctx, timeout)
				defer cancel()
			}
			content := set.Invoke(callCtx, call.Function.Name, call.Function.Arguments, scope)
			results[i] = schema.ToolMessage(content, call.ID, schema.WithToolName(call.Function.Name))
			return nil
		})
	}
	_ = g.Wait()

	return results
}
