package command

import (
	"lspadapter/internal/completion"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Completion runs the completion chain at a position.
type Completion struct {
	Engine   *completion.Engine
	Position protocol.Position
	Snippets bool
	// After resumes the chain one past the named contributor.
	After string
}

func (c *Completion) Name() string   { return "completion" }
func (c *Completion) Access() Access { return Read }

func (c *Completion) Execute(ec *ExecutionContext) (*protocol.CompletionList, error) {
	params := completion.NewParameters(ec.Document, c.Position, c.Snippets)
	return c.Engine.CompleteAfter(ec.Ctx, params, c.After)
}

// ResolveCompletion fetches the details of an item from an earlier
// completion response.
type ResolveCompletion struct {
	Engine *completion.Engine
	Item   *protocol.CompletionItem
}

func (c *ResolveCompletion) Name() string   { return "completionResolve" }
func (c *ResolveCompletion) Access() Access { return Read }

func (c *ResolveCompletion) Execute(ec *ExecutionContext) (*protocol.CompletionItem, error) {
	if err := ec.Check(); err != nil {
		return nil, err
	}
	return c.Engine.Resolve(c.Item)
}
