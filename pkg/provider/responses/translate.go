package responses

import "github.com/rhuss/rabbithole/pkg/api"

// DefaultModel is used when neither the request nor the configuration names
// a model.
const DefaultModel = "gpt-4o"

// BuildOptions controls request building.
type BuildOptions struct {
	// DefaultModel replaces DefaultModel when set.
	DefaultModel string

	// Tools is the name to descriptor table. Nil means DefaultToolTable.
	Tools ToolTable
}

// BuildPayload converts a validated chat request into the Responses API
// request body. It performs no I/O and never fails: content the backend
// cannot accept is dropped during normalization.
//
// Optional fields are only set when the caller supplied them:
// conversation_id becomes previous_response_id when non-empty, tools are
// mapped when the list is non-empty, and max_tokens becomes
// max_output_tokens when non-zero.
func BuildPayload(req *api.ChatRequest, opts BuildOptions) *Payload {
	model := req.Model
	if model == "" {
		model = opts.DefaultModel
	}
	if model == "" {
		model = DefaultModel
	}

	p := &Payload{
		Model:  model,
		Input:  NormalizeMessages(req.Messages),
		Stream: req.Stream,
	}

	if req.ConversationID != "" {
		p.PreviousResponseID = req.ConversationID
	}

	if len(req.Tools) > 0 {
		table := opts.Tools
		if table == nil {
			table = DefaultToolTable()
		}
		if mapped := table.Map(req.Tools); len(mapped) > 0 {
			p.Tools = mapped
		}
	}

	// Zero is treated as absent.
	if req.MaxTokens != 0 {
		p.MaxOutputTokens = req.MaxTokens
	}

	return p
}
