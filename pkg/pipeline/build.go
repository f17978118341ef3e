package pipeline

// Options selects the transforms Build assembles.
type Options struct {
	// MaxHistory limits non-system messages; zero disables the limit.
	MaxHistory int

	// SystemPrompt is added when the conversation has no system message, or
	// replaces all system messages when ReplaceSystem is set.
	SystemPrompt  string
	ReplaceSystem bool

	// UserPrefix is prepended to the text of user messages.
	UserPrefix string
}

// Build assembles the pipeline in a fixed order: system prompt, user
// prefix, history limit.
func Build(opts Options) *Pipeline {
	var ts []Transform
	if opts.SystemPrompt != "" {
		if opts.ReplaceSystem {
			ts = append(ts, ReplaceSystemMessages(opts.SystemPrompt))
		} else {
			ts = append(ts, AddSystemMessage(opts.SystemPrompt))
		}
	}
	if opts.UserPrefix != "" {
		ts = append(ts, PrefixUserMessages(opts.UserPrefix))
	}
	if opts.MaxHistory > 0 {
		ts = append(ts, LimitHistory(opts.MaxHistory))
	}
	return New(ts...)
}
