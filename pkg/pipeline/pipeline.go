// Package pipeline shapes conversation history before it is sent upstream.
//
// A Pipeline is an ordered, immutable list of pure transforms built once at
// startup and handed to the engine. Transforms never modify the slice they
// receive; each returns a new slice.
package pipeline

import (
	"slices"

	"github.com/rhuss/rabbithole/pkg/api"
	"github.com/rhuss/rabbithole/pkg/debug"
)

// Transform rewrites a message list. Implementations must not modify msgs
// or the messages it holds.
type Transform func(msgs []api.ChatMessage) []api.ChatMessage

// Pipeline applies transforms in order.
type Pipeline struct {
	transforms []Transform
}

// New builds a pipeline from the given transforms. Nil entries are skipped.
func New(transforms ...Transform) *Pipeline {
	p := &Pipeline{}
	for _, t := range transforms {
		if t != nil {
			p.transforms = append(p.transforms, t)
		}
	}
	return p
}

// Len returns the number of transforms.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.transforms)
}

// Apply runs every transform over a copy of msgs. A nil pipeline returns
// the copy unchanged.
func (p *Pipeline) Apply(msgs []api.ChatMessage) []api.ChatMessage {
	out := slices.Clone(msgs)
	if p == nil {
		return out
	}
	for _, t := range p.transforms {
		out = t(out)
	}
	debug.Log("pipeline", "messages transformed",
		"original_count", len(msgs), "transformed_count", len(out), "transforms", len(p.transforms))
	return out
}
