package responses

import (
	"encoding/json"
	"maps"

	"github.com/rhuss/rabbithole/pkg/api"
	"github.com/rhuss/rabbithole/pkg/debug"
)

// ToolTable maps abstract tool names to backend tool descriptors.
type ToolTable map[string]json.RawMessage

// DefaultToolTable returns the built-in name to descriptor table.
func DefaultToolTable() ToolTable {
	return ToolTable{
		"web_search": json.RawMessage(`{"type":"web_search_preview"}`),
	}
}

// WithOverrides returns a copy of t with the given entries added or replaced.
func (t ToolTable) WithOverrides(extra map[string]json.RawMessage) ToolTable {
	out := make(ToolTable, len(t)+len(extra))
	maps.Copy(out, t)
	maps.Copy(out, extra)
	return out
}

// Map converts the request's tool list into backend descriptors.
//
// A list holding exactly one descriptor object is passed through unchanged,
// for callers that already speak the backend's tool format. Otherwise each
// name is looked up in the table; unknown names and stray objects are
// dropped and the order of mapped entries is preserved.
func (t ToolTable) Map(specs []api.ToolSpec) []json.RawMessage {
	if len(specs) == 1 && specs[0].IsDescriptor() {
		return []json.RawMessage{specs[0].Descriptor}
	}

	out := make([]json.RawMessage, 0, len(specs))
	for _, s := range specs {
		if s.IsDescriptor() {
			debug.Log("providers", "dropping tool descriptor in multi-entry list")
			continue
		}
		d, ok := t[s.Name]
		if !ok {
			debug.Log("providers", "dropping unknown tool", "name", s.Name)
			continue
		}
		out = append(out, d)
	}
	return out
}

// MapTools maps tool names using the built-in table.
func MapTools(specs []api.ToolSpec) []json.RawMessage {
	return DefaultToolTable().Map(specs)
}
