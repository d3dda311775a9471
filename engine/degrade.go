package engine

import (
	"encoding/json"

	"github.com/meridianbio/pipeline"
)

// fallbackPayload builds the degraded payload for a stage whose
// invocation failed. The second return is false when the descriptor
// forbids degradation.
func fallbackPayload(desc pipeline.StageDescriptor, input json.RawMessage, cause *pipeline.StageError) (json.RawMessage, bool) {
	switch desc.Fallback {
	case pipeline.FallbackEmpty:
		return marshalFallback(emptyFallback{
			Stage:    desc.Name,
			Degraded: true,
			Items:    []json.RawMessage{},
		}), true

	case pipeline.FallbackPartial:
		// Carry the upstream context forward so downstream consumers can
		// still work with whatever did succeed.
		return marshalFallback(partialFallback{
			Stage:    desc.Name,
			Degraded: true,
			Partial:  true,
			Context:  input,
			Reason:   cause.Message,
		}), true

	case pipeline.FallbackPlaceholder:
		return marshalFallback(placeholderPayload(desc.Name, cause)), true

	default:
		return nil, false
	}
}

type emptyFallback struct {
	Stage    string            `json:"stage"`
	Degraded bool              `json:"degraded"`
	Items    []json.RawMessage `json:"items"`
}

type partialFallback struct {
	Stage    string          `json:"stage"`
	Degraded bool            `json:"degraded"`
	Partial  bool            `json:"partial"`
	Context  json.RawMessage `json:"context,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

type placeholderFallback struct {
	Stage       string   `json:"stage"`
	Degraded    bool     `json:"degraded"`
	Unavailable bool     `json:"unavailable"`
	Summary     string   `json:"summary"`
	Findings    []string `json:"findings,omitempty"`
}

// placeholderPayload shapes the marker payload per stage, so downstream
// consumers see the fields they expect even in degraded form.
func placeholderPayload(stage string, cause *pipeline.StageError) placeholderFallback {
	p := placeholderFallback{
		Stage:       stage,
		Degraded:    true,
		Unavailable: true,
		Summary:     "stage unavailable: " + string(cause.Category),
	}
	if stage == pipeline.StageLiteratureSearch {
		p.Summary = "literature search unavailable"
		p.Findings = []string{"literature search unavailable"}
	}
	return p
}

func marshalFallback(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"degraded":true}`)
	}
	return b
}
