package model

import (
	"encoding/json"
	"time"
)

const SelfContext = "vessels.self"

// Envelope is a Signal K delta message. Every outbound frame on the
// stream is exactly one Envelope.
type Envelope struct {
	Context string   `json:"context"`
	Updates []Update `json:"updates"`
}

type Update struct {
	Source    Source      `json:"source"`
	Timestamp *time.Time  `json:"timestamp,omitempty"`
	Values    []PathValue `json:"values"`
}

type Source struct {
	Label string `json:"label"`
}

type PathValue struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// NewEnvelope wraps samples into a single update from the given source.
func NewEnvelope(label string, samples ...Sample) *Envelope {
	values := make([]PathValue, 0, len(samples))
	var ts *time.Time
	for _, s := range samples {
		values = append(values, PathValue{Path: s.Path, Value: s.Value})
		if !s.Timestamp.IsZero() && (ts == nil || s.Timestamp.After(*ts)) {
			t := s.Timestamp.UTC()
			ts = &t
		}
	}

	return &Envelope{
		Context: SelfContext,
		Updates: []Update{{
			Source:    Source{Label: label},
			Timestamp: ts,
			Values:    values,
		}},
	}
}

func (e *Envelope) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EnvelopeFromJSON(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
