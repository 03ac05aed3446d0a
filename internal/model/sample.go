package model

import "time"

// Sample is one metric reading. Value is a float64 or a bool.
type Sample struct {
	Path      string
	Value     any
	Timestamp time.Time
}

func NewSample(path string, value any) Sample {
	return Sample{
		Path:      path,
		Value:     value,
		Timestamp: time.Now(),
	}
}
