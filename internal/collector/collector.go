package collector

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable means the sensor has no value right now (e.g. no modem).
// The metric is skipped for this cycle.
var ErrUnavailable = errors.New("metric unavailable")

type MetricReadError struct {
	Path string
	Err  error
}

func (e *MetricReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *MetricReadError) Unwrap() error {
	return e.Err
}

// SensorReader produces the current value of one metric path.
// Values are float64 or bool.
type SensorReader interface {
	Name() string
	Path() string
	ReadMetric(ctx context.Context) (any, error)
}

type Publisher interface {
	Send(ctx context.Context, path string, value any) error
}

type Observer interface {
	SampleSent(path string)
	SampleDropped(path, reason string)
	ReadFailed(path string)
	CycleDuration(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) SampleSent(string)            {}
func (nopObserver) SampleDropped(string, string) {}
func (nopObserver) ReadFailed(string)            {}
func (nopObserver) CycleDuration(time.Duration)  {}
