package adapters

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/speedwagon-io/skbridge/internal/collector"
	"github.com/speedwagon-io/skbridge/internal/config"
)

var signalQualityRe = regexp.MustCompile(`signal quality:\s*([0-9]+(?:\.[0-9]+)?)\s*%`)

// LTESignalReader reports modem signal quality in percent from ModemManager.
type LTESignalReader struct {
	Run   CommandRunner
	Modem int
}

func NewLTESignalReader(modem int) *LTESignalReader {
	return &LTESignalReader{Run: ExecRunner, Modem: modem}
}

func (r *LTESignalReader) Name() string { return "lte_signal" }
func (r *LTESignalReader) Path() string { return config.PathLTESignal }

func (r *LTESignalReader) ReadMetric(ctx context.Context) (any, error) {
	out, err := r.Run(ctx, "mmcli", "-m", strconv.Itoa(r.Modem))
	if err != nil {
		return nil, err
	}
	return parseSignalQuality(string(out))
}

// parseSignalQuality extracts 67 from "signal quality: 67% (recent)".
func parseSignalQuality(out string) (float64, error) {
	m := signalQualityRe.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("no signal quality in mmcli output: %w", collector.ErrUnavailable)
	}
	return parseFloat(m[1])
}
