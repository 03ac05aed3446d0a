package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/speedwagon-io/skbridge/internal/config"
)

const DefaultThermalZone = "/sys/class/thermal/thermal_zone0/temp"

// TemperatureReader reports the SoC temperature in degrees Celsius, from
// vcgencmd on a Raspberry Pi or the kernel thermal zone elsewhere.
type TemperatureReader struct {
	Run         CommandRunner
	ThermalPath string
}

func NewTemperatureReader() *TemperatureReader {
	return &TemperatureReader{Run: ExecRunner, ThermalPath: DefaultThermalZone}
}

func (r *TemperatureReader) Name() string { return "cpu_temperature" }
func (r *TemperatureReader) Path() string { return config.PathCPUTemperature }

func (r *TemperatureReader) ReadMetric(ctx context.Context) (any, error) {
	out, vcErr := r.Run(ctx, "vcgencmd", "measure_temp")
	if vcErr == nil {
		var t float64
		if t, vcErr = parseMeasureTemp(string(out)); vcErr == nil {
			return t, nil
		}
	}

	t, zoneErr := r.readThermalZone()
	if zoneErr != nil {
		return nil, errors.Join(vcErr, zoneErr)
	}
	return t, nil
}

// parseMeasureTemp parses "temp=47.2'C".
func parseMeasureTemp(out string) (float64, error) {
	_, after, ok := strings.Cut(strings.TrimSpace(out), "temp=")
	if !ok {
		return 0, fmt.Errorf("unexpected vcgencmd output %q", out)
	}
	return parseFloat(strings.TrimSuffix(after, "'C"))
}

func (r *TemperatureReader) readThermalZone() (float64, error) {
	if r.ThermalPath == "" {
		return 0, errors.New("no thermal zone configured")
	}
	raw, err := os.ReadFile(r.ThermalPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read thermal zone: %w", err)
	}
	milli, err := parseFloat(string(raw))
	if err != nil {
		return 0, err
	}
	return milli / 1000, nil
}
