package adapters

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/speedwagon-io/skbridge/internal/collector"
	"github.com/speedwagon-io/skbridge/internal/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runnerReturning(out string, err error) CommandRunner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(out), err
	}
}

func TestTemperatureFromVcgencmd(t *testing.T) {
	r := &TemperatureReader{Run: runnerReturning("temp=47.2'C\n", nil)}

	v, err := r.ReadMetric(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 47.2, v, 1e-9)
	assert.Equal(t, config.PathCPUTemperature, r.Path())
}

func TestTemperatureFallsBackToThermalZone(t *testing.T) {
	r := &TemperatureReader{
		Run:         runnerReturning("", errors.New("vcgencmd: not found")),
		ThermalPath: writeFile(t, "51234\n"),
	}

	v, err := r.ReadMetric(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 51.234, v, 1e-9)

	r.Run = runnerReturning("garbage", nil)
	v, err = r.ReadMetric(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 51.234, v, 1e-9)
}

func TestTemperatureBothSourcesFail(t *testing.T) {
	r := &TemperatureReader{
		Run:         runnerReturning("", errors.New("vcgencmd: not found")),
		ThermalPath: filepath.Join(t.TempDir(), "missing"),
	}

	_, err := r.ReadMetric(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vcgencmd")
	assert.Contains(t, err.Error(), "thermal zone")
}

func TestCPUPercent(t *testing.T) {
	before := &cpuReading{busy: 100, idle: 900}
	after := &cpuReading{busy: 150, idle: 950}
	assert.InDelta(t, 50.0, cpuPercent(before, after), 1e-9)
	assert.Zero(t, cpuPercent(after, after))
	assert.Zero(t, cpuPercent(after, before))
}

func TestReadCPUStats(t *testing.T) {
	path := writeFile(t, "cpu  10 2 3 80 5 1 1 0 0 0\ncpu0 10 2 3 80 5 1 1 0 0 0\n")

	s, err := readCPUStats(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(17), s.busy)
	assert.Equal(t, uint64(85), s.idle)

	_, err = readCPUStats(writeFile(t, "intr 1 2 3\n"))
	assert.Error(t, err)
}

func TestCPUUsageReader(t *testing.T) {
	r := &CPUUsageReader{StatPath: writeFile(t, "cpu  10 2 3 80 5 1 1 0 0 0\n"), Window: time.Millisecond}

	v, err := r.ReadMetric(context.Background())
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestCPUUsageReaderHonoursContext(t *testing.T) {
	r := &CPUUsageReader{StatPath: writeFile(t, "cpu  10 2 3 80 5 1 1 0 0 0\n"), Window: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.ReadMetric(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUptimeFromProc(t *testing.T) {
	r := &UptimeReader{UptimePath: writeFile(t, "350735.47 234388.90\n")}

	v, err := r.ReadMetric(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 350735.47, v, 1e-9)
}

func TestUptimeFallsBackToSysinfo(t *testing.T) {
	r := &UptimeReader{
		UptimePath: filepath.Join(t.TempDir(), "missing"),
		Sysinfo: func(info *unix.Sysinfo_t) error {
			info.Uptime = 42
			return nil
		},
	}

	v, err := r.ReadMetric(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)

	r.Sysinfo = func(*unix.Sysinfo_t) error { return unix.ENOSYS }
	_, err = r.ReadMetric(context.Background())
	assert.Error(t, err)
}

const mmcliOutput = `  --------------------------------
  General  |                 path: /org/freedesktop/ModemManager1/Modem/0
  --------------------------------
  Status   |                state: connected
           |          power state: on
           |       signal quality: 67% (recent)
`

func TestLTESignal(t *testing.T) {
	var gotArgs []string
	r := &LTESignalReader{
		Modem: 2,
		Run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			gotArgs = append([]string{name}, args...)
			return []byte(mmcliOutput), nil
		},
	}

	v, err := r.ReadMetric(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 67.0, v)
	assert.Equal(t, []string{"mmcli", "-m", "2"}, gotArgs)
}

func TestLTESignalMissing(t *testing.T) {
	r := &LTESignalReader{Run: runnerReturning("  Status   |  state: disabled\n", nil)}

	_, err := r.ReadMetric(context.Background())
	assert.ErrorIs(t, err, collector.ErrUnavailable)

	r.Run = runnerReturning("", errors.New("mmcli: modem not found"))
	_, err = r.ReadMetric(context.Background())
	assert.Error(t, err)
}

func TestDefaultOrder(t *testing.T) {
	readers := Default(config.PublishConfig{CPUWindow: time.Second, ModemIndex: 0})

	paths := make([]string, 0, len(readers))
	for _, r := range readers {
		paths = append(paths, r.Path())
	}
	assert.Equal(t, []string{
		config.PathCPUTemperature,
		config.PathCPUUsage,
		config.PathUptime,
		config.PathLTESignal,
	}, paths)
}
