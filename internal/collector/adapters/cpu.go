package adapters

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/speedwagon-io/skbridge/internal/config"
)

const DefaultProcStat = "/proc/stat"

// cpuReading is cumulative jiffies from the aggregate cpu line of /proc/stat:
//
//	cpu  user nice system idle iowait irq softirq steal [guest guest_nice]
type cpuReading struct {
	busy uint64
	idle uint64
}

// CPUUsageReader reports CPU utilization in percent over a blocking
// sampling window.
type CPUUsageReader struct {
	StatPath string
	Window   time.Duration
}

func NewCPUUsageReader(window time.Duration) *CPUUsageReader {
	return &CPUUsageReader{StatPath: DefaultProcStat, Window: window}
}

func (r *CPUUsageReader) Name() string { return "cpu_usage" }
func (r *CPUUsageReader) Path() string { return config.PathCPUUsage }

func (r *CPUUsageReader) ReadMetric(ctx context.Context) (any, error) {
	before, err := readCPUStats(r.StatPath)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(r.Window)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	after, err := readCPUStats(r.StatPath)
	if err != nil {
		return nil, err
	}
	return cpuPercent(before, after), nil
}

func readCPUStats(path string) (*cpuReading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, errors.New("empty /proc/stat")
	}

	fields := strings.Fields(scanner.Text())
	if len(fields) < 9 || fields[0] != "cpu" {
		return nil, fmt.Errorf("unexpected /proc/stat line %q", scanner.Text())
	}

	values := make([]uint64, len(fields)-1)
	for i := 1; i < len(fields); i++ {
		v, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse /proc/stat field %q: %w", fields[i], err)
		}
		values[i-1] = v
	}

	// guest and guest_nice are already accounted in user and nice
	return &cpuReading{
		busy: values[0] + values[1] + values[2] + values[5] + values[6] + values[7],
		idle: values[3] + values[4],
	}, nil
}

func cpuPercent(before, after *cpuReading) float64 {
	if after.busy < before.busy || after.idle < before.idle {
		return 0
	}
	busy := after.busy - before.busy
	total := busy + after.idle - before.idle
	if total == 0 {
		return 0
	}
	return float64(busy) / float64(total) * 100
}
