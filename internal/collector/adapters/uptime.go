package adapters

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/speedwagon-io/skbridge/internal/config"
)

const DefaultProcUptime = "/proc/uptime"

// UptimeReader reports host uptime in seconds.
type UptimeReader struct {
	UptimePath string
	Sysinfo    func(*unix.Sysinfo_t) error
}

func NewUptimeReader() *UptimeReader {
	return &UptimeReader{UptimePath: DefaultProcUptime, Sysinfo: unix.Sysinfo}
}

func (r *UptimeReader) Name() string { return "uptime" }
func (r *UptimeReader) Path() string { return config.PathUptime }

func (r *UptimeReader) ReadMetric(ctx context.Context) (any, error) {
	raw, err := os.ReadFile(r.UptimePath)
	if err == nil {
		if fields := strings.Fields(string(raw)); len(fields) > 0 {
			if v, perr := parseFloat(fields[0]); perr == nil {
				return v, nil
			}
		}
	}

	if r.Sysinfo == nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.UptimePath, err)
	}
	var info unix.Sysinfo_t
	if serr := r.Sysinfo(&info); serr != nil {
		return nil, fmt.Errorf("failed to read uptime: %w", serr)
	}
	return float64(info.Uptime), nil
}
