package adapters

import (
	"github.com/speedwagon-io/skbridge/internal/collector"
	"github.com/speedwagon-io/skbridge/internal/config"
)

// Default returns the host readers in publish order: temperature, cpu
// usage, uptime, signal strength.
func Default(cfg config.PublishConfig) []collector.SensorReader {
	return []collector.SensorReader{
		NewTemperatureReader(),
		NewCPUUsageReader(cfg.CPUWindow),
		NewUptimeReader(),
		NewLTESignalReader(cfg.ModemIndex),
	}
}
