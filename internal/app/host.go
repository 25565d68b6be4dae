package app

import (
	"context"
	"os"

	"github.com/shirou/gopsutil/v4/host"
)

// getHostInfo identifies the machine. gopsutil is preferred; the hostname
// alone is enough when it fails.
func getHostInfo(ctx context.Context) HostInfo {
	info, err := host.InfoWithContext(ctx)
	if err == nil && info.Hostname != "" {
		return HostInfo{
			Hostname: info.Hostname,
			Kernel:   info.KernelVersion,
			Uptime:   info.Uptime,
		}
	}
	name, err := os.Hostname()
	if err != nil {
		name = "localhost"
	}
	return HostInfo{Hostname: name}
}
