package product

import (
	"fmt"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostSummary 采集宿主机信息（启动日志用）
func HostSummary() string {
	info, err := host.Info()
	if err != nil {
		return "host info unavailable: " + err.Error()
	}
	summary := fmt.Sprintf("%s %s (%s)", info.Platform, info.PlatformVersion, info.KernelArch)
	if vm, err := mem.VirtualMemory(); err == nil {
		summary += fmt.Sprintf(", mem %.1f%% used", vm.UsedPercent)
	}
	return summary
}
