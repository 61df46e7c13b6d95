package device

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"codeberg.org/mutker/framectl/internal/logger"
)

// gpuSignals queries NVML for the first device's name and memory size.
// Absent driver or device simply means the GPU signal is unavailable; the
// classifier substitutes its conservative default.
func gpuSignals() (string, uint64, bool) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		logger.Debug().Msgf("NVML unavailable: %v", nvml.ErrorString(ret))
		return "", 0, false
	}
	defer nvml.Shutdown()

	deviceHandle, ret := nvml.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		logger.Debug().Msgf("No NVML device at index 0: %v", nvml.ErrorString(ret))
		return "", 0, false
	}

	name, ret := deviceHandle.GetName()
	if ret != nvml.SUCCESS {
		name = "unknown"
	}

	memory, ret := deviceHandle.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return name, 0, true
	}

	return name, memory.Total, true
}
