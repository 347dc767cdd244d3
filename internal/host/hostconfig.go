package host

import (
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/shandley/apple-silicon-bio-bench-sub004/internal/logging"
	"github.com/sirupsen/logrus"
)

// HostConfig describes the machine a sweep runs on. Initialized once at
// startup and embedded into the sweep metadata so results stay
// attributable to concrete hardware.
type HostConfig struct {
	Hostname string
	OSInfo   string
	CPUModel string

	// Core topology. On Apple Silicon the performance/efficiency split
	// comes from sysctl perflevels; elsewhere both counts fall back to
	// zero and TotalCores carries the logical count.
	TotalCores       int
	PerformanceCores int
	EfficiencyCores  int
}

var (
	globalHostConfig *HostConfig
	hostConfigOnce   sync.Once
)

// GetHostConfig returns the global host configuration, initializing it on
// first call.
func GetHostConfig() (*HostConfig, error) {
	hostConfigOnce.Do(func() {
		globalHostConfig = initializeHostConfig()
	})
	return globalHostConfig, nil
}

func initializeHostConfig() *HostConfig {
	logger := logging.GetLogger()

	config := &HostConfig{
		OSInfo:     runtime.GOOS + "/" + runtime.GOARCH,
		TotalCores: runtime.NumCPU(),
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	config.Hostname = hostname

	config.CPUModel = detectCPUModel()
	config.PerformanceCores, config.EfficiencyCores = detectCoreSplit()

	logger.WithFields(logrus.Fields{
		"hostname":          config.Hostname,
		"cpu_model":         config.CPUModel,
		"total_cores":       config.TotalCores,
		"performance_cores": config.PerformanceCores,
		"efficiency_cores":  config.EfficiencyCores,
	}).Info("Host configuration initialized")

	return config
}

func detectCPUModel() string {
	if runtime.GOOS == "darwin" {
		if v := sysctlString("machdep.cpu.brand_string"); v != "" {
			return v
		}
	}

	// /proc/cpuinfo fallback for Linux hosts.
	if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if strings.HasPrefix(line, "model name") {
				parts := strings.SplitN(line, ":", 2)
				if len(parts) == 2 {
					return strings.TrimSpace(parts[1])
				}
			}
		}
	}
	return "unknown"
}

// detectCoreSplit reads the P-cluster/E-cluster core counts on Apple
// Silicon. Both return zero on hosts without perflevel reporting.
func detectCoreSplit() (performance, efficiency int) {
	if runtime.GOOS != "darwin" {
		return 0, 0
	}
	performance = sysctlInt("hw.perflevel0.physicalcpu")
	efficiency = sysctlInt("hw.perflevel1.physicalcpu")
	return performance, efficiency
}

func sysctlString(key string) string {
	out, err := exec.Command("sysctl", "-n", key).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func sysctlInt(key string) int {
	v, err := strconv.Atoi(sysctlString(key))
	if err != nil {
		return 0
	}
	return v
}
