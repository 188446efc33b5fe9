package common

import (
	"os"
	"runtime"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

// Runtime profiles by host size. Pair evaluation allocates many short-lived
// big.Rat values, so larger hosts trade memory for fewer GC cycles.
const (
	SmallHostGOGC     = 200
	SmallHostMemLimit = 2 * 1024 * 1024 * 1024 // 2GB

	MediumHostGOGC     = 400
	MediumHostMemLimit = 6 * 1024 * 1024 * 1024 // 6GB

	LargeHostGOGC     = 800
	LargeHostMemLimit = 16 * 1024 * 1024 * 1024 // 16GB
)

func detectHostProfile() (gogc int, memLimit int64) {
	switch cpus := runtime.NumCPU(); {
	case cpus <= 2:
		return SmallHostGOGC, SmallHostMemLimit
	case cpus <= 8:
		return MediumHostGOGC, MediumHostMemLimit
	default:
		return LargeHostGOGC, LargeHostMemLimit
	}
}

// InitRuntime applies the host profile unless GOGC or GOMEMLIMIT are set in
// the environment.
func InitRuntime() {
	gogc, memLimit := detectHostProfile()

	if os.Getenv("GOGC") == "" {
		debug.SetGCPercent(gogc)
		log.Debug().Int("GOGC", gogc).Msg("[runtime] set GC percent")
	}

	if os.Getenv("GOMEMLIMIT") == "" {
		debug.SetMemoryLimit(memLimit)
		log.Debug().
			Int64("GOMEMLIMIT_bytes", memLimit).
			Float64("GOMEMLIMIT_GB", float64(memLimit)/1024/1024/1024).
			Msg("[runtime] set memory limit")
	}

	logRuntimeSettings()
}

// DefaultWorkers is the pair-search pool size: one worker per usable core.
func DefaultWorkers() int {
	return max(1, runtime.GOMAXPROCS(0))
}

func logRuntimeSettings() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.Debug().
		Int("num_cpu", runtime.NumCPU()).
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Int("workers", DefaultWorkers()).
		Uint64("heap_alloc_mb", memStats.HeapAlloc/1024/1024).
		Str("go_version", runtime.Version()).
		Msg("[runtime] current runtime settings")
}
