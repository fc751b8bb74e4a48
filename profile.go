package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/golang/glog"
)

const profileTimeFormat = "20060102_150405"

// Profiler is an active CPU/heap profiling session toggled via SIGUSR2.
type Profiler struct {
	dataDir string
	cpuFile *os.File
}

// StartProfiler begins a CPU profile in dataDir. Returns nil if the profile
// could not be started.
func StartProfiler(dataDir string) *Profiler {
	name := filepath.Join(dataDir, fmt.Sprintf("cpu_%s.pprof", time.Now().Format(profileTimeFormat)))
	f, err := os.Create(name)
	if err != nil {
		glog.Errorf("profiler: create `%s`: %v", name, err)
		return nil
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		glog.Errorf("profiler: start cpu profile: %v", err)
		_ = f.Close()
		return nil
	}
	glog.Infof("profiler: cpu profile started, file: %s", name)
	return &Profiler{dataDir: dataDir, cpuFile: f}
}

// Stop finishes the CPU profile and writes a heap snapshot next to it.
func (p *Profiler) Stop() {
	if p == nil {
		return
	}
	pprof.StopCPUProfile()
	_ = p.cpuFile.Close()
	glog.Infof("profiler: cpu profile stopped")

	name := filepath.Join(p.dataDir, fmt.Sprintf("heap_%s.pprof", time.Now().Format(profileTimeFormat)))
	f, err := os.Create(name)
	if err != nil {
		glog.Errorf("profiler: create `%s`: %v", name, err)
		return
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		glog.Errorf("profiler: write heap profile: %v", err)
		return
	}
	glog.Infof("profiler: heap profile written, file: %s", name)
}

// dumpGoroutines writes all goroutine stacks to a file in dataDir.
func dumpGoroutines(dataDir string) {
	name := filepath.Join(dataDir, fmt.Sprintf("goroutines_%s.dump", time.Now().Format(profileTimeFormat)))
	f, err := os.Create(name)
	if err != nil {
		glog.Errorf("profiler: create `%s`: %v", name, err)
		return
	}
	defer f.Close()
	if err := pprof.Lookup("goroutine").WriteTo(f, 2); err != nil {
		glog.Errorf("profiler: dump goroutines: %v", err)
		return
	}
	glog.Infof("profiler: goroutines dumped, file: %s", name)
}
