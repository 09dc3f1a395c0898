// Package diagnostics provides self-test checks and a host resource
// snapshot for the admin diagnostics endpoint.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// CheckStatus represents the status of a diagnostic check.
type CheckStatus string

const (
	// StatusPass indicates the check passed.
	StatusPass CheckStatus = "pass"
	// StatusFail indicates the check failed.
	StatusFail CheckStatus = "fail"
	// StatusWarn indicates the check passed with warnings.
	StatusWarn CheckStatus = "warn"
	// StatusSkip indicates the check was skipped.
	StatusSkip CheckStatus = "skip"
)

// CheckResult represents the result of a single diagnostic check.
type CheckResult struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// SystemInfo is a point-in-time host resource snapshot.
type SystemInfo struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemTotalBytes  uint64  `json:"mem_total_bytes"`
	MemUsedBytes   uint64  `json:"mem_used_bytes"`
	MemUsedPct     float64 `json:"mem_used_percent"`
	DiskTotalBytes uint64  `json:"disk_total_bytes"`
	DiskFreeBytes  uint64  `json:"disk_free_bytes"`
	DiskUsedPct    float64 `json:"disk_used_percent"`
	Goroutines     int     `json:"goroutines"`
}

// Summary provides a quick overview of the check results.
type Summary struct {
	Total   int  `json:"total"`
	Passed  int  `json:"passed"`
	Failed  int  `json:"failed"`
	Warned  int  `json:"warned"`
	Skipped int  `json:"skipped"`
	AllPass bool `json:"all_pass"`
}

// Result contains the complete diagnostics output.
type Result struct {
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version"`
	Hostname  string        `json:"hostname"`
	OS        string        `json:"os"`
	Arch      string        `json:"arch"`
	System    *SystemInfo   `json:"system,omitempty"`
	Checks    []CheckResult `json:"checks"`
	Summary   Summary       `json:"summary"`
}

// Pinger verifies connectivity to an external dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Runner runs diagnostic checks against the service's dependencies.
type Runner struct {
	version   string
	exportDir string
	database  Pinger
	cache     Pinger
	providers []string
}

// NewRunner creates a diagnostics runner. cache may be nil when Redis is
// not configured.
func NewRunner(version, exportDir string, database, cache Pinger, providers []string) *Runner {
	return &Runner{
		version:   version,
		exportDir: exportDir,
		database:  database,
		cache:     cache,
		providers: providers,
	}
}

// Run executes all diagnostic checks and returns the result.
func (r *Runner) Run(ctx context.Context) *Result {
	hostname, _ := os.Hostname()

	result := &Result{
		Timestamp: time.Now().UTC(),
		Version:   r.version,
		Hostname:  hostname,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		System:    collectSystemInfo(),
		Checks:    make([]CheckResult, 0),
	}

	result.Checks = append(result.Checks, r.checkDatabase(ctx))
	result.Checks = append(result.Checks, r.checkCache(ctx))
	result.Checks = append(result.Checks, r.checkAIProviders())
	result.Checks = append(result.Checks, r.checkExportDir())

	for _, check := range result.Checks {
		result.Summary.Total++
		switch check.Status {
		case StatusPass:
			result.Summary.Passed++
		case StatusFail:
			result.Summary.Failed++
		case StatusWarn:
			result.Summary.Warned++
		case StatusSkip:
			result.Summary.Skipped++
		}
	}
	result.Summary.AllPass = result.Summary.Failed == 0

	return result
}

func collectSystemInfo() *SystemInfo {
	info := &SystemInfo{Goroutines: runtime.NumGoroutine()}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		info.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemTotalBytes = vm.Total
		info.MemUsedBytes = vm.Used
		info.MemUsedPct = vm.UsedPercent
	}
	if usage, err := disk.Usage("/"); err == nil {
		info.DiskTotalBytes = usage.Total
		info.DiskFreeBytes = usage.Free
		info.DiskUsedPct = usage.UsedPercent
	}

	return info
}

func (r *Runner) checkDatabase(ctx context.Context) CheckResult {
	check := CheckResult{Name: "database"}

	if r.database == nil {
		check.Status = StatusFail
		check.Message = "no database configured"
		return check
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.database.Ping(pingCtx); err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("ping failed: %v", err)
		return check
	}

	check.Status = StatusPass
	return check
}

func (r *Runner) checkCache(ctx context.Context) CheckResult {
	check := CheckResult{Name: "cache"}

	if r.cache == nil {
		check.Status = StatusSkip
		check.Message = "redis not configured"
		return check
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.cache.Ping(pingCtx); err != nil {
		check.Status = StatusWarn
		check.Message = fmt.Sprintf("ping failed: %v", err)
		return check
	}

	check.Status = StatusPass
	return check
}

func (r *Runner) checkAIProviders() CheckResult {
	check := CheckResult{Name: "ai_providers"}

	if len(r.providers) == 0 {
		check.Status = StatusFail
		check.Message = "no AI provider configured"
		return check
	}

	check.Status = StatusPass
	check.Message = fmt.Sprintf("%d provider(s) configured", len(r.providers))
	return check
}

func (r *Runner) checkExportDir() CheckResult {
	check := CheckResult{Name: "export_dir"}

	if r.exportDir == "" {
		check.Status = StatusSkip
		check.Message = "no export directory configured"
		return check
	}

	probe := filepath.Join(r.exportDir, ".diagnostics_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("directory not writable: %v", err)
		return check
	}
	os.Remove(probe)

	check.Status = StatusPass
	return check
}
