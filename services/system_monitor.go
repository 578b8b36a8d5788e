package services

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

type SystemHealth struct {
	Uptime         string    `json:"uptime"`
	Goroutines     int       `json:"goroutines"`
	HeapAlloc      uint64    `json:"heap_alloc"`
	MemoryUsed     uint64    `json:"memory_used"`
	MemoryTotal    uint64    `json:"memory_total"`
	MemoryPercent  float64   `json:"memory_percent"`
	DiskUsed       uint64    `json:"disk_used"`
	DiskTotal      uint64    `json:"disk_total"`
	DiskPercent    float64   `json:"disk_percent"`
	DatabaseSize   int64     `json:"database_size"`
	InvoiceFiles   int       `json:"invoice_files"`
	InvoiceDirSize int64     `json:"invoice_dir_size"`
	LastUpdated    time.Time `json:"last_updated"`
}

// SystemMonitor reports process and host resources for the admin dashboard.
// Host figures come from /proc and statfs and stay zero where those are not
// available.
type SystemMonitor struct {
	databasePath string
	invoicesDir  string
	started      time.Time
}

func NewSystemMonitor(databasePath, invoicesDir string) *SystemMonitor {
	return &SystemMonitor{databasePath: databasePath, invoicesDir: invoicesDir, started: time.Now()}
}

func (m *SystemMonitor) Health() SystemHealth {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	health := SystemHealth{
		Uptime:      formatUptime(time.Since(m.started)),
		Goroutines:  runtime.NumGoroutine(),
		HeapAlloc:   mem.HeapAlloc,
		LastUpdated: time.Now(),
	}

	total, available := readMemInfo("/proc/meminfo")
	if total > 0 {
		health.MemoryTotal = total
		health.MemoryUsed = total - available
		health.MemoryPercent = float64(health.MemoryUsed) / float64(total) * 100
	}

	diskPath := m.invoicesDir
	if _, err := os.Stat(diskPath); err != nil {
		diskPath = "."
	}
	health.DiskTotal, health.DiskUsed = diskUsage(diskPath)
	if health.DiskTotal > 0 {
		health.DiskPercent = float64(health.DiskUsed) / float64(health.DiskTotal) * 100
	}

	if info, err := os.Stat(m.databasePath); err == nil {
		health.DatabaseSize = info.Size()
	}
	if entries, err := os.ReadDir(m.invoicesDir); err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".pdf") {
				continue
			}
			health.InvoiceFiles++
			if info, err := e.Info(); err == nil {
				health.InvoiceDirSize += info.Size()
			}
		}
	}
	return health
}

// readMemInfo returns MemTotal and MemAvailable in bytes.
func readMemInfo(path string) (total, available uint64) {
	file, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer file.Close()

	var free, buffers, cached uint64
	haveAvailable := false
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		value := parseUint64(fields[1]) * 1024 // kB
		switch strings.TrimSuffix(fields[0], ":") {
		case "MemTotal":
			total = value
		case "MemAvailable":
			available = value
			haveAvailable = true
		case "MemFree":
			free = value
		case "Buffers":
			buffers = value
		case "Cached":
			cached = value
		}
	}
	if !haveAvailable {
		available = free + buffers + cached
	}
	if available > total {
		available = total
	}
	return total, available
}

func diskUsage(path string) (total, used uint64) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0
	}
	total = stat.Blocks * uint64(stat.Bsize)
	used = total - stat.Bfree*uint64(stat.Bsize)
	return total, used
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	} else if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

func parseUint64(s string) uint64 {
	val, _ := strconv.ParseUint(s, 10, 64)
	return val
}
