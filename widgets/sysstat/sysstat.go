// Package sysstat is a widget reporting process and host resource usage.
package sysstat

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/procfs"

	"tileboard/internal/widget"
)

const Name = "sysstat"

// Sample is one measurement pushed to the client.
type Sample struct {
	Host       string `json:"host"`
	GoVersion  string `json:"go_version"`
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
	CPUs       int    `json:"cpus"`
	HeapAlloc  string `json:"heap_alloc"`
	HeapInuse  string `json:"heap_inuse"`
	Sys        string `json:"sys"`
	NumGC      uint32 `json:"num_gc"`

	// Host figures are empty where /proc is unavailable.
	Load     string `json:"load,omitempty"`
	MemUsed  string `json:"mem_used,omitempty"`
	MemTotal string `json:"mem_total,omitempty"`
	MemPct   int    `json:"mem_pct,omitempty"`
}

var startedAt = time.Now()

// Factory returns the sysstat widget definition.
func Factory() widget.Factory {
	return widget.Define(Name, func(opts widget.Options) (*widget.Module, error) {
		every, err := widget.ScheduleOption(opts, "every", 5*time.Second)
		if err != nil {
			return nil, err
		}
		host, _ := os.Hostname()
		fs, fsErr := procfs.NewDefaultFS()

		return &widget.Module{
			Markup: widget.Paths{"markup.html"},
			CSS:    widget.Paths{"style.css"},
			Update: "update.js",
			Job: &widget.Job{
				Schedule: every,
				Script: func(_ context.Context, emit widget.EmitFunc) error {
					s := sample(host, time.Now())
					if fsErr == nil {
						hostStats(fs, &s)
					}
					emit(s)
					return nil
				},
			},
		}, nil
	})
}

func sample(host string, now time.Time) Sample {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Sample{
		Host:       host,
		GoVersion:  runtime.Version(),
		Uptime:     durRel(now.Sub(startedAt)),
		Goroutines: runtime.NumGoroutine(),
		CPUs:       runtime.NumCPU(),
		HeapAlloc:  fmtBytes(m.HeapAlloc),
		HeapInuse:  fmtBytes(m.HeapInuse),
		Sys:        fmtBytes(m.Sys),
		NumGC:      m.NumGC,
	}
}

func hostStats(fs procfs.FS, s *Sample) {
	if la, err := fs.LoadAvg(); err == nil {
		s.Load = fmt.Sprintf("%.2f %.2f %.2f", la.Load1, la.Load5, la.Load15)
	}
	mi, err := fs.Meminfo()
	if err != nil || mi.MemTotal == nil || mi.MemAvailable == nil || *mi.MemTotal == 0 {
		return
	}
	// meminfo reports kB.
	total := *mi.MemTotal * 1024
	used := total - *mi.MemAvailable*1024
	s.MemTotal = fmtBytes(total)
	s.MemUsed = fmtBytes(used)
	s.MemPct = int(used * 100 / total)
}

func fmtBytes(n uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1fGB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1fMB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1fKB", float64(n)/KB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}
