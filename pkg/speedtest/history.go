package speedtest

import (
	"sync"
	"time"
)

// DefaultHistorySize is the number of results kept when NewHistory gets n <= 0.
const DefaultHistorySize = 48

// History is a bounded in-memory ring of recent results.
//
// It is safe for concurrent use.
type History struct {
	mu   sync.Mutex
	buf  []Result
	next int
	full bool
}

func NewHistory(n int) *History {
	if n <= 0 {
		n = DefaultHistorySize
	}
	return &History{buf: make([]Result, n)}
}

// Add appends r, evicting the oldest entry when full.
func (h *History) Add(r Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = r
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// Len returns the number of stored results.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// Recent returns up to n results, oldest first. n <= 0 returns all.
func (h *History) Recent(n int) []Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := h.next
	start := 0
	if h.full {
		size = len(h.buf)
		start = h.next
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Result, 0, n)
	for i := size - n; i < size; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out
}

// Summarize aggregates results newer than now-window. It returns nil when
// there are none.
func (h *History) Summarize(window time.Duration, now time.Time) *Summary {
	cutoff := now.Add(-window)
	var in []Result
	for _, r := range h.Recent(0) {
		if r.Timestamp.After(cutoff) {
			in = append(in, r)
		}
	}
	if len(in) == 0 {
		return nil
	}

	s := &Summary{
		Window:      window.String(),
		Count:       len(in),
		MinDownload: in[0].DownloadMbps,
		MinUpload:   in[0].UploadMbps,
		First:       in[0].Timestamp,
		Last:        in[len(in)-1].Timestamp,
	}
	var dl, ul, ping float64
	for _, r := range in {
		dl += r.DownloadMbps
		ul += r.UploadMbps
		ping += r.PingMs
		s.MaxDownload = max(s.MaxDownload, r.DownloadMbps)
		s.MinDownload = min(s.MinDownload, r.DownloadMbps)
		s.MaxUpload = max(s.MaxUpload, r.UploadMbps)
		s.MinUpload = min(s.MinUpload, r.UploadMbps)
	}
	n := float64(len(in))
	s.AvgDownload = dl / n
	s.AvgUpload = ul / n
	s.AvgPing = ping / n
	return s
}
