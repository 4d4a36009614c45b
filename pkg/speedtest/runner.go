package speedtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	st "github.com/showwin/speedtest-go/speedtest"
)

// RunConfig controls how a speedtest run is executed.
type RunConfig struct {
	// Candidate servers to ping, nearest first.
	ServerCount int
	// Number of lowest-latency servers to run a full download/upload test on.
	// Full tests run sequentially.
	FullTestServers int

	SavingMode     bool
	MaxConnections int

	// PingConcurrency caps how many ping tests run concurrently.
	PingConcurrency int

	// DialTimeout bounds each TCP dial made during the run.
	DialTimeout time.Duration

	PacketLossEnabled bool
	PacketLossTimeout time.Duration
}

func (c RunConfig) withDefaults() RunConfig {
	if c.ServerCount <= 0 {
		c.ServerCount = 5
	}
	if c.FullTestServers <= 0 {
		c.FullTestServers = 1
	}
	if c.FullTestServers > c.ServerCount {
		c.FullTestServers = c.ServerCount
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 4
	}
	if c.PingConcurrency <= 0 {
		c.PingConcurrency = 4
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.PacketLossTimeout <= 0 {
		c.PacketLossTimeout = 3 * time.Second
	}
	return c
}

// Runner executes speedtests. A Runner is not safe for concurrent Run calls.
type Runner struct {
	cfg RunConfig
}

func NewRunner(cfg RunConfig) *Runner { return &Runner{cfg: cfg.withDefaults()} }

// Run executes a single speedtest run.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := r.cfg

	ctx, cancel := context.WithCancel(ctx)
	start := time.Now()

	// A dedicated transport so idle connections can be dropped after the run.
	hc, tr := newHTTPClient(cfg)
	// WithUserConfig installs its own transport, so the doer goes last.
	stc := st.New(
		st.WithUserConfig(&st.UserConfig{SavingMode: cfg.SavingMode, MaxConnections: cfg.MaxConnections}),
		st.WithDoer(hc),
	)
	stc.SetNThread(cfg.MaxConnections)
	defer func() {
		cancel()
		stc.Snapshots().Clean()
		stc.Reset()
		tr.CloseIdleConnections()
	}()

	user, err := stc.FetchUserInfoContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	servers, err := stc.FetchServerListContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch server list: %w", err)
	}
	if a := servers.Available(); a != nil {
		servers = *a
	}
	if len(servers) == 0 {
		return nil, errors.New("no servers available")
	}

	sort.Slice(servers, func(i, j int) bool { return servers[i].Distance < servers[j].Distance })
	candidates := servers[:min(cfg.ServerCount, len(servers))]

	pinged := pingCandidates(ctx, candidates, cfg.PingConcurrency)
	if len(pinged) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("all latency tests failed")
	}
	sort.Slice(pinged, func(i, j int) bool { return pinged[i].Latency < pinged[j].Latency })

	full := make([]serverTestResult, 0, cfg.FullTestServers)
	for _, s := range pinged[:min(cfg.FullTestServers, len(pinged))] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.DownloadTestContext(ctx); err != nil {
			continue
		}
		if err := s.UploadTestContext(ctx); err != nil {
			continue
		}
		full = append(full, serverTestResult{
			Server:   s,
			Download: s.DLSpeed.Mbps(),
			Upload:   s.ULSpeed.Mbps(),
			Ping:     s.Latency,
		})
		stc.Snapshots().Clean()
		stc.Reset()
	}
	if len(full) == 0 {
		return nil, errors.New("full test failed for all servers")
	}

	avg := calculateAverage(full)
	chosen := findBest(full)

	pl := 0.0
	if cfg.PacketLossEnabled {
		host := chosen.Server.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		plCtx, plCancel := context.WithTimeout(ctx, cfg.PacketLossTimeout)
		pl = packetLoss(plCtx, host)
		plCancel()
	}

	// Prefer the chosen server's jitter; fall back to a rough estimate.
	jitterMs := float64(chosen.Server.Jitter.Milliseconds())
	if jitterMs <= 0 {
		jitterMs = math.Max(0.1, float64(avg.Ping.Milliseconds())*0.1)
	}

	return &Result{
		Timestamp:      time.Now(),
		DownloadMbps:   avg.Download,
		UploadMbps:     avg.Upload,
		PingMs:         float64(avg.Ping.Milliseconds()),
		JitterMs:       jitterMs,
		PacketLoss:     pl,
		ISP:            user.Isp,
		ServerName:     chosen.Server.Sponsor,
		ServerCountry:  chosen.Server.Country,
		Duration:       time.Since(start),
		CandidateCount: len(candidates),
		FullTestCount:  len(full),
	}, nil
}

func pingCandidates(ctx context.Context, servers []*st.Server, maxConcurrent int) []*st.Server {
	sem := make(chan struct{}, maxConcurrent)
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		pinged = make([]*st.Server, 0, len(servers))
	)
	for _, s := range servers {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			if err := s.PingTestContext(ctx, nil); err != nil || s.Latency <= 0 {
				return
			}
			mu.Lock()
			pinged = append(pinged, s)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return pinged
}

type serverTestResult struct {
	Server   *st.Server
	Download float64
	Upload   float64
	Ping     time.Duration
}

func calculateAverage(results []serverTestResult) serverTestResult {
	if len(results) == 0 {
		return serverTestResult{}
	}
	var totalDL, totalUL float64
	var totalPing time.Duration
	for _, r := range results {
		totalDL += r.Download
		totalUL += r.Upload
		totalPing += r.Ping
	}
	count := len(results)
	return serverTestResult{
		Download: totalDL / float64(count),
		Upload:   totalUL / float64(count),
		Ping:     totalPing / time.Duration(count),
	}
}

// findBest prioritizes lower ping, then higher download speed.
func findBest(results []serverTestResult) *serverTestResult {
	if len(results) == 0 {
		return nil
	}
	best := &results[0]
	for i := 1; i < len(results); i++ {
		if results[i].Ping < best.Ping || (results[i].Ping == best.Ping && results[i].Download > best.Download) {
			best = &results[i]
		}
	}
	return best
}

func packetLoss(ctx context.Context, host string) float64 {
	if host == "" {
		return 0
	}
	pla := st.NewPacketLossAnalyzer(nil)
	pl, err := pla.RunMultiWithContext(ctx, []string{host})
	if err != nil || pl == nil {
		return 0
	}
	return pl.LossPercent()
}

func newHTTPClient(cfg RunConfig) (*http.Client, *http.Transport) {
	d := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           d.DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   max(cfg.MaxConnections, 2),
		IdleConnTimeout:       10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: tr}, tr
}
