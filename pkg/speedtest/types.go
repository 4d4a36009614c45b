// Package speedtest measures link throughput with speedtest.net servers.
package speedtest

import "time"

// Result is a single speedtest measurement.
type Result struct {
	Timestamp     time.Time `json:"timestamp"`
	DownloadMbps  float64   `json:"download_mbps"`
	UploadMbps    float64   `json:"upload_mbps"`
	PingMs        float64   `json:"ping_ms"`
	JitterMs      float64   `json:"jitter_ms"`
	PacketLoss    float64   `json:"packet_loss"`
	ISP           string    `json:"isp"`
	ServerName    string    `json:"server_name"`
	ServerCountry string    `json:"server_country"`

	Duration       time.Duration `json:"-"`
	CandidateCount int           `json:"-"`
	FullTestCount  int           `json:"-"`
}

// Summary aggregates the results of a time window.
type Summary struct {
	Window      string    `json:"window"`
	Count       int       `json:"count"`
	AvgDownload float64   `json:"avg_download_mbps"`
	AvgUpload   float64   `json:"avg_upload_mbps"`
	AvgPing     float64   `json:"avg_ping_ms"`
	MaxDownload float64   `json:"max_download_mbps"`
	MinDownload float64   `json:"min_download_mbps"`
	MaxUpload   float64   `json:"max_upload_mbps"`
	MinUpload   float64   `json:"min_upload_mbps"`
	First       time.Time `json:"first"`
	Last        time.Time `json:"last"`
}
