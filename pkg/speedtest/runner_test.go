package speedtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunConfigDefaults(t *testing.T) {
	t.Parallel()
	c := RunConfig{ServerCount: 2, FullTestServers: 5}.withDefaults()
	assert.Equal(t, 2, c.ServerCount)
	assert.Equal(t, 2, c.FullTestServers)
	assert.Equal(t, 4, c.MaxConnections)
	assert.Equal(t, 4, c.PingConcurrency)
	assert.Equal(t, 10*time.Second, c.DialTimeout)
}

func TestAverageAndBest(t *testing.T) {
	t.Parallel()
	rs := []serverTestResult{
		{Download: 100, Upload: 10, Ping: 30 * time.Millisecond},
		{Download: 80, Upload: 20, Ping: 10 * time.Millisecond},
		{Download: 90, Upload: 30, Ping: 10 * time.Millisecond},
	}
	avg := calculateAverage(rs)
	assert.InDelta(t, 90, avg.Download, 0.001)
	assert.InDelta(t, 20, avg.Upload, 0.001)
	assert.Equal(t, 50*time.Millisecond/3, avg.Ping)

	best := findBest(rs)
	require.NotNil(t, best)
	assert.Equal(t, 90.0, best.Download)

	assert.Nil(t, findBest(nil))
	assert.Equal(t, serverTestResult{}, calculateAverage(nil))
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(RunConfig{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
