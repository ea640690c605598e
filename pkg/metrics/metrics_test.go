package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/nameservice/pkg/logging"
)

func TestCollectorsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "nsd")

	m.PacketsSent.WithLabelValues("mdns", "answer").Inc()
	m.PacketsDropped.WithLabelValues(DropMalformed).Add(2)
	m.LiveInterfaces.Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsSent.WithLabelValues("mdns", "answer")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PacketsDropped.WithLabelValues(DropMalformed)))

	n, err := testutil.GatherAndCount(reg, "nsd_live_interfaces")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNopDoesNotRegister(t *testing.T) {
	a := NewNop()
	b := NewNop()
	a.Bursts.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Bursts))
}

func TestServerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "nsd")
	m.Bursts.Inc()

	srv := NewServer("127.0.0.1:0", reg, logging.Wrap(zap.NewNop()))
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "nsd_bursts_total 1"))
}
