package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordCall("Unregister", "ok")
	m.RecordRebind()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordUpcall("StreamUpdate", true)
}

func TestRegisterAndRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))

	m.RecordCall("ManagerRegister", "ok")
	m.RecordCall("ManagerRegister", "ok")
	m.RecordCall("ManagerRegister", "fault")
	m.RecordRebind()
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordUpcall("ObjectTransfer", true)
	m.RecordUpcall("ObjectTransfer", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RemoteCalls.WithLabelValues("ManagerRegister", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RemoteCalls.WithLabelValues("ManagerRegister", "fault")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProxyRebinds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PropertyCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PropertyCacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Upcalls.WithLabelValues("ObjectTransfer", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Upcalls.WithLabelValues("ObjectTransfer", "rejected")))
}

func TestDoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg))
}
