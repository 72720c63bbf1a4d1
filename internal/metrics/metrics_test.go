package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStoreOp(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordStoreOp("create", ResultOK)
	m.RecordStoreOp("create", ResultOK)
	m.RecordStoreOp("update", ResultNotFound)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.storeOps.WithLabelValues("create", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("update", ResultNotFound)))
}

func TestGauges(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SubscriptionOpened()
	m.SubscriptionOpened()
	m.SubscriptionClosed()
	m.SessionOpened()
	m.RecordReconnect()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.subscriptions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnects))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordStoreOp("create", ResultOK)
	m.SubscriptionOpened()
	m.SessionClosed()
	m.RecordReconnect()
}

func TestNewToleratesDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.NoError(t, err)
}

func TestStoreOpsExposedWithLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordStoreOp("remove", ResultPermission)

	families, err := reg.Gather()
	require.NoError(t, err)

	var family *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "productdesk_store_operations_total" {
			family = f
		}
	}
	require.NotNil(t, family)
	assert.Equal(t, dto.MetricType_COUNTER, family.GetType())
	require.Len(t, family.GetMetric(), 1)

	labels := map[string]string{}
	for _, pair := range family.GetMetric()[0].GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	assert.Equal(t, map[string]string{"op": "remove", "result": ResultPermission}, labels)
	assert.Equal(t, 1.0, family.GetMetric()[0].GetCounter().GetValue())
}
