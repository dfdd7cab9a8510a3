package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistryIsASingleton(t *testing.T) {
	a := Registry()
	b := Registry()
	require.Same(t, a, b)
}

func TestObserveAggregatesSetsGauges(t *testing.T) {
	m := Registry()
	m.ObserveAggregates(100, 20, 7, 3)
	require.Equal(t, float64(100), testutil.ToFloat64(m.CapitalTotal))
	require.Equal(t, float64(20), testutil.ToFloat64(m.InsuranceFund))
	require.Equal(t, float64(7), testutil.ToFloat64(m.OpenInterestLong))
	require.Equal(t, float64(3), testutil.ToFloat64(m.OpenInterestShort))
}
