/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// RequireSamplesCountInHistogram asserts that the collector gathers exactly one histogram with the number of samples.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Collector, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(hist))
	gotMetrics, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, gotMetrics, 1)
	require.Len(t, gotMetrics[0].GetMetric(), 1)
	require.Equal(t, uint64(wantSamplesCount), gotMetrics[0].GetMetric()[0].GetHistogram().GetSampleCount())
}
