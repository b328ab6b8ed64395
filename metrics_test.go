package wyvern

import (
	"testing"

	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsRecordMatches(t *testing.T) {
	f := newFixture(t)
	f.d.Exchange.metrics = PrometheusMetrics("wyvern_test", "chain", "devnet")

	sell, buy := f.erc20Market()
	first, second := f.erc20Legs(sell, buy, 1)
	_, err := f.match(matcher, first, second)
	require.NoError(t, err)
	first, second = f.erc20Legs(sell, buy, 9)
	_, err = f.match(matcher, first, second)
	require.Error(t, err)

	families, err := stdprometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "wyvern_test_exchange_matches_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" {
					counts[l.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, 1.0, counts["matched"])
	assert.Equal(t, 1.0, counts["rejected"])
}

func TestNopMetrics(t *testing.T) {
	m := NopMetrics()
	m.Matches.With("result", "matched").Add(1)
	m.MatchDuration.Observe(0.5)
	m.Cancellations.Add(1)
}
