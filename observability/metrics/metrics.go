package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Market exposes the Prometheus counters and gauges emitted by the
// dispatcher and keeper crank.
type Market struct {
	InstructionsTotal   *prometheus.CounterVec
	InstructionErrors   *prometheus.CounterVec
	TradesAccepted      prometheus.Counter
	TradesRejected      *prometheus.CounterVec
	CrankAccountsTouched prometheus.Counter
	CrankLiquidations   prometheus.Counter
	CrankForceCloses    prometheus.Counter
	DustSwept           prometheus.Counter
	CapitalTotal        prometheus.Gauge
	InsuranceFund       prometheus.Gauge
	OpenInterestLong    prometheus.Gauge
	OpenInterestShort   prometheus.Gauge
}

var (
	once     sync.Once
	registry *Market
)

// Registry returns the process-wide market metrics, registering them with
// the default Prometheus registerer exactly once.
func Registry() *Market {
	once.Do(func() {
		registry = &Market{
			InstructionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "percolator_instructions_total",
				Help: "Count of dispatched instructions by tag.",
			}, []string{"instruction"}),
			InstructionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "percolator_instruction_errors_total",
				Help: "Count of instruction failures by error kind.",
			}, []string{"error"}),
			TradesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "percolator_trades_accepted_total",
				Help: "Count of accepted trades, CPI and non-CPI combined.",
			}),
			TradesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "percolator_trades_rejected_total",
				Help: "Count of rejected trades by reason.",
			}, []string{"reason"}),
			CrankAccountsTouched: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "percolator_crank_accounts_touched_total",
				Help: "Count of accounts visited across all crank invocations.",
			}),
			CrankLiquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "percolator_crank_liquidations_total",
				Help: "Count of partial liquidation slices applied by the crank.",
			}),
			CrankForceCloses: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "percolator_crank_force_closes_total",
				Help: "Count of full position force-closes applied by the crank.",
			}),
			DustSwept: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "percolator_dust_swept_total",
				Help: "Cumulative base units swept from the dust accumulator.",
			}),
			CapitalTotal: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "percolator_capital_total",
				Help: "Current c_tot aggregate.",
			}),
			InsuranceFund: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "percolator_insurance_fund",
				Help: "Current insurance fund balance.",
			}),
			OpenInterestLong: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "percolator_open_interest_long",
				Help: "Current long open interest.",
			}),
			OpenInterestShort: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "percolator_open_interest_short",
				Help: "Current short open interest.",
			}),
		}
		prometheus.MustRegister(
			registry.InstructionsTotal,
			registry.InstructionErrors,
			registry.TradesAccepted,
			registry.TradesRejected,
			registry.CrankAccountsTouched,
			registry.CrankLiquidations,
			registry.CrankForceCloses,
			registry.DustSwept,
			registry.CapitalTotal,
			registry.InsuranceFund,
			registry.OpenInterestLong,
			registry.OpenInterestShort,
		)
	})
	return registry
}

// ObserveAggregates refreshes the gauges from a slab's current aggregates.
// Callers pass plain values rather than a *slab.Slab so this package has no
// dependency on internal/slab.
func (m *Market) ObserveAggregates(capitalTotal, insuranceFund, oiLong, oiShort uint64) {
	m.CapitalTotal.Set(float64(capitalTotal))
	m.InsuranceFund.Set(float64(insuranceFund))
	m.OpenInterestLong.Set(float64(oiLong))
	m.OpenInterestShort.Set(float64(oiShort))
}
