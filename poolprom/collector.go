// Package poolprom exports c3p0 pool statistics as Prometheus metrics.
package poolprom

import (
	"github.com/oss-evaluation-repository/swaldman-c3p0"
	"github.com/prometheus/client_golang/prometheus"
)

// StatSource is implemented by *c3p0.Manager.
type StatSource interface {
	Stat() c3p0.Stat
}

// Collector is a prometheus.Collector that takes a snapshot of a StatSource on every scrape.
type Collector struct {
	source StatSource

	connections     *prometheus.Desc
	waiters         *prometheus.Desc
	broken          *prometheus.Desc
	acquired        *prometheus.Desc
	destroyed       *prometheus.Desc
	reclaimed       *prometheus.Desc
	failedCheckouts *prometheus.Desc
	failedCheckins  *prometheus.Desc
	failedIdleTests *prometheus.Desc
	statements      *prometheus.Desc
	deferredCloses  *prometheus.Desc
	runnerWorkers   *prometheus.Desc
	runnerTasks     *prometheus.Desc
}

// NewCollector returns a Collector for source. Every metric is prefixed with namespace and carries the data source
// name as a constant label.
func NewCollector(source StatSource, namespace string) *Collector {
	constLabels := prometheus.Labels{"data_source": source.Stat().DataSourceName}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, constLabels)
	}

	return &Collector{
		source:          source,
		connections:     desc("connections", "Number of pooled connections by state.", "user", "state"),
		waiters:         desc("checkout_waiters", "Number of callers waiting to check out a connection.", "user"),
		broken:          desc("broken", "1 if the pool is broken after exhausting acquisition attempts.", "user"),
		acquired:        desc("acquired_connections_total", "Number of physical connections opened.", "user"),
		destroyed:       desc("destroyed_connections_total", "Number of physical connections closed.", "user"),
		reclaimed:       desc("reclaimed_connections_total", "Number of connections reclaimed after not being returned in time.", "user"),
		failedCheckouts: desc("failed_checkouts_total", "Number of connections discarded during checkout.", "user"),
		failedCheckins:  desc("failed_checkins_total", "Number of connections discarded during checkin.", "user"),
		failedIdleTests: desc("failed_idle_tests_total", "Number of idle connections that failed their test.", "user"),
		statements:      desc("cached_statements", "Number of cached prepared statements by state.", "user", "state"),
		deferredCloses:  desc("deferred_statement_closes", "Number of statement closes waiting for their connection to be released.", "user"),
		runnerWorkers:   desc("runner_workers", "Number of background workers by state.", "runner", "state"),
		runnerTasks:     desc("runner_pending_tasks", "Number of background tasks waiting for a worker.", "runner"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stat()

	for _, ps := range s.Pools {
		user := ps.User
		gauge := func(desc *prometheus.Desc, v float64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, append([]string{user}, labels...)...)
		}
		counter := func(desc *prometheus.Desc, v int64) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), user)
		}

		gauge(c.connections, float64(ps.NumIdleConnections), "idle")
		gauge(c.connections, float64(ps.NumBusyConnections-ps.NumUnclosedOrphanedConnections), "busy")
		gauge(c.connections, float64(ps.NumUnclosedOrphanedConnections), "orphaned")
		gauge(c.waiters, float64(ps.NumThreadsAwaitingCheckout))
		gauge(c.broken, boolToFloat(ps.Broken))

		counter(c.acquired, ps.NumAcquiredConnections)
		counter(c.destroyed, ps.NumDestroyedConnections)
		counter(c.reclaimed, ps.NumReclaimedConnections)
		counter(c.failedCheckouts, ps.NumFailedCheckouts)
		counter(c.failedCheckins, ps.NumFailedCheckins)
		counter(c.failedIdleTests, ps.NumFailedIdleTests)

		gauge(c.statements, float64(ps.NumStatements-ps.NumStatementsCheckedOut), "idle")
		gauge(c.statements, float64(ps.NumStatementsCheckedOut), "checked_out")
		if ps.StatementDestroyerNumDeferredCloses >= 0 {
			gauge(c.deferredCloses, float64(ps.StatementDestroyerNumDeferredCloses))
		}
	}

	runner := func(name string, workers, active, pending int) {
		ch <- prometheus.MustNewConstMetric(c.runnerWorkers, prometheus.GaugeValue, float64(active), name, "active")
		ch <- prometheus.MustNewConstMetric(c.runnerWorkers, prometheus.GaugeValue, float64(workers-active), name, "idle")
		ch <- prometheus.MustNewConstMetric(c.runnerTasks, prometheus.GaugeValue, float64(pending), name)
	}
	runner("helper", s.HelperRunner.Workers, s.HelperRunner.Active, s.HelperRunner.Pending)
	if d := s.DeferredCloseRunner; d != nil {
		runner("deferred_close", d.Workers, d.Active, d.Pending)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
