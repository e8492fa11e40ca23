package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/autobrr/litebase/internal/engine"
	"github.com/autobrr/litebase/internal/realtime"
	"github.com/autobrr/litebase/internal/scheduler"
)

// LitebaseCollector exposes the runtime shape spec.md §5's concurrency
// model calls out as worth observing: how backed-up the writer queue is,
// how much of the writer's time is spent actually executing jobs, how
// many realtime subscribers are live, and how the scheduler's built-in
// jobs have been running.
type LitebaseCollector struct {
	eng   *engine.Engine
	hub   *realtime.Hub
	sched *scheduler.Registry

	queueDepthDesc        *prometheus.Desc
	writerBusySecondsDesc *prometheus.Desc
	subscriptionsDesc     *prometheus.Desc
	jobDurationDesc       *prometheus.Desc
	jobLastSuccessDesc    *prometheus.Desc
}

func NewLitebaseCollector(eng *engine.Engine, hub *realtime.Hub, sched *scheduler.Registry) *LitebaseCollector {
	return &LitebaseCollector{
		eng:   eng,
		hub:   hub,
		sched: sched,

		queueDepthDesc: prometheus.NewDesc(
			"litebase_engine_write_queue_depth",
			"Number of write jobs currently queued on the engine's writer channel",
			nil, nil,
		),
		writerBusySecondsDesc: prometheus.NewDesc(
			"litebase_engine_writer_busy_seconds_total",
			"Cumulative time the writer goroutine has spent executing jobs",
			nil, nil,
		),
		subscriptionsDesc: prometheus.NewDesc(
			"litebase_realtime_subscriptions",
			"Number of live realtime subscriptions across all tables",
			nil, nil,
		),
		jobDurationDesc: prometheus.NewDesc(
			"litebase_scheduler_job_duration_seconds",
			"Duration of the most recent run of a scheduler job",
			[]string{"job"}, nil,
		),
		jobLastSuccessDesc: prometheus.NewDesc(
			"litebase_scheduler_job_last_run_success",
			"Whether the most recent run of a scheduler job succeeded (1) or failed (0)",
			[]string{"job"}, nil,
		),
	}
}

func (c *LitebaseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepthDesc
	ch <- c.writerBusySecondsDesc
	ch <- c.subscriptionsDesc
	ch <- c.jobDurationDesc
	ch <- c.jobLastSuccessDesc
}

func (c *LitebaseCollector) Collect(ch chan<- prometheus.Metric) {
	if c.eng != nil {
		ch <- prometheus.MustNewConstMetric(c.queueDepthDesc, prometheus.GaugeValue, float64(c.eng.QueueDepth()))
		ch <- prometheus.MustNewConstMetric(c.writerBusySecondsDesc, prometheus.CounterValue, c.eng.WriterBusySeconds())
	}

	if c.hub != nil {
		ch <- prometheus.MustNewConstMetric(c.subscriptionsDesc, prometheus.GaugeValue, float64(c.hub.SubscriberCount()))
	}

	if c.sched != nil {
		for name, res := range c.sched.Results() {
			ch <- prometheus.MustNewConstMetric(c.jobDurationDesc, prometheus.GaugeValue, res.Duration.Seconds(), name)

			success := 1.0
			if res.Err != nil {
				success = 0.0
			}
			ch <- prometheus.MustNewConstMetric(c.jobLastSuccessDesc, prometheus.GaugeValue, success, name)
		}
	}
}
