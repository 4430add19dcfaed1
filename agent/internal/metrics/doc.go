// Package metrics exports the last run's report for Prometheus.
//
// The agent is a batch job, so it does not serve /metrics. Textfile renders
// the RunReport with expfmt in the text exposition format and atomically
// replaces a file picked up by node_exporter's textfile collector.
package metrics
