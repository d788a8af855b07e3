// Package metrics provides Prometheus metrics for a single fetch invocation.
//
// The tool is a one-shot process, so metrics are not scraped. Instead the
// registry is written once on exit in the node_exporter textfile format:
//
//	reg := prometheus.NewRegistry()
//	fetchMetrics := metrics.NewFetchMetricsWithRegistry(reg)
//	fetcher := fetch.New(cfg, fetch.Options{Metrics: fetchMetrics, ...})
//	...
//	_ = metrics.WriteTextfile("/var/lib/node_exporter/kafka_consumer.prom", reg)
package metrics
