// Package metrics defines the Recorder hooks used by the pipeline, the remote
// coordinator, the HTTP retry transport and the build service.
//
// Components default to NoopRecorder and accept a real recorder through a
// With* option:
//
//	reg := prometheus.NewRegistry()
//	rec := metrics.NewPrometheusRecorder(reg)
//	orch := pipeline.New(pipeline.WithRecorder(rec))
//
// HTTPHandler exposes the registry for scraping in daemon mode.
package metrics
