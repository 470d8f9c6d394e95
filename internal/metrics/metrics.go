/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes harness progress as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alexandremahdhaoui/uniharness/pkg/result"
	"github.com/alexandremahdhaoui/uniharness/pkg/testdef"
)

const (
	namespace = "uniharness"

	// ResultPassed is the result label of a passed stage or test.
	ResultPassed = "passed"
)

// Registry holds the harness metrics.
type Registry struct {
	reg *prometheus.Registry

	StagesTotal   *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	TestsTotal    *prometheus.CounterVec
	TestDuration  *prometheus.HistogramVec
	TestsPending  prometheus.Gauge
}

// New registers the harness metrics, plus the Go and process collectors, on
// a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	r := &Registry{reg: reg}

	r.StagesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stages_total",
		Help:      "Finished pipeline stages by outcome",
	}, []string{"category", "stage", "result"})

	r.StageDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	r.TestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tests_total",
		Help:      "Finished tests by outcome",
	}, []string{"category", "result"})

	r.TestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "test_duration_seconds",
		Help:      "Duration of whole test pipelines",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"category"})

	r.TestsPending = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tests_pending",
		Help:      "Tests selected for this run that have not finished yet",
	})

	return r
}

// ObserveStage records a finished stage. A failed stage is labelled with its
// failure kind.
func (r *Registry) ObserveStage(def *testdef.Definition, c result.TestCase) {
	r.StagesTotal.WithLabelValues(def.Category, string(c.Stage), outcome(c)).Inc()
	r.StageDuration.WithLabelValues(string(c.Stage)).Observe(c.Duration.Seconds())
}

// ObserveSuite records a finished test.
func (r *Registry) ObserveSuite(s *result.TestSuite) {
	label := ResultPassed
	if f := s.FirstFailure(); f != nil {
		label = string(f.Failure.Kind)
	}
	r.TestsTotal.WithLabelValues(s.Category, label).Inc()
	r.TestDuration.WithLabelValues(s.Category).Observe(s.Duration().Seconds())
	r.TestsPending.Dec()
}

// Expect sets how many tests are about to run.
func (r *Registry) Expect(n int) {
	r.TestsPending.Set(float64(n))
}

// Handler serves the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer returns the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

func outcome(c result.TestCase) string {
	if c.Failure == nil {
		return ResultPassed
	}
	return string(c.Failure.Kind)
}
