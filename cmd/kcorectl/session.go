package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/hupe1980/kcore"
	"github.com/hupe1980/kcore/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// session is one opened Core plus everything built around it for a command.
type session struct {
	core    *kcore.Core
	logger  *kcore.Logger
	metrics *kcore.BasicMetricsCollector
	prom    *observability.PrometheusObserver

	closers []func() error
}

func (g *globalOptions) open(ctx context.Context, logOut io.Writer) (*session, error) {
	logger, err := g.logger(logOut)
	if err != nil {
		return nil, err
	}

	s := &session{
		logger:  logger,
		metrics: &kcore.BasicMetricsCollector{},
	}

	collectors := teeCollector{s.metrics}
	if g.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		s.prom, err = observability.NewPrometheusObserver(reg)
		if err != nil {
			return nil, err
		}
		collectors = append(collectors, s.prom)

		stop, err := serveMetrics(g.metricsAddr, reg, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, stop)
	}

	dev, closeDev, err := g.openDevice(ctx)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.closers = append(s.closers, closeDev)

	opts, err := g.coreOptions()
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	opts = append(opts,
		kcore.WithDevice(dev),
		kcore.WithLogger(logger),
		kcore.WithMetricsCollector(collectors),
	)

	s.core, err = kcore.Open(opts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// sampleGauges refreshes gauges the components do not push.
func (s *session) sampleGauges() {
	if s.prom != nil {
		s.prom.SetFreeFrames(s.core.Pages().FreeFrames())
	}
}

// Close closes the core, then the device and metrics server.
func (s *session) Close() error {
	var errs []error
	if s.core != nil {
		errs = append(errs, s.core.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *kcore.Logger) (func() error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}, nil
}

// teeCollector fans events out to several collectors.
type teeCollector []kcore.MetricsCollector

func (t teeCollector) OnLookup(hit bool) {
	for _, c := range t {
		c.OnLookup(hit)
	}
}

func (t teeCollector) OnEvict(bucket int) {
	for _, c := range t {
		c.OnEvict(bucket)
	}
}

func (t teeCollector) OnTransfer(write bool, d time.Duration, err error) {
	for _, c := range t {
		c.OnTransfer(write, d, err)
	}
}

func (t teeCollector) OnAlloc(ok bool) {
	for _, c := range t {
		c.OnAlloc(ok)
	}
}

func (t teeCollector) OnFree(reclaimed bool) {
	for _, c := range t {
		c.OnFree(reclaimed)
	}
}

func (t teeCollector) OnAddRef() {
	for _, c := range t {
		c.OnAddRef()
	}
}
