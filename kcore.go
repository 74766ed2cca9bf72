package kcore

import (
	"context"
	"sync/atomic"

	"github.com/hupe1980/kcore/bcache"
	"github.com/hupe1980/kcore/disk"
	"github.com/hupe1980/kcore/kalloc"
)

// Core bundles a block cache and a page allocator built from one
// configuration. The two components share no state.
type Core struct {
	cache  *bcache.Cache
	pages  *kalloc.Allocator
	device disk.Device
	logger *Logger
	closed atomic.Bool
}

// Stats is a snapshot of both components.
type Stats struct {
	Cache bcache.Stats
	Pages kalloc.Stats
}

// Open builds a Core.
func Open(optFns ...Option) (*Core, error) {
	o := applyOptions(optFns)

	cacheOpts := append([]func(*bcache.Options){
		bcache.WithBlockSize(o.blockSize),
		bcache.WithLogger(o.logger.WithComponent("bcache").Logger),
		bcache.WithMetricsObserver(o.metrics),
	}, o.cacheOpts...)

	cache, err := bcache.New(o.device, cacheOpts...)
	if err != nil {
		return nil, err
	}

	allocOpts := append([]func(*kalloc.Options){
		kalloc.WithLogger(o.logger.WithComponent("kalloc").Logger),
		kalloc.WithMetricsObserver(o.metrics),
	}, o.allocOpts...)

	pages, err := kalloc.New(o.physStart, o.physEnd, allocOpts...)
	if err != nil {
		return nil, err
	}

	c := &Core{
		cache:  cache,
		pages:  pages,
		device: o.device,
		logger: o.logger,
	}
	c.logger.LogOpen(context.Background(), c.Stats())

	return c, nil
}

// Cache returns the block cache.
func (c *Core) Cache() *bcache.Cache {
	return c.cache
}

// Pages returns the page allocator.
func (c *Core) Pages() *kalloc.Allocator {
	return c.pages
}

// Device returns the block device behind the cache.
func (c *Core) Device() disk.Device {
	return c.device
}

// Logger returns the configured logger.
func (c *Core) Logger() *Logger {
	return c.logger
}

// Stats returns a snapshot of both components.
func (c *Core) Stats() Stats {
	return Stats{
		Cache: c.cache.Stats(),
		Pages: c.pages.Stats(),
	}
}

// Close releases physical memory. The device is owned by the caller and is
// not closed. Close is idempotent.
func (c *Core) Close() error {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.pages.Close()
	c.logger.LogClose(context.Background(), err)
	return err
}
