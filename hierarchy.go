// Package memkit builds hierarchies of allocators from a Config, such as
// an arena carved from a buddy allocator carved from the Go heap, and tears
// them down in reverse order.
package memkit

import (
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/QuangTung97/memkit/allocator"
	"github.com/QuangTung97/memkit/tracking"
)

// Layer is one built allocator of a Hierarchy.
type Layer struct {
	Name string
	Kind Kind

	// Allocator is what clients and child layers use: the concrete
	// allocator, possibly tracked then locked.
	Allocator allocator.Allocator
	// Tracker is nil unless the layer is tracked.
	Tracker *tracking.Tracker

	closer io.Closer
}

// Hierarchy owns the layers built from a Config.
type Hierarchy struct {
	layers []*Layer
	byName map[string]*Layer
	logger log.Logger
}

type buildOptions struct {
	logger  log.Logger
	metrics *tracking.Metrics
}

// Option configures Build.
type Option func(*buildOptions)

// WithLogger ...
func WithLogger(logger log.Logger) Option {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// WithRegisterer registers the metrics of tracked layers with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *buildOptions) {
		o.metrics = tracking.NewMetrics(r)
	}
}

// Build creates the layers of cfg in order. When a layer fails the layers
// already built are closed.
func Build(cfg Config, opts ...Option) (*Hierarchy, error) {
	o := buildOptions{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = tracking.NewMetrics(nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	h := &Hierarchy{
		byName: make(map[string]*Layer, len(cfg.Layers)),
		logger: o.logger,
	}
	for i := range cfg.Layers {
		lc := &cfg.Layers[i]

		var parent *Layer
		if lc.Parent != "" {
			parent = h.byName[lc.Parent]
		} else if i > 0 {
			parent = h.layers[i-1]
		}

		l, err := buildLayer(lc, parent, o)
		if err != nil {
			err = errors.Wrapf(err, "memkit: build layer %q", lc.Name)
			return nil, multierr.Append(err, h.Close())
		}
		h.layers = append(h.layers, l)
		h.byName[l.Name] = l

		level.Debug(o.logger).Log("msg", "allocator layer built", "layer", l.Name, "kind", l.Kind,
			"size", lc.Size.HumanReadable(), "alignment", l.Allocator.Alignment(), "tracked", lc.Track)
	}

	level.Info(o.logger).Log("msg", "allocator hierarchy built", "layers", len(h.layers))
	return h, nil
}

func buildLayer(lc *LayerConfig, parent *Layer, o buildOptions) (*Layer, error) {
	l := &Layer{Name: lc.Name, Kind: lc.Kind}

	var base allocator.Allocator
	if parent != nil {
		base = parent.Allocator
	}

	switch lc.Kind {
	case KindSystem:
		if lc.Alignment != 0 {
			l.Allocator = allocator.NewSystemAllocator(lc.Alignment)
		} else {
			l.Allocator = allocator.System
		}

	case KindPage:
		l.Allocator = allocator.NewPageAllocator()

	case KindBuddy:
		b, err := allocator.NewBuddyFrom(base, int(lc.Size), int(lc.MinChunkSize), lc.options()...)
		if err != nil {
			return nil, err
		}
		l.Allocator, l.closer = b, b

	case KindArena:
		a, err := allocator.NewArenaFrom(base, int(lc.Size), lc.options()...)
		if err != nil {
			return nil, err
		}
		l.Allocator, l.closer = a, a

	case KindPool:
		p, err := allocator.NewPoolFrom(base, int(lc.BlockSize), lc.Blocks, lc.options()...)
		if err != nil {
			return nil, err
		}
		l.Allocator, l.closer = p, p
	}

	if lc.Track {
		l.Tracker = tracking.New(lc.Name, l.Allocator,
			tracking.WithLogger(log.With(o.logger, "layer", lc.Name)),
			tracking.WithMetrics(o.metrics))
		l.Allocator = l.Tracker
	}
	if lc.Locked {
		l.Allocator = allocator.NewLocked(l.Allocator)
	}
	return l, nil
}

// Allocator returns the allocator of the named layer.
func (h *Hierarchy) Allocator(name string) (allocator.Allocator, bool) {
	l, ok := h.byName[name]
	if !ok {
		return nil, false
	}
	return l.Allocator, true
}

// Layer returns the named layer.
func (h *Hierarchy) Layer(name string) (*Layer, bool) {
	l, ok := h.byName[name]
	return l, ok
}

// Top returns the allocator of the last layer.
func (h *Hierarchy) Top() allocator.Allocator {
	if len(h.layers) == 0 {
		return nil
	}
	return h.layers[len(h.layers)-1].Allocator
}

// Close tears the layers down from the last one built. Each tracked layer
// reports its leaks first. Every layer is closed even when some fail.
func (h *Hierarchy) Close() error {
	var result error
	for i := len(h.layers) - 1; i >= 0; i-- {
		l := h.layers[i]
		if l.Tracker != nil {
			result = multierr.Append(result, l.Tracker.Leaks())
		}
		if l.closer == nil {
			continue
		}
		if err := l.closer.Close(); err != nil {
			level.Error(h.logger).Log("msg", "failed to close allocator layer", "layer", l.Name, "err", err)
			result = multierr.Append(result, errors.Wrapf(err, "memkit: close layer %q", l.Name))
		}
	}
	h.layers = nil
	h.byName = map[string]*Layer{}
	return result
}
