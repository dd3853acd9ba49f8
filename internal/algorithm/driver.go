package algorithm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/fieldx/internal/cluster"
	"github.com/Faultbox/fieldx/internal/incremental"
	"github.com/Faultbox/fieldx/internal/metrics"
)

// DriverOptions configures a driver.
type DriverOptions struct {
	// Tick bounds the work done between two flushes. At least one unit
	// of work runs per tick whatever the budget.
	Tick time.Duration
	// MaxElements stops the run once the sink holds that many
	// primitives; 0 means no limit.
	MaxElements int
	// Master, when set, is flushed after every tick.
	Master *cluster.Master
	// OnTick is called after every tick.
	OnTick  func(Result)
	Clock   incremental.Clock
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Result summarises a run.
type Result struct {
	Ticks      int
	Primitives int
	// Complete is false when the run stopped on MaxElements or the
	// context before the element ran out of work.
	Complete bool
}

// Driver runs an element tick by tick.
type Driver struct {
	el   Element
	opts DriverOptions
	log  *zap.Logger
}

// NewDriver creates a driver for el.
func NewDriver(el Element, opts DriverOptions) *Driver {
	if opts.Tick <= 0 {
		opts.Tick = 20 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = incremental.SystemClock
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Driver{el: el, opts: opts, log: log.Named("driver")}
}

func (d *Driver) predicate() incremental.Predicate {
	pred := incremental.Any(incremental.Steps(1), incremental.DeadlineWithClock(d.opts.Clock, d.opts.Tick))
	if d.opts.MaxElements > 0 {
		pred = incremental.All(incremental.MaxElements(d.el.Sink(), d.opts.MaxElements), pred)
	}
	return pred
}

func (d *Driver) limited() bool {
	return d.opts.MaxElements > 0 && d.el.Sink().NumPrimitives() >= d.opts.MaxElements
}

// Run starts the element and keeps it going until it completes, hits
// MaxElements or ctx ends. With a master the stream is begun before the
// first tick and finished after the last one, also on cancellation.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	var res Result
	m := d.opts.Master
	if m != nil {
		if err := m.Begin(ctx); err != nil {
			return res, err
		}
	}
	defer d.el.Finish()

	name := d.el.Name()
	d.log.Info("run started", zap.String("algorithm", name), zap.Duration("tick", d.opts.Tick))
	for ctx.Err() == nil {
		start := d.opts.Clock.Now()
		if res.Ticks == 0 {
			res.Complete = d.el.Start(d.predicate())
		} else {
			res.Complete = d.el.Continue(d.predicate())
		}
		res.Ticks++
		res.Primitives = d.el.Sink().NumPrimitives()
		d.opts.Metrics.ObserveTick(name, d.opts.Clock.Now().Sub(start))

		if m != nil {
			if err := m.Flush(ctx); err != nil {
				return res, err
			}
		}
		if d.opts.OnTick != nil {
			d.opts.OnTick(res)
		}
		if res.Complete || d.limited() {
			break
		}
	}

	d.log.Info("run finished",
		zap.String("algorithm", name),
		zap.Int("ticks", res.Ticks),
		zap.Int("primitives", res.Primitives),
		zap.Bool("complete", res.Complete))
	if m != nil {
		// The replicas get a consistent ending even when ctx is done.
		if err := m.Finish(context.WithoutCancel(ctx)); err != nil {
			return res, err
		}
	}
	return res, ctx.Err()
}
