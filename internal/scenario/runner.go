package scenario

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/zoobzio/spanz"
)

// Runner plays scenarios against a tracer.
type Runner struct {
	Tracer *spanz.Tracer
	Logger *slog.Logger
}

// play is the state of one Run.
type play struct {
	ctx      context.Context
	tracer   *spanz.Tracer
	logger   *slog.Logger
	detached sync.WaitGroup
}

// frame is an open step on the path from the top of the scenario.
type frame struct {
	label  string
	handle *spanz.Handle
}

// Run plays sc and returns once every step, detached ones included, has
// ended. Holds are cut short when ctx is done; spans still end, and Run
// returns ctx.Err().
func (r *Runner) Run(ctx context.Context, sc *Scenario) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &play{ctx: ctx, tracer: r.Tracer, logger: logger}

	logger.Info("scenario started", "name", sc.Name, "spans", sc.Count())
	start := r.Tracer.Clock().Now()

	cur := r.Tracer.NewCursor()
	p.children(cur, sc.Steps, nil)
	p.detached.Wait()
	if err := cur.Close(); err != nil {
		logger.Warn("scenario cursor closed with open spans", "error", err)
	}

	logger.Info("scenario finished", "name", sc.Name, "elapsed", r.Tracer.Clock().Since(start))
	return ctx.Err()
}

// children starts steps relative to the enclosing path and waits for the
// spawned ones.
func (p *play) children(c *spanz.Cursor, steps []Step, path []frame) {
	var joined sync.WaitGroup
	for i := range steps {
		step := &steps[i]
		switch step.Mode {
		case ModeSpawn:
			joined.Add(1)
			p.tracer.Go(func(c *spanz.Cursor) {
				defer joined.Done()
				p.step(c, step, path)
			})
		case ModeDetach:
			p.detached.Add(1)
			p.tracer.Go(func(c *spanz.Cursor) {
				defer p.detached.Done()
				p.step(c, step, path)
			})
		default:
			p.step(c, step, path)
		}
	}
	joined.Wait()
}

func (p *play) step(c *spanz.Cursor, s *Step, path []frame) {
	var h *spanz.Handle
	switch parent := parentOf(s, path); {
	case s.Root:
		h = c.StartRoot(s.Label)
	case parent != nil:
		h = c.StartFrom(parent, s.Label)
	default:
		h = c.Start(s.Label)
	}
	defer h.End()

	p.logger.Debug("step opened", "label", s.Label, "mode", s.Mode, "thread", c.ID())

	path = append(path[:len(path):len(path)], frame{label: s.Label, handle: h})
	p.children(c, s.Steps, path)
	p.hold(s.hold)
}

// parentOf returns the handle a step parents on. Nil means the cursor's
// current span.
func parentOf(s *Step, path []frame) *spanz.Handle {
	if s.Parent != "" {
		for i := len(path) - 1; i >= 0; i-- {
			if path[i].label == s.Parent {
				return path[i].handle
			}
		}
	}
	if len(path) == 0 {
		return nil
	}
	return path[len(path)-1].handle
}

func (p *play) hold(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-p.tracer.Clock().After(d):
	case <-p.ctx.Done():
	}
}
