package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/robfig/cron/v3"
)

type LoopVars struct {
	// Interval is the pause between the end of one pass and the
	// start of the next. Schedule, if set, takes precedence.
	Interval time.Duration
	Schedule cron.Schedule
	RunOnce  bool

	initOnce sync.Once
	passSoon chan struct{}
}

func (loop *LoopVars) ensureInit() {
	loop.initOnce.Do(func() {
		loop.passSoon = make(chan struct{}, 1)
	})
}

// next says when the pass after one finishing at now should start.
func (loop *LoopVars) next(now time.Time) time.Time {
	if loop.Schedule != nil {
		return loop.Schedule.Next(now)
	}
	return now.Add(loop.Interval)
}

// Ask for a pass, or if there's one waiting, let that happen.
func (loop *LoopVars) AskForPass() {
	loop.ensureInit()
	select {
	case loop.passSoon <- struct{}{}:
	default:
	}
}

// Loop runs passes until stop is closed. A pass in progress is always
// allowed to finish; stop is only noticed between passes. With
// RunOnce, Loop returns after the first pass, with its error.
// Otherwise errors are logged and the next pass tries again.
func (d *Daemon) Loop(stop chan struct{}, wg *sync.WaitGroup, logger log.Logger) error {
	defer wg.Done()
	d.ensureInit()

	for {
		select {
		case <-stop:
			logger.Log("stopping", "true")
			return nil
		default:
		}

		err := d.Pass(context.Background())
		if d.RunOnce {
			return err
		}
		if err != nil {
			level.Error(logger).Log("msg", "pass failed", "err", err)
		}

		// asking during a pass should not cause another right after
		select {
		case <-d.passSoon:
		default:
		}

		next := d.next(time.Now())
		level.Debug(logger).Log("msg", "sleeping", "until", next.UTC().Format(time.RFC3339))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-stop:
			timer.Stop()
			logger.Log("stopping", "true")
			return nil
		case <-d.passSoon:
			timer.Stop()
			level.Info(logger).Log("msg", "pass requested")
		case <-timer.C:
		}
	}
}
