// Package scheduler drives per-lane job execution for drover.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/averros/drover/internal/driver"
	"github.com/averros/drover/internal/jobs"
	"github.com/averros/drover/internal/metrics"
	"github.com/averros/drover/internal/models"
)

// Recorder archives terminal jobs. Failures are logged and swallowed.
type Recorder interface {
	RecordJob(job models.Job) error
}

// Scheduler drains each lane's queue one job at a time while lanes progress
// independently of each other. A single run-loop goroutine owns the top-level
// scheduling pass; Kick is the only way to request one, so two passes can
// never overlap.
type Scheduler struct {
	store   *jobs.Store
	events  jobs.Publisher
	metrics *metrics.Registry
	exec    driver.Executor
	archive Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	wg     sync.WaitGroup
}

// New creates a Scheduler. archive may be nil.
func New(store *jobs.Store, events jobs.Publisher, reg *metrics.Registry, exec driver.Executor, archive Recorder) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:   store,
		events:  events,
		metrics: reg,
		exec:    exec,
		archive: archive,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
	}
}

// Start launches the run loop.
func (sch *Scheduler) Start() {
	sch.wg.Add(1)
	go sch.runLoop()
	log.Println("Scheduler started")
}

// Stop cancels in-flight executor calls and waits for every drain to return.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	log.Println("Scheduler stopped")
}

// Kick requests a scheduling pass. It never blocks: if a pass is already
// pending or running, the request coalesces into it.
func (sch *Scheduler) Kick() {
	select {
	case sch.wake <- struct{}{}:
	default:
	}
}

func (sch *Scheduler) runLoop() {
	defer sch.wg.Done()

	// Drain anything queued before Start.
	sch.runPass()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-sch.wake:
			sch.runPass()
		}
	}
}

// runPass claims every pending idle lane and launches a drain goroutine for
// each. The pass never waits on a drain: a lane stuck in a slow executor call
// must not delay claiming work for other lanes. Work that arrives mid-pass is
// covered either by the lane's own FinishDrain re-check or by the wake its
// enqueue left behind.
func (sch *Scheduler) runPass() {
	if sch.ctx.Err() != nil {
		return
	}
	for _, laneID := range sch.store.PendingIdleLanes() {
		if !sch.store.TryActivate(laneID) {
			continue
		}
		sch.wg.Add(1)
		go func(id string) {
			defer sch.wg.Done()
			sch.drainLane(id)
		}(laneID)
	}
}

// drainLane processes a lane's queue to empty, one job at a time. The caller
// must have won TryActivate; FinishDrain releases the claim only once the
// queue is observed empty under the store lock.
func (sch *Scheduler) drainLane(laneID string) {
	for {
		id, ok := sch.store.NextQueued(laneID)
		if !ok {
			if sch.store.FinishDrain(laneID) {
				// New work arrived between the pop and the release.
				continue
			}
			return
		}

		job, ok := sch.store.MarkRunning(id)
		if !ok {
			// Cancelled while queued, or trimmed out of history.
			continue
		}

		sch.events.Publish(jobs.EventJobRunning,
			fmt.Sprintf("job %d (%s) running on %s", job.ID, job.Type, job.LaneID),
			models.Payload{"id": job.ID, "type": string(job.Type), "lane_id": job.LaneID})

		var result models.Payload
		err := sch.metrics.With("job."+string(job.Type), func() error {
			var execErr error
			result, execErr = sch.exec.Execute(sch.ctx, job)
			return execErr
		})

		if err != nil {
			done, ok := sch.store.Fail(id, err.Error())
			if ok {
				sch.events.Publish(jobs.EventJobFailed,
					fmt.Sprintf("job %d failed: %v", id, err),
					models.Payload{"id": id, "lane_id": laneID, "error": err.Error(), "duration_ms": done.DurationMs})
				sch.record(done)
			}
			continue
		}

		done, ok := sch.store.Complete(id, result)
		if ok {
			sch.events.Publish(jobs.EventJobCompleted,
				fmt.Sprintf("job %d completed in %dms", id, done.DurationMs),
				models.Payload{"id": id, "lane_id": laneID, "duration_ms": done.DurationMs})
			sch.record(done)
		}
	}
}

func (sch *Scheduler) record(job *models.Job) {
	if sch.archive == nil || job == nil {
		return
	}
	if err := sch.archive.RecordJob(*job); err != nil {
		log.Printf("archive record failed for job %d: %v", job.ID, err)
	}
}
