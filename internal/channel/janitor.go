package channel

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically sweeps idle sessions out of a store.
type Janitor struct {
	router    *Router
	retention time.Duration
	cron      *cron.Cron
}

// NewJanitor creates a janitor sweeping sessions idle longer than
// retention. A non-positive retention falls back to DefaultRetention.
func NewJanitor(router *Router, retention time.Duration) *Janitor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Janitor{
		router:    router,
		retention: retention,
		cron:      cron.New(),
	}
}

// Start schedules the sweep on the given cron spec (e.g. "@hourly") and
// begins running it.
func (j *Janitor) Start(spec string) error {
	if spec == "" {
		spec = "@hourly"
	}
	_, err := j.cron.AddFunc(spec, func() {
		j.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Sweep runs one cleanup pass immediately.
func (j *Janitor) Sweep(ctx context.Context) {
	removed, err := j.router.CleanupOlderThan(ctx, j.retention)
	if err != nil {
		log.Printf("[Janitor] sweep failed: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("[Janitor] removed %d idle sessions", removed)
	}
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}
