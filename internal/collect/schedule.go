// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package collect

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/pdiddy/arxiv-zotero/pkg/types"
)

// Schedule runs job on the cron spec until ctx is cancelled, then waits for
// a job in progress to return. With immediate set the job also runs once at
// start. A trigger that fires while the previous job is still running is
// skipped, so runs never overlap.
func Schedule(ctx context.Context, spec string, immediate bool, w io.Writer, job func(context.Context)) error {
	w = syncWriter(w)
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("%w: invalid schedule %q: %v", types.ErrConfiguration, spec, err)
	}

	var running sync.Mutex
	guarded := func() {
		if !running.TryLock() {
			fmt.Fprintln(w, "Previous run still in progress; skipping this trigger")
			return
		}
		defer running.Unlock()
		if ctx.Err() != nil {
			return
		}
		job(ctx)
	}

	c := cron.New(cron.WithParser(parser))
	c.Schedule(sched, cron.FuncJob(guarded))
	c.Start()
	fmt.Fprintf(w, "Watching on schedule %q\n", spec)

	if immediate {
		go guarded()
	}

	<-ctx.Done()
	<-c.Stop().Done()
	// An immediate run is not tracked by cron; wait for it too.
	running.Lock()
	running.Unlock()
	fmt.Fprintln(w, "Watch stopped")
	return nil
}
