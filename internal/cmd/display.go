package cmd

import (
	"fmt"
	"time"

	"github.com/kt3k/vmsync/internal/model"
	"github.com/kt3k/vmsync/internal/reconcile"
	"github.com/kt3k/vmsync/internal/registry"
)

// displayStates prints every registered provider's auth/sync state,
// marking the current one.
//
//nolint:forbidigo // CLI user output function
func displayStates(states []registry.ServiceState, current string) {
	if len(states) == 0 {
		fmt.Println("No providers registered.")
		return
	}
	fmt.Println("Providers:")
	for _, s := range states {
		marker := " "
		if s.Name == current {
			marker = "*"
		}
		fmt.Printf(" %s %s (%s)  auth=%s sync=%s", marker, s.Name, s.DisplayName, s.Auth, s.Sync)
		if s.Progress.Total > 0 {
			fmt.Printf("  progress=%d/%d", s.Progress.Finished, s.Progress.Total)
		}
		if s.LastSync > 0 {
			fmt.Printf("  lastSync=%s", time.UnixMilli(s.LastSync).Format(time.RFC3339))
		}
		fmt.Println()
	}
}

// displayStatus prints the current provider plus every provider's state and
// the local script count.
//
//nolint:forbidigo // CLI user output function
func displayStatus(states []registry.ServiceState, current string, hasCurrent bool, localScripts int) {
	fmt.Println("vmsync status")
	fmt.Println()
	if hasCurrent {
		fmt.Printf("Current provider: %s\n", current)
	} else {
		fmt.Println("Current provider: none (run 'use <name>')")
	}
	fmt.Printf("Local scripts: %d\n\n", localScripts)
	displayStates(states, current)
}

// displayScripts lists local scripts with their URI and position.
//
//nolint:forbidigo // CLI user output function
func displayScripts(scripts []*model.Script) {
	if len(scripts) == 0 {
		fmt.Println("No local scripts.")
		return
	}
	for _, s := range scripts {
		enabled := "enabled"
		if !s.Enabled() {
			enabled = "disabled"
		}
		fmt.Printf("  [%d] %s (%s, %s)\n", s.Props.Position, s.Props.URI, s.ID, enabled)
	}
}

// displayPlan prints a dry-run reconciliation plan grouped by bucket.
//
//nolint:forbidigo // CLI user output function
func displayPlan(plan *reconcile.Plan) {
	if plan.FirstSync {
		fmt.Println("First sync (no prior local sync timestamp).")
	}
	if len(plan.Items) == 0 {
		fmt.Println("Nothing to do.")
		return
	}

	byBucket := plan.ByBucket()
	buckets := []reconcile.Bucket{
		reconcile.BucketPutLocal,
		reconcile.BucketPutRemote,
		reconcile.BucketDelRemote,
		reconcile.BucketDelLocal,
		reconcile.BucketUpdateLocal,
	}
	for _, b := range buckets {
		items := byBucket[b]
		if len(items) == 0 {
			continue
		}
		fmt.Printf("%s (%d):\n", b, len(items))
		for _, item := range items {
			fmt.Printf("  - %s\n", item.URI)
		}
	}
	if plan.RemoteChanged {
		fmt.Println("\nRemote meta will be updated.")
	}
}
