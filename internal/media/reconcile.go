package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"mediagw/internal/metadata"
)

// Report lists disagreements between the metadata snapshot and the store.
type Report struct {
	// Orphans are stored objects without a record.
	Orphans []string `json:"orphans"`
	// Dangling are records whose object is missing from the store.
	Dangling []string `json:"dangling"`
	// Pruned is true when the disagreements were repaired.
	Pruned bool `json:"pruned"`
}

// Clean reports whether the snapshot and the store agree.
func (r Report) Clean() bool {
	return len(r.Orphans) == 0 && len(r.Dangling) == 0
}

// Reconcile compares recorded ids with stored objects. With prune set, orphan
// objects are deleted and dangling records dropped. Objects younger than the
// orphan grace period are left alone.
//
// The snapshot is read before the listing so that a record is only reported
// dangling if its object was already gone when the store was listed.
func (c *Controller) Reconcile(ctx context.Context, prune bool) (Report, error) {
	snap := c.store.Load(ctx)

	objects, err := c.pipeline.List(ctx)
	if err != nil {
		return Report{}, err
	}

	cutoff := c.now().Add(-c.orphanGrace)
	stored := make(map[string]struct{}, len(objects))
	report := Report{Orphans: []string{}, Dangling: []string{}}

	for _, obj := range objects {
		stored[obj.Key] = struct{}{}
		if _, ok := snap[obj.Key]; ok {
			continue
		}
		if !obj.LastModified.IsZero() && obj.LastModified.After(cutoff) {
			slog.DebugContext(ctx, "Skipping recent unrecorded object", "key", obj.Key)
			continue
		}
		report.Orphans = append(report.Orphans, obj.Key)
	}

	for id := range snap {
		if _, ok := stored[id]; !ok {
			report.Dangling = append(report.Dangling, id)
		}
	}

	slices.Sort(report.Orphans)
	slices.Sort(report.Dangling)

	slog.InfoContext(ctx, "Reconciled metadata with storage",
		"objects", len(objects),
		"records", len(snap),
		"orphans", len(report.Orphans),
		"dangling", len(report.Dangling),
	)

	if !prune || report.Clean() {
		return report, nil
	}

	var errs []error
	for _, key := range report.Orphans {
		if err := c.pipeline.Remove(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}

	if len(report.Dangling) > 0 {
		err := c.store.Update(ctx, func(cur metadata.Snapshot) error {
			for _, id := range report.Dangling {
				delete(cur, id)
			}
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return report, fmt.Errorf("prune incomplete: %w", errors.Join(errs...))
	}

	report.Pruned = true
	return report, nil
}
