package agent

import (
	"context"
	"time"

	"github.com/zfskit/exportd/share/nfs"

	"github.com/rs/zerolog/log"
)

// StartReconciler periodically re-publishes shares whose records have gone
// missing from the exports file (e.g. after a manual edit) and refreshes the
// exported-mountpoints gauge.
func (a *Agent) StartReconciler(ctx context.Context, interval time.Duration) {
	go func() {
		a.reconcile(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.reconcile(ctx)
			}
		}
	}()
}

func (a *Agent) reconcile(ctx context.Context) {
	var restored int
	for _, s := range a.shares.All() {
		if s.Options == "" || a.nfs.IsShared(s) {
			continue
		}
		log.Warn().Str("mountpoint", s.Mountpoint).Msg("reconciler: re-enabling missing share")
		if err := a.nfs.EnableShare(s); err != nil {
			log.Error().Err(err).Str("mountpoint", s.Mountpoint).Msg("reconciler: failed to re-enable share")
			continue
		}
		restored++
	}

	entries, err := a.nfs.ListExports()
	if err != nil {
		log.Error().Err(err).Msg("reconciler: failed to list exports")
		return
	}
	mountpoints := map[string]bool{}
	for _, e := range entries {
		mountpoints[e.Mountpoint] = true
	}
	nfs.ExportedMountpoints.Set(float64(len(mountpoints)))

	if restored > 0 {
		if err := a.nfs.CommitShares(ctx); err != nil {
			log.Error().Err(err).Msg("reconciler: reload failed")
			return
		}
		log.Info().Int("restored", restored).Msg("reconciler: reconciliation complete")
	}
}
