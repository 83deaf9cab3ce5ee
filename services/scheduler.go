// services/scheduler.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"camly-reward-system/config"
	"camly-reward-system/utils"

	"github.com/go-co-op/gocron/v2"
)

// StartSchedulers wires the background jobs: the stale-claim sweep and the
// periodic reconciliation run. Returns the scheduler so main can shut it down.
func StartSchedulers(ctx context.Context, cfg *config.AppConfig, claims *ClaimService, sync *SyncService) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	// Every minute: fail pending claims older than the settlement timeout so
	// their owners can claim again.
	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			swept, err := claims.SweepStalePending()
			if err != nil {
				utils.Sugar.Errorf("[Scheduler] Stale-claim sweep failed: %v", err)
				return
			}
			if swept > 0 {
				utils.Sugar.Infof("🧹 Swept %d stale pending claim(s)", swept)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	// Periodic reconciliation over all linked wallets.
	interval := time.Duration(cfg.SyncIntervalMin) * time.Minute
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			runCtx, cancel := context.WithTimeout(ctx, interval)
			defer cancel()

			results, err := sync.SyncAll(runCtx, false)
			if err != nil {
				utils.Sugar.Errorf("[Scheduler] Reconciliation run failed: %v", err)
			}
			if len(results) == 0 {
				return
			}

			if cfg.AuditExportEnabled {
				exportAuditReport(runCtx, results)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	utils.Sugar.Infof("⏰ Schedulers started (sweep every 1m, sync every %s)", interval)
	return sched, nil
}

// exportAuditReport ships the run's per-wallet results to R2 for offline
// audit. Export failures are logged only; they never affect the sync itself.
func exportAuditReport(ctx context.Context, results []*SyncResult) {
	payload, err := json.MarshalIndent(map[string]interface{}{
		"generated_at": time.Now().UTC(),
		"results":      results,
	}, "", "  ")
	if err != nil {
		utils.Sugar.Warnf("[Scheduler] Failed to encode audit report: %v", err)
		return
	}

	key := fmt.Sprintf("audits/sync-%s.json", time.Now().UTC().Format("2006-01-02T15-04-05"))
	url, err := utils.UploadAuditReport(ctx, key, payload, "application/json")
	if err != nil {
		utils.Sugar.Warnf("[Scheduler] Audit export failed: %v", err)
		return
	}
	utils.Sugar.Infof("📤 Audit report exported: %s", url)
}
