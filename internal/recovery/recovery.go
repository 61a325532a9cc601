// Package recovery reconciles persisted call state after a restart.
//
// Live calls do not survive a process restart: the telephony gateway drops
// the media stream when the webhooks stop answering. What does survive is the
// periodic snapshot of each live session. On startup the reconciler closes
// out those orphaned snapshots so reporting never shows calls that are still
// "active" weeks after a crash.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AKillionVoice/voicepipe/internal/models"
	"github.com/AKillionVoice/voicepipe/internal/store"
)

// EndReasonRestart marks records closed by the reconciler rather than by the
// gateway or the reaper.
const EndReasonRestart = "service restart"

// maxRecordsScanned bounds one reconciliation pass. Anything beyond this is
// old enough that a later pass (or manual cleanup) can handle it.
const maxRecordsScanned = 1000

// Reconciler closes out orphaned call records at startup.
type Reconciler struct {
	store store.Store
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(st store.Store) *Reconciler {
	return &Reconciler{store: st}
}

// Run scans recent call records and marks every non-terminal one as ended.
// Returns the number of records reconciled.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	records, err := r.store.ListCallRecords(maxRecordsScanned)
	if err != nil {
		return 0, fmt.Errorf("failed to list call records: %w", err)
	}

	var reconciled int
	for i := range records {
		if ctx.Err() != nil {
			return reconciled, ctx.Err()
		}
		record := &records[i]
		if record.Status == models.SessionStatusEnded || record.Status == models.SessionStatusReaped {
			continue
		}

		record.Status = models.SessionStatusEnded
		record.EndReason = EndReasonRestart
		if err := r.store.SaveCallRecord(record); err != nil {
			slog.Error("Reconciler.Run: failed to close orphaned record", "error", err, "callID", record.CallID)
			continue
		}
		reconciled++
		slog.Info("Reconciler.Run: closed orphaned call record",
			"callID", record.CallID, "lastActivity", record.LastActivity.Format(time.RFC3339))
	}

	if reconciled > 0 {
		slog.Info("Reconciler.Run: reconciliation complete", "reconciled", reconciled, "scanned", len(records))
	}
	return reconciled, nil
}
