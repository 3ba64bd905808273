package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
)

// CallbackRestorer re-arms a persisted callback in memory without persisting it again.
type CallbackRestorer interface {
	Restore(cb models.Callback, delay time.Duration) error
}

// CallbackRecoveryHandler provides the hook that hands due callbacks to the scheduler.
func CallbackRecoveryHandler(restorer CallbackRestorer) func(CallbackRecoveryInfo) error {
	return func(info CallbackRecoveryInfo) error {
		slog.Info("Recovering follow-up callback",
			"participantID", info.Callback.ParticipantID,
			"kind", info.Callback.Kind,
			"remaining", info.Remaining)
		if err := restorer.Restore(info.Callback, info.Remaining); err != nil {
			return fmt.Errorf("failed to restore %s callback for %s: %w", info.Callback.Kind, info.Callback.ParticipantID, err)
		}
		return nil
	}
}

// CallbackRecovery walks the persisted callbacks. Future ones are re-armed with
// their remaining delay; past ones are dropped and logged as missed.
type CallbackRecovery struct{}

// RecoverState implements Recoverable.
func (CallbackRecovery) RecoverState(ctx context.Context, registry *RecoveryRegistry) error {
	st := registry.GetStore()
	callbacks, err := st.ListCallbacks()
	if err != nil {
		return fmt.Errorf("failed to list callbacks: %w", err)
	}

	now := registry.Now()
	restored, missed, failed := 0, 0, 0
	for _, cb := range callbacks {
		if !cb.FireAt.After(now) {
			if err := st.DeleteCallback(cb.ParticipantID, cb.Kind, cb.ID); err != nil {
				slog.Error("CallbackRecovery: failed to drop missed callback", "error", err, "participantID", cb.ParticipantID, "kind", cb.Kind)
			}
			if err := st.AppendEvent(models.Event{ParticipantID: cb.ParticipantID, Kind: models.EventCallbackMissed, Value: string(cb.Kind), CreatedAt: now}); err != nil {
				slog.Warn("CallbackRecovery: failed to log missed callback", "error", err, "participantID", cb.ParticipantID)
			}
			missed++
			continue
		}
		if err := registry.RecoverCallback(CallbackRecoveryInfo{Callback: cb, Remaining: cb.FireAt.Sub(now)}); err != nil {
			slog.Error("CallbackRecovery: restore failed", "error", err, "participantID", cb.ParticipantID, "kind", cb.Kind)
			failed++
			continue
		}
		restored++
	}

	slog.Info("CallbackRecovery completed", "restored", restored, "missed", missed, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("failed to restore %d of %d callbacks", failed, len(callbacks))
	}
	return nil
}
