// Package recovery restores FocusPipe runtime state after a restart. Components
// register as Recoverable and receive a registry exposing the store and the
// infrastructure hooks they need.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/FocusPipe/internal/models"
	"github.com/BTreeMap/FocusPipe/internal/store"
)

// Recoverable defines the interface for components that can recover their state
type Recoverable interface {
	// RecoverState is called during application startup to restore component state
	RecoverState(ctx context.Context, registry *RecoveryRegistry) error
}

// CallbackRecoveryInfo describes a persisted follow-up that is still due.
type CallbackRecoveryInfo struct {
	Callback  models.Callback
	Remaining time.Duration
}

// RecoveryRegistry provides services that components can use during recovery
type RecoveryRegistry struct {
	store store.Store
	now   func() time.Time

	callbackRecoveryFunc func(CallbackRecoveryInfo) error
}

// NewRecoveryRegistry creates a new recovery registry
func NewRecoveryRegistry(st store.Store) *RecoveryRegistry {
	return &RecoveryRegistry{store: st, now: time.Now}
}

// RegisterCallbackRecovery registers the hook that re-arms a due callback.
func (r *RecoveryRegistry) RegisterCallbackRecovery(fn func(CallbackRecoveryInfo) error) {
	r.callbackRecoveryFunc = fn
}

// RecoverCallback requests re-arming of a callback
func (r *RecoveryRegistry) RecoverCallback(info CallbackRecoveryInfo) error {
	if r.callbackRecoveryFunc == nil {
		return fmt.Errorf("no callback recovery handler registered")
	}
	return r.callbackRecoveryFunc(info)
}

// GetStore provides access to the store for recovery operations
func (r *RecoveryRegistry) GetStore() store.Store {
	return r.store
}

// Now returns the registry clock.
func (r *RecoveryRegistry) Now() time.Time {
	return r.now()
}

// RecoveryManager orchestrates recovery of all registered components
type RecoveryManager struct {
	registry     *RecoveryRegistry
	recoverables []Recoverable
}

// NewRecoveryManager creates a new recovery manager
func NewRecoveryManager(st store.Store) *RecoveryManager {
	return &RecoveryManager{
		registry:     NewRecoveryRegistry(st),
		recoverables: make([]Recoverable, 0),
	}
}

// RegisterRecoverable adds a component that can be recovered
func (rm *RecoveryManager) RegisterRecoverable(r Recoverable) {
	rm.recoverables = append(rm.recoverables, r)
}

// RegisterCallbackRecovery registers the callback re-arming infrastructure
func (rm *RecoveryManager) RegisterCallbackRecovery(fn func(CallbackRecoveryInfo) error) {
	rm.registry.RegisterCallbackRecovery(fn)
}

// RecoverAll performs recovery of all registered components
func (rm *RecoveryManager) RecoverAll(ctx context.Context) error {
	slog.Info("Starting application recovery", "components", len(rm.recoverables))

	recoveredCount := 0
	errorCount := 0

	for _, recoverable := range rm.recoverables {
		if err := recoverable.RecoverState(ctx, rm.registry); err != nil {
			slog.Error("Component recovery failed", "error", err, "component", fmt.Sprintf("%T", recoverable))
			errorCount++
			continue
		}
		recoveredCount++
	}

	slog.Info("Application recovery completed", "recovered", recoveredCount, "errors", errorCount)

	if errorCount > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", errorCount, len(rm.recoverables))
	}

	return nil
}

// GetRegistry provides access to the recovery registry for infrastructure setup
func (rm *RecoveryManager) GetRegistry() *RecoveryRegistry {
	return rm.registry
}
