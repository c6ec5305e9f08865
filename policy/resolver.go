/*
Package policy resolves a worker's effective pay policy.

PURPOSE:
  Merges the singleton global policy with an optional per-worker override
  into one effective policy (rate, auto-pause threshold, auto-pause flag).
  The merge is a pure function over two flat records - configuration is
  data, not a type hierarchy - and the result carries field-level
  provenance so API consumers can see where each value came from.

MERGE RULES:
  Effective read:  override.field ?? global.field
  Override write:  incoming ?? existing override ?? current global
                   (stored overrides are always fully populated, even
                   though the API accepts partial updates)

DEFAULTS:
  If the global singleton has never been written, the resolver creates it
  with the documented defaults before merging:
    hourly rate 1000, auto-pause after 30 minutes, auto-pause enabled.

SEE ALSO:
  - track/types.go: GlobalPolicy, WorkerOverride, EffectivePolicy
  - payroll/ledger.go: Uses the effective rate for balance validation
  - clock/engine.go: Uses the effective rate for accrual on session end
*/
package policy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/timeclock/track"
)

// Documented defaults for a freshly created global policy.
var (
	DefaultHourlyRate       = decimal.NewFromInt(1000)
	DefaultAutoPauseMinutes = 30
	DefaultAutoPauseEnabled = true
)

// DefaultGlobalPolicy returns the policy used when the singleton is missing.
func DefaultGlobalPolicy() track.GlobalPolicy {
	return track.GlobalPolicy{
		HourlyRate:       DefaultHourlyRate,
		AutoPauseMinutes: DefaultAutoPauseMinutes,
		AutoPauseEnabled: DefaultAutoPauseEnabled,
	}
}

// =============================================================================
// PURE MERGE
// =============================================================================

// Merge resolves an effective policy from the global singleton and an
// optional override. Pure function; nil override means all-global.
func Merge(global track.GlobalPolicy, override *track.WorkerOverride) track.EffectivePolicy {
	eff := track.EffectivePolicy{
		HourlyRate:             global.HourlyRate,
		AutoPauseMinutes:       global.AutoPauseMinutes,
		AutoPauseEnabled:       global.AutoPauseEnabled,
		HourlyRateSource:       track.SourceGlobal,
		AutoPauseMinutesSource: track.SourceGlobal,
		AutoPauseEnabledSource: track.SourceGlobal,
	}
	if override == nil {
		return eff
	}
	if override.HourlyRate != nil {
		eff.HourlyRate = *override.HourlyRate
		eff.HourlyRateSource = track.SourceOverride
	}
	if override.AutoPauseMinutes != nil {
		eff.AutoPauseMinutes = *override.AutoPauseMinutes
		eff.AutoPauseMinutesSource = track.SourceOverride
	}
	if override.AutoPauseEnabled != nil {
		eff.AutoPauseEnabled = *override.AutoPauseEnabled
		eff.AutoPauseEnabledSource = track.SourceOverride
	}
	return eff
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver reads and writes policy records through a transactional store.
type Resolver struct {
	Store track.TxStore
}

// NewResolver creates a resolver over the given store.
func NewResolver(store track.TxStore) *Resolver {
	return &Resolver{Store: store}
}

// Effective resolves the worker's effective policy, creating the global
// singleton with documented defaults if it has never been written.
func (r *Resolver) Effective(ctx context.Context, username string) (*track.EffectivePolicy, error) {
	var eff *track.EffectivePolicy
	err := r.Store.WithTx(ctx, func(s track.Store) error {
		resolved, err := EffectiveFor(ctx, s, username)
		if err != nil {
			return err
		}
		eff = resolved
		return nil
	})
	return eff, err
}

// EffectiveFor resolves the effective policy within an already-open
// transaction. Used by the session engine and payroll ledger so the rate
// read shares the closure/validation transaction.
func EffectiveFor(ctx context.Context, s track.Store, username string) (*track.EffectivePolicy, error) {
	w, err := s.GetWorker(ctx, username)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, track.ErrWorkerNotFound
	}

	global, err := ensureGlobal(ctx, s)
	if err != nil {
		return nil, err
	}

	override, err := s.OverrideFor(ctx, username)
	if err != nil {
		return nil, err
	}

	eff := Merge(global, override)
	return &eff, nil
}

// SetOverride merges a partial policy onto the worker's override.
// For each field: incoming value if present, else existing override value
// if present, else the current global value. The stored row is therefore
// always fully populated.
func (r *Resolver) SetOverride(ctx context.Context, username string, patch track.PolicyPatch) (*track.EffectivePolicy, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: override patch is empty", track.ErrInvalidArgument)
	}

	var eff *track.EffectivePolicy
	err := r.Store.WithTx(ctx, func(s track.Store) error {
		w, err := s.GetWorker(ctx, username)
		if err != nil {
			return err
		}
		if w == nil {
			return track.ErrWorkerNotFound
		}

		global, err := ensureGlobal(ctx, s)
		if err != nil {
			return err
		}
		existing, err := s.OverrideFor(ctx, username)
		if err != nil {
			return err
		}

		merged := mergeOverride(global, existing, patch)
		merged.Username = username
		if err := s.SaveOverride(ctx, merged); err != nil {
			return err
		}

		resolved := Merge(global, &merged)
		eff = &resolved
		return nil
	})
	return eff, err
}

// ClearOverride removes the worker's override; the effective policy reverts
// to the global singleton. Idempotent: still succeeds if no override existed.
func (r *Resolver) ClearOverride(ctx context.Context, username string) error {
	return r.Store.WithTx(ctx, func(s track.Store) error {
		w, err := s.GetWorker(ctx, username)
		if err != nil {
			return err
		}
		if w == nil {
			return track.ErrWorkerNotFound
		}
		return s.DeleteOverride(ctx, username)
	})
}

// UpdateGlobal merges a partial policy onto the global singleton, creating
// it from defaults if absent.
func (r *Resolver) UpdateGlobal(ctx context.Context, patch track.PolicyPatch) (*track.GlobalPolicy, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: global policy patch is empty", track.ErrInvalidArgument)
	}

	var updated *track.GlobalPolicy
	err := r.Store.WithTx(ctx, func(s track.Store) error {
		global, err := ensureGlobal(ctx, s)
		if err != nil {
			return err
		}
		if patch.HourlyRate != nil {
			global.HourlyRate = *patch.HourlyRate
		}
		if patch.AutoPauseMinutes != nil {
			global.AutoPauseMinutes = *patch.AutoPauseMinutes
		}
		if patch.AutoPauseEnabled != nil {
			global.AutoPauseEnabled = *patch.AutoPauseEnabled
		}
		if err := s.SaveGlobalPolicy(ctx, global); err != nil {
			return err
		}
		updated = &global
		return nil
	})
	return updated, err
}

// Global returns the current global singleton, creating it from defaults
// if it has never been written.
func (r *Resolver) Global(ctx context.Context) (*track.GlobalPolicy, error) {
	var global track.GlobalPolicy
	err := r.Store.WithTx(ctx, func(s track.Store) error {
		g, err := ensureGlobal(ctx, s)
		if err != nil {
			return err
		}
		global = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &global, nil
}

// GlobalFor reads the global singleton within an already-open transaction,
// falling back to defaults and persisting them if the row is missing.
func GlobalFor(ctx context.Context, s track.Store) (track.GlobalPolicy, error) {
	return ensureGlobal(ctx, s)
}

func ensureGlobal(ctx context.Context, s track.Store) (track.GlobalPolicy, error) {
	g, err := s.GlobalPolicy(ctx)
	if err != nil {
		return track.GlobalPolicy{}, err
	}
	if g != nil {
		return *g, nil
	}
	def := DefaultGlobalPolicy()
	if err := s.SaveGlobalPolicy(ctx, def); err != nil {
		return track.GlobalPolicy{}, err
	}
	return def, nil
}

// mergeOverride builds the fully populated override row:
// incoming ?? existing ?? global, per field.
func mergeOverride(global track.GlobalPolicy, existing *track.WorkerOverride, patch track.PolicyPatch) track.WorkerOverride {
	rate := global.HourlyRate
	minutes := global.AutoPauseMinutes
	enabled := global.AutoPauseEnabled

	if existing != nil {
		if existing.HourlyRate != nil {
			rate = *existing.HourlyRate
		}
		if existing.AutoPauseMinutes != nil {
			minutes = *existing.AutoPauseMinutes
		}
		if existing.AutoPauseEnabled != nil {
			enabled = *existing.AutoPauseEnabled
		}
	}
	if patch.HourlyRate != nil {
		rate = *patch.HourlyRate
	}
	if patch.AutoPauseMinutes != nil {
		minutes = *patch.AutoPauseMinutes
	}
	if patch.AutoPauseEnabled != nil {
		enabled = *patch.AutoPauseEnabled
	}

	return track.WorkerOverride{
		HourlyRate:       &rate,
		AutoPauseMinutes: &minutes,
		AutoPauseEnabled: &enabled,
	}
}
