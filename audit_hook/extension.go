// Package audithook bridges escrow events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnSpend               = (*Extension)(nil)
	_ plugin.OnAllowanceSet        = (*Extension)(nil)
	_ plugin.OnSupplyChanged       = (*Extension)(nil)
	_ plugin.OnLockOpened          = (*Extension)(nil)
	_ plugin.OnLockSettled         = (*Extension)(nil)
	_ plugin.OnLockEmergencyClosed = (*Extension)(nil)
	_ plugin.OnLockMatured         = (*Extension)(nil)
	_ plugin.OnSwapExecuted        = (*Extension)(nil)
	_ plugin.OnFeesCollected       = (*Extension)(nil)
	_ plugin.OnConfigChanged       = (*Extension)(nil)
	_ plugin.OnPauseChanged        = (*Extension)(nil)
	_ plugin.OnRoleChanged         = (*Extension)(nil)
	_ plugin.OnTreasuryChanged     = (*Extension)(nil)
	_ plugin.OnUpgradeAuthorized   = (*Extension)(nil)
	_ plugin.OnOperationFailed     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges escrow events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Spending hooks
// ──────────────────────────────────────────────────

// OnSpend implements plugin.OnSpend.
func (e *Extension) OnSpend(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionSpendDebited, SeverityInfo, OutcomeSuccess,
		ResourceAccount, string(evt.Account), CategorySpending, nil,
		"seq", evt.Seq,
		"caller", evt.Caller,
		"amount", evt.Amount,
		"service_tag", evt.ServiceTag,
	)
}

// OnAllowanceSet implements plugin.OnAllowanceSet.
func (e *Extension) OnAllowanceSet(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionAllowanceSet, SeverityInfo, OutcomeSuccess,
		ResourceAllowance, string(evt.Account), CategorySpending, nil,
		"seq", evt.Seq,
		"caller", evt.Caller,
		"old", evt.Old,
		"new", evt.New,
	)
}

// OnSupplyChanged implements plugin.OnSupplyChanged.
func (e *Extension) OnSupplyChanged(ctx context.Context, evt *event.Event) error {
	action := ActionSupplyReduced
	if evt.Kind == event.KindMinted {
		action = ActionSupplyMinted
	}
	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceAccount, string(evt.Account), CategorySpending, nil,
		"seq", evt.Seq,
		"caller", evt.Caller,
		"amount", evt.Amount,
	)
}

// ──────────────────────────────────────────────────
// Lock hooks
// ──────────────────────────────────────────────────

// OnLockOpened implements plugin.OnLockOpened.
func (e *Extension) OnLockOpened(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionLockOpened, SeverityInfo, OutcomeSuccess,
		ResourceLock, lockID(evt), CategoryEscrow, nil,
		"seq", evt.Seq,
		"amount", evt.Amount,
		"service_tag", evt.ServiceTag,
		"unlock_time", evt.UnlockTime,
	)
}

// OnLockSettled implements plugin.OnLockSettled.
func (e *Extension) OnLockSettled(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionLockSettled, SeverityInfo, OutcomeSuccess,
		ResourceLock, lockID(evt), CategoryEscrow, nil,
		"seq", evt.Seq,
		"caller", evt.Caller,
		"spent", evt.Amount,
		"refund", evt.Refund,
	)
}

// OnLockEmergencyClosed implements plugin.OnLockEmergencyClosed.
func (e *Extension) OnLockEmergencyClosed(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionLockEmergencyClosed, SeverityWarning, OutcomeSuccess,
		ResourceLock, lockID(evt), CategoryEscrow, nil,
		"seq", evt.Seq,
		"refund", evt.Refund,
		"fee", evt.Fee,
		"treasury", evt.Counterparty,
	)
}

// OnLockMatured implements plugin.OnLockMatured.
func (e *Extension) OnLockMatured(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionLockMatured, SeverityInfo, OutcomeSuccess,
		ResourceLock, lockID(evt), CategoryEscrow, nil,
		"seq", evt.Seq,
		"amount", evt.Amount,
	)
}

// ──────────────────────────────────────────────────
// Swap hooks
// ──────────────────────────────────────────────────

// OnSwapExecuted implements plugin.OnSwapExecuted.
func (e *Extension) OnSwapExecuted(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionSwapExecuted, SeverityInfo, OutcomeSuccess,
		ResourceSwap, evt.SwapID.String(), CategoryExchange, nil,
		"seq", evt.Seq,
		"caller", evt.Account,
		"base_amount", evt.BaseAmount,
		"quote", evt.Quote,
		"fee", evt.Fee,
		"output", evt.Amount,
		"price", evt.Price,
	)
}

// OnFeesCollected implements plugin.OnFeesCollected.
func (e *Extension) OnFeesCollected(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionFeesCollected, SeverityInfo, OutcomeSuccess,
		ResourceTreasury, string(evt.Account), CategoryExchange, nil,
		"seq", evt.Seq,
		"caller", evt.Caller,
		"amount", evt.Amount,
	)
}

// ──────────────────────────────────────────────────
// Administration hooks
// ──────────────────────────────────────────────────

// OnConfigChanged implements plugin.OnConfigChanged.
func (e *Extension) OnConfigChanged(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionConfigChanged, SeverityWarning, OutcomeSuccess,
		ResourceConfig, evt.Field, CategoryAdministration, nil,
		"seq", evt.Seq,
		"caller", evt.Caller,
		"old", evt.Old,
		"new", evt.New,
	)
}

// OnPauseChanged implements plugin.OnPauseChanged.
func (e *Extension) OnPauseChanged(ctx context.Context, evt *event.Event) error {
	action, resourceID := ActionUnpaused, "global"
	switch evt.Kind {
	case event.KindPaused:
		action = ActionPaused
	case event.KindFunctionPauseChanged:
		action, resourceID = ActionFunctionPauseChanged, evt.Operation
	}
	severity := SeverityInfo
	if evt.Paused {
		severity = SeverityCritical
	}
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceEngine, resourceID, CategorySafety, nil,
		"seq", evt.Seq,
		"caller", evt.Caller,
		"paused", evt.Paused,
	)
}

// OnRoleChanged implements plugin.OnRoleChanged.
func (e *Extension) OnRoleChanged(ctx context.Context, evt *event.Event) error {
	action := ActionRoleGranted
	if evt.Kind == event.KindRoleRevoked {
		action = ActionRoleRevoked
	}
	return e.record(ctx, action, SeverityWarning, OutcomeSuccess,
		ResourceRole, evt.Role, CategoryAccess, nil,
		"seq", evt.Seq,
		"caller", evt.Caller,
		"account", evt.Account,
	)
}

// OnTreasuryChanged implements plugin.OnTreasuryChanged.
func (e *Extension) OnTreasuryChanged(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionTreasuryChanged, SeverityWarning, OutcomeSuccess,
		ResourceTreasury, string(evt.Account), CategoryAdministration, nil,
		"seq", evt.Seq,
		"caller", evt.Caller,
		"old", evt.Old,
	)
}

// OnUpgradeAuthorized implements plugin.OnUpgradeAuthorized.
func (e *Extension) OnUpgradeAuthorized(ctx context.Context, evt *event.Event) error {
	return e.record(ctx, ActionUpgradeAuthorized, SeverityCritical, OutcomeSuccess,
		ResourceEngine, evt.Version, CategoryAdministration, nil,
		"seq", evt.Seq,
		"caller", evt.Caller,
		"previous", evt.Old,
	)
}

// ──────────────────────────────────────────────────
// Rejections
// ──────────────────────────────────────────────────

// OnOperationFailed implements plugin.OnOperationFailed. Authorization and
// safety rejections are recorded at a higher severity than ordinary
// validation or balance failures.
func (e *Extension) OnOperationFailed(ctx context.Context, operation string, caller types.Address, err error) error {
	severity, category := SeverityInfo, CategorySpending
	switch {
	case escrow.IsAuthorization(err):
		severity, category = SeverityWarning, CategoryAccess
	case escrow.IsSafety(err):
		severity, category = SeverityWarning, CategorySafety
	case escrow.IsRetryable(err):
		severity = SeverityError
	}
	return e.record(ctx, ActionOperationFailed, severity, OutcomeFailure,
		ResourceOperation, operation, category, err,
		"caller", caller,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func lockID(evt *event.Event) string {
	return string(evt.Account) + "/" + strconv.FormatUint(evt.LockID, 10)
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
