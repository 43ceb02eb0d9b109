// Package observability provides a metrics extension for the escrow engine
// that records event counts and amounts through a MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnSpend               = (*MetricsExtension)(nil)
	_ plugin.OnAllowanceSet        = (*MetricsExtension)(nil)
	_ plugin.OnSupplyChanged       = (*MetricsExtension)(nil)
	_ plugin.OnLockOpened          = (*MetricsExtension)(nil)
	_ plugin.OnLockSettled         = (*MetricsExtension)(nil)
	_ plugin.OnLockEmergencyClosed = (*MetricsExtension)(nil)
	_ plugin.OnLockMatured         = (*MetricsExtension)(nil)
	_ plugin.OnSwapExecuted        = (*MetricsExtension)(nil)
	_ plugin.OnFeesCollected       = (*MetricsExtension)(nil)
	_ plugin.OnConfigChanged       = (*MetricsExtension)(nil)
	_ plugin.OnPauseChanged        = (*MetricsExtension)(nil)
	_ plugin.OnRoleChanged         = (*MetricsExtension)(nil)
	_ plugin.OnOperationFailed     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records engine-wide metrics.
// Register it as an escrow plugin to track spending, locks and swaps.
type MetricsExtension struct {
	factory MetricFactory

	// Spending metrics
	Spends        Counter
	SpendAmount   Histogram
	AllowancesSet Counter
	TokensBurned  Counter
	TokensMinted  Counter

	// Lock metrics
	LocksOpened          Counter
	LockAmount           Histogram
	LocksSettled         Counter
	LockSpent            Histogram
	LocksEmergencyClosed Counter
	EmergencyFees        Counter
	LocksMatured         Counter

	// Swap metrics
	Swaps         Counter
	SwapBaseIn    Histogram
	SwapOutput    Histogram
	SwapFees      Counter
	FeesCollected Counter

	// Administration metrics
	ConfigChanges Counter
	PauseChanges  Counter
	RoleChanges   Counter

	// Error metrics
	OperationFailures    Counter
	AuthorizationDenials Counter
	SafetyRejections     Counter
	SlippageRejections   Counter
	OracleRejections     Counter
	StoreErrors          Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Spending metrics
		Spends:        factory.Counter("escrow.spend.count"),
		SpendAmount:   factory.Histogram("escrow.spend.amount"),
		AllowancesSet: factory.Counter("escrow.allowance.set"),
		TokensBurned:  factory.Counter("escrow.supply.burned"),
		TokensMinted:  factory.Counter("escrow.supply.minted"),

		// Lock metrics
		LocksOpened:          factory.Counter("escrow.lock.opened"),
		LockAmount:           factory.Histogram("escrow.lock.amount"),
		LocksSettled:         factory.Counter("escrow.lock.settled"),
		LockSpent:            factory.Histogram("escrow.lock.spent"),
		LocksEmergencyClosed: factory.Counter("escrow.lock.emergency_closed"),
		EmergencyFees:        factory.Counter("escrow.lock.emergency_fees"),
		LocksMatured:         factory.Counter("escrow.lock.matured"),

		// Swap metrics
		Swaps:         factory.Counter("escrow.swap.count"),
		SwapBaseIn:    factory.Histogram("escrow.swap.base_amount"),
		SwapOutput:    factory.Histogram("escrow.swap.output"),
		SwapFees:      factory.Counter("escrow.swap.fees"),
		FeesCollected: factory.Counter("escrow.fees.collected"),

		// Administration metrics
		ConfigChanges: factory.Counter("escrow.config.changes"),
		PauseChanges:  factory.Counter("escrow.pause.changes"),
		RoleChanges:   factory.Counter("escrow.role.changes"),

		// Error metrics
		OperationFailures:    factory.Counter("escrow.operation.failures"),
		AuthorizationDenials: factory.Counter("escrow.operation.unauthorized"),
		SafetyRejections:     factory.Counter("escrow.operation.paused"),
		SlippageRejections:   factory.Counter("escrow.swap.slippage"),
		OracleRejections:     factory.Counter("escrow.oracle.rejections"),
		StoreErrors:          factory.Counter("escrow.store.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Spending hooks
// ──────────────────────────────────────────────────

// OnSpend implements plugin.OnSpend.
func (m *MetricsExtension) OnSpend(_ context.Context, evt *event.Event) error {
	m.Spends.Inc()
	m.SpendAmount.Observe(amount(evt.Amount))
	return nil
}

// OnAllowanceSet implements plugin.OnAllowanceSet.
func (m *MetricsExtension) OnAllowanceSet(_ context.Context, _ *event.Event) error {
	m.AllowancesSet.Inc()
	return nil
}

// OnSupplyChanged implements plugin.OnSupplyChanged.
func (m *MetricsExtension) OnSupplyChanged(_ context.Context, evt *event.Event) error {
	if evt.Kind == event.KindMinted {
		m.TokensMinted.Add(amount(evt.Amount))
	} else {
		m.TokensBurned.Add(amount(evt.Amount))
	}
	return nil
}

// ──────────────────────────────────────────────────
// Lock hooks
// ──────────────────────────────────────────────────

// OnLockOpened implements plugin.OnLockOpened.
func (m *MetricsExtension) OnLockOpened(_ context.Context, evt *event.Event) error {
	m.LocksOpened.Inc()
	m.LockAmount.Observe(amount(evt.Amount))
	return nil
}

// OnLockSettled implements plugin.OnLockSettled.
func (m *MetricsExtension) OnLockSettled(_ context.Context, evt *event.Event) error {
	m.LocksSettled.Inc()
	m.LockSpent.Observe(amount(evt.Amount))
	return nil
}

// OnLockEmergencyClosed implements plugin.OnLockEmergencyClosed.
func (m *MetricsExtension) OnLockEmergencyClosed(_ context.Context, evt *event.Event) error {
	m.LocksEmergencyClosed.Inc()
	m.EmergencyFees.Add(amount(evt.Fee))
	return nil
}

// OnLockMatured implements plugin.OnLockMatured.
func (m *MetricsExtension) OnLockMatured(_ context.Context, _ *event.Event) error {
	m.LocksMatured.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Swap hooks
// ──────────────────────────────────────────────────

// OnSwapExecuted implements plugin.OnSwapExecuted.
func (m *MetricsExtension) OnSwapExecuted(_ context.Context, evt *event.Event) error {
	m.Swaps.Inc()
	m.SwapBaseIn.Observe(amount(evt.BaseAmount))
	m.SwapOutput.Observe(amount(evt.Amount))
	m.SwapFees.Add(amount(evt.Fee))
	return nil
}

// OnFeesCollected implements plugin.OnFeesCollected.
func (m *MetricsExtension) OnFeesCollected(_ context.Context, evt *event.Event) error {
	m.FeesCollected.Add(amount(evt.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Administration hooks
// ──────────────────────────────────────────────────

// OnConfigChanged implements plugin.OnConfigChanged.
func (m *MetricsExtension) OnConfigChanged(_ context.Context, _ *event.Event) error {
	m.ConfigChanges.Inc()
	return nil
}

// OnPauseChanged implements plugin.OnPauseChanged.
func (m *MetricsExtension) OnPauseChanged(_ context.Context, _ *event.Event) error {
	m.PauseChanges.Inc()
	return nil
}

// OnRoleChanged implements plugin.OnRoleChanged.
func (m *MetricsExtension) OnRoleChanged(_ context.Context, _ *event.Event) error {
	m.RoleChanges.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Rejections
// ──────────────────────────────────────────────────

// OnOperationFailed implements plugin.OnOperationFailed.
func (m *MetricsExtension) OnOperationFailed(_ context.Context, _ string, _ types.Address, err error) error {
	m.OperationFailures.Inc()
	switch {
	case escrow.IsAuthorization(err):
		m.AuthorizationDenials.Inc()
	case escrow.IsSafety(err):
		m.SafetyRejections.Inc()
	case errors.Is(err, escrow.ErrSlippage):
		m.SlippageRejections.Inc()
	case escrow.IsOracle(err):
		m.OracleRejections.Inc()
	case errors.Is(err, escrow.ErrJournalConflict), errors.Is(err, escrow.ErrStoreClosed):
		m.StoreErrors.Inc()
	}
	return nil
}

func amount(a types.Amount) float64 {
	return float64(a.Uint64())
}
