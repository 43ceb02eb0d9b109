package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/escrow/event"
	"github.com/xraph/escrow/types"
)

// DefaultHookTimeout bounds a single plugin hook call.
const DefaultHookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onEvent               []OnEvent
	onOperationFailed     []OnOperationFailed
	onSpend               []OnSpend
	onAllowanceSet        []OnAllowanceSet
	onSupplyChanged       []OnSupplyChanged
	onLockOpened          []OnLockOpened
	onLockSettled         []OnLockSettled
	onLockEmergencyClosed []OnLockEmergencyClosed
	onLockMatured         []OnLockMatured
	onSwapExecuted        []OnSwapExecuted
	onFeesCollected       []OnFeesCollected
	onConfigChanged       []OnConfigChanged
	onPauseChanged        []OnPauseChanged
	onRoleChanged         []OnRoleChanged
	onTreasuryChanged     []OnTreasuryChanged
	onUpgradeAuthorized   []OnUpgradeAuthorized
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultHookTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnEvent); ok {
		r.onEvent = append(r.onEvent, v)
	}
	if v, ok := p.(OnOperationFailed); ok {
		r.onOperationFailed = append(r.onOperationFailed, v)
	}
	if v, ok := p.(OnSpend); ok {
		r.onSpend = append(r.onSpend, v)
	}
	if v, ok := p.(OnAllowanceSet); ok {
		r.onAllowanceSet = append(r.onAllowanceSet, v)
	}
	if v, ok := p.(OnSupplyChanged); ok {
		r.onSupplyChanged = append(r.onSupplyChanged, v)
	}
	if v, ok := p.(OnLockOpened); ok {
		r.onLockOpened = append(r.onLockOpened, v)
	}
	if v, ok := p.(OnLockSettled); ok {
		r.onLockSettled = append(r.onLockSettled, v)
	}
	if v, ok := p.(OnLockEmergencyClosed); ok {
		r.onLockEmergencyClosed = append(r.onLockEmergencyClosed, v)
	}
	if v, ok := p.(OnLockMatured); ok {
		r.onLockMatured = append(r.onLockMatured, v)
	}
	if v, ok := p.(OnSwapExecuted); ok {
		r.onSwapExecuted = append(r.onSwapExecuted, v)
	}
	if v, ok := p.(OnFeesCollected); ok {
		r.onFeesCollected = append(r.onFeesCollected, v)
	}
	if v, ok := p.(OnConfigChanged); ok {
		r.onConfigChanged = append(r.onConfigChanged, v)
	}
	if v, ok := p.(OnPauseChanged); ok {
		r.onPauseChanged = append(r.onPauseChanged, v)
	}
	if v, ok := p.(OnRoleChanged); ok {
		r.onRoleChanged = append(r.onRoleChanged, v)
	}
	if v, ok := p.(OnTreasuryChanged); ok {
		r.onTreasuryChanged = append(r.onTreasuryChanged, v)
	}
	if v, ok := p.(OnUpgradeAuthorized); ok {
		r.onUpgradeAuthorized = append(r.onUpgradeAuthorized, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnEvent)(nil)).Elem(), "OnEvent")
	checkInterface(reflect.TypeOf((*OnOperationFailed)(nil)).Elem(), "OnOperationFailed")
	checkInterface(reflect.TypeOf((*OnSpend)(nil)).Elem(), "OnSpend")
	checkInterface(reflect.TypeOf((*OnAllowanceSet)(nil)).Elem(), "OnAllowanceSet")
	checkInterface(reflect.TypeOf((*OnSupplyChanged)(nil)).Elem(), "OnSupplyChanged")
	checkInterface(reflect.TypeOf((*OnLockOpened)(nil)).Elem(), "OnLockOpened")
	checkInterface(reflect.TypeOf((*OnLockSettled)(nil)).Elem(), "OnLockSettled")
	checkInterface(reflect.TypeOf((*OnLockEmergencyClosed)(nil)).Elem(), "OnLockEmergencyClosed")
	checkInterface(reflect.TypeOf((*OnLockMatured)(nil)).Elem(), "OnLockMatured")
	checkInterface(reflect.TypeOf((*OnSwapExecuted)(nil)).Elem(), "OnSwapExecuted")
	checkInterface(reflect.TypeOf((*OnFeesCollected)(nil)).Elem(), "OnFeesCollected")
	checkInterface(reflect.TypeOf((*OnConfigChanged)(nil)).Elem(), "OnConfigChanged")
	checkInterface(reflect.TypeOf((*OnPauseChanged)(nil)).Elem(), "OnPauseChanged")
	checkInterface(reflect.TypeOf((*OnRoleChanged)(nil)).Elem(), "OnRoleChanged")
	checkInterface(reflect.TypeOf((*OnTreasuryChanged)(nil)).Elem(), "OnTreasuryChanged")
	checkInterface(reflect.TypeOf((*OnUpgradeAuthorized)(nil)).Elem(), "OnUpgradeAuthorized")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	dispatch(r, ctx, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	dispatch(r, ctx, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitOperationFailed reports a rejected operation.
func (r *Registry) EmitOperationFailed(ctx context.Context, operation string, caller types.Address, opErr error) {
	r.mu.RLock()
	plugins := r.onOperationFailed
	r.mu.RUnlock()

	dispatch(r, ctx, "OnOperationFailed", plugins, func(p OnOperationFailed) error {
		return p.OnOperationFailed(ctx, operation, caller, opErr)
	})
}

// Emit delivers committed events in order, first to the kind-specific hook
// and then to every OnEvent plugin.
func (r *Registry) Emit(ctx context.Context, events []event.Event) {
	for i := range events {
		r.emitOne(ctx, &events[i])
	}
}

func (r *Registry) emitOne(ctx context.Context, evt *event.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch evt.Kind {
	case event.KindSpend:
		dispatch(r, ctx, "OnSpend", r.onSpend, func(p OnSpend) error { return p.OnSpend(ctx, evt) })
	case event.KindAllowanceSet:
		dispatch(r, ctx, "OnAllowanceSet", r.onAllowanceSet, func(p OnAllowanceSet) error { return p.OnAllowanceSet(ctx, evt) })
	case event.KindSupplyReduced, event.KindMinted:
		dispatch(r, ctx, "OnSupplyChanged", r.onSupplyChanged, func(p OnSupplyChanged) error { return p.OnSupplyChanged(ctx, evt) })
	case event.KindLockOpened:
		dispatch(r, ctx, "OnLockOpened", r.onLockOpened, func(p OnLockOpened) error { return p.OnLockOpened(ctx, evt) })
	case event.KindLockSettled:
		dispatch(r, ctx, "OnLockSettled", r.onLockSettled, func(p OnLockSettled) error { return p.OnLockSettled(ctx, evt) })
	case event.KindLockEmergencyClosed:
		dispatch(r, ctx, "OnLockEmergencyClosed", r.onLockEmergencyClosed, func(p OnLockEmergencyClosed) error {
			return p.OnLockEmergencyClosed(ctx, evt)
		})
	case event.KindLockMatured:
		dispatch(r, ctx, "OnLockMatured", r.onLockMatured, func(p OnLockMatured) error { return p.OnLockMatured(ctx, evt) })
	case event.KindSwapExecuted:
		dispatch(r, ctx, "OnSwapExecuted", r.onSwapExecuted, func(p OnSwapExecuted) error { return p.OnSwapExecuted(ctx, evt) })
	case event.KindFeesCollected:
		dispatch(r, ctx, "OnFeesCollected", r.onFeesCollected, func(p OnFeesCollected) error { return p.OnFeesCollected(ctx, evt) })
	case event.KindConfigChanged:
		dispatch(r, ctx, "OnConfigChanged", r.onConfigChanged, func(p OnConfigChanged) error { return p.OnConfigChanged(ctx, evt) })
	case event.KindPaused, event.KindUnpaused, event.KindFunctionPauseChanged:
		dispatch(r, ctx, "OnPauseChanged", r.onPauseChanged, func(p OnPauseChanged) error { return p.OnPauseChanged(ctx, evt) })
	case event.KindRoleGranted, event.KindRoleRevoked:
		dispatch(r, ctx, "OnRoleChanged", r.onRoleChanged, func(p OnRoleChanged) error { return p.OnRoleChanged(ctx, evt) })
	case event.KindTreasuryChanged:
		dispatch(r, ctx, "OnTreasuryChanged", r.onTreasuryChanged, func(p OnTreasuryChanged) error {
			return p.OnTreasuryChanged(ctx, evt)
		})
	case event.KindUpgradeAuthorized:
		dispatch(r, ctx, "OnUpgradeAuthorized", r.onUpgradeAuthorized, func(p OnUpgradeAuthorized) error {
			return p.OnUpgradeAuthorized(ctx, evt)
		})
	}

	dispatch(r, ctx, "OnEvent", r.onEvent, func(p OnEvent) error { return p.OnEvent(ctx, evt) })
}

// dispatch calls fn for every plugin and logs failures. A failing plugin
// never affects the operation that produced the event.
func dispatch[T Plugin](r *Registry, ctx context.Context, hook string, plugins []T, fn func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the engine.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
