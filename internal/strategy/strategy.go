// Package strategy defines the Strategy interface consumed by the backtest
// signal collector and provides a Registry for managing multiple strategy
// implementations.
package strategy

import (
	"sort"

	"marlin/internal/domain"
)

// Strategy is the interface that all trading strategies must implement.
// Buy and Sell are invoked with a causal window of bars: the final bar in
// the slice is the bar at the evaluation time, and no later bar is visible.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Buy inspects the bar window and returns zero or more entry signals.
	Buy(bars []domain.Bar, ticker string) ([]domain.Signal, error)

	// Sell inspects the bar window and returns zero or more exit signals.
	Sell(bars []domain.Bar, ticker string) ([]domain.Signal, error)
}

// Windowed is implemented by strategies that need a minimum number of bars
// before they can evaluate. The collector sizes the lookback window from it;
// strategies that do not implement it get the full history.
type Windowed interface {
	// Window returns the number of trailing bars the strategy needs.
	Window() int
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
