package stoploss

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ballast/internal/domain"
	"ballast/internal/metrics"
	"ballast/internal/ring"
)

// Record is the per-symbol stop state owned by the monitor.
type Record struct {
	Symbol             string
	Strategy           Strategy
	Params             Params
	EntryPrice         float64
	EntryTime          time.Time
	CurrentStop        float64
	HasStop            bool // false until the first candidate is applied
	BestFavorablePrice float64
	LastAdjustment     time.Time
}

// AdjustmentEvent records one accepted stop move. Events feed statistics
// only; they are never consulted by control logic.
type AdjustmentEvent struct {
	Timestamp time.Time
	Symbol    string
	Strategy  Strategy
	OldStop   float64
	NewStop   float64
}

// Performance summarises accepted stop adjustments.
type Performance struct {
	TotalAdjustments     int
	AvgAdjustmentSize    float64 // mean |new - old| over moves of an existing stop
	AdjustmentFrequency  float64 // adjustments per hour; 0 on a single data point
	StrategyDistribution map[Strategy]int
}

// Monitor owns per-symbol stop-loss records, applies ratchet discipline,
// records adjustments in a bounded history, and reports performance stats.
type Monitor struct {
	log *slog.Logger

	mu         sync.RWMutex
	records    map[string]*Record
	conditions map[string]domain.MarketConditions
	history    *ring.Buffer[AdjustmentEvent]
}

// NewMonitor creates a stop-loss monitor with a bounded adjustment history.
func NewMonitor(historySize int, log *slog.Logger) *Monitor {
	if historySize <= 0 {
		historySize = 512
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		log:        log.With("component", "stoploss-monitor"),
		records:    make(map[string]*Record),
		conditions: make(map[string]domain.MarketConditions),
		history:    ring.New[AdjustmentEvent](historySize),
	}
}

// SetPositionStop creates or replaces the stop record for a symbol. Explicit
// replacement is the only way a stop may loosen.
func (m *Monitor) SetPositionStop(symbol string, strategy Strategy, params Params, entryPrice float64) error {
	if symbol == "" {
		return fmt.Errorf("stoploss: empty symbol")
	}
	if entryPrice <= 0 {
		return fmt.Errorf("stoploss %s: entry price must be positive, got %v", symbol, entryPrice)
	}
	if err := params.Validate(strategy); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[symbol] = &Record{
		Symbol:             symbol,
		Strategy:           strategy,
		Params:             params,
		EntryPrice:         entryPrice,
		EntryTime:          time.Now(),
		BestFavorablePrice: entryPrice,
	}
	m.log.Info("stop loss configured", "symbol", symbol, "strategy", string(strategy), "entry", entryPrice)
	return nil
}

// RemoveStop drops the record for a closed position. Unknown symbols are a
// no-op.
func (m *Monitor) RemoveStop(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, symbol)
	delete(m.conditions, symbol)
}

// UpdateMarketConditions stores the latest feed inputs for a symbol. The
// adaptive strategy reads them on the next evaluation.
func (m *Monitor) UpdateMarketConditions(symbol string, cond domain.MarketConditions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conditions[symbol] = cond
}

// Evaluate recomputes the stop for a position against its record. The
// breakeven overlay is evaluated first and dominates the configured strategy
// when triggered. A candidate is applied only if it is at least as favorable
// to the holder as the current stop; a less favorable candidate is discarded
// and logged, never applied. Returns the effective stop and whether one is
// active.
func (m *Monitor) Evaluate(pos domain.PositionSnapshot) (float64, bool) {
	if pos.Quantity == 0 || pos.CurrentPrice <= 0 {
		return 0, false
	}
	long := pos.Quantity > 0

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.records[pos.Symbol]
	if !ok {
		return 0, false
	}
	cond := m.conditions[pos.Symbol]

	// Track the best favorable price for the life of the record.
	if long && pos.CurrentPrice > r.BestFavorablePrice {
		r.BestFavorablePrice = pos.CurrentPrice
	}
	if !long && pos.CurrentPrice < r.BestFavorablePrice {
		r.BestFavorablePrice = pos.CurrentPrice
	}

	candidate, ok := m.candidateStop(r, pos.CurrentPrice, long, cond)
	if !ok {
		return r.CurrentStop, r.HasStop
	}

	if r.HasStop && !atLeastAsFavorable(candidate, r.CurrentStop, long) {
		// Ratchet discipline: stops never loosen except on explicit
		// strategy replacement.
		m.log.Debug("stop candidate discarded by ratchet",
			"symbol", pos.Symbol, "current", r.CurrentStop, "candidate", candidate)
		return r.CurrentStop, true
	}

	if !r.HasStop || candidate != r.CurrentStop {
		event := AdjustmentEvent{
			Timestamp: time.Now(),
			Symbol:    pos.Symbol,
			Strategy:  r.Strategy,
			OldStop:   r.CurrentStop,
			NewStop:   candidate,
		}
		m.history.Append(event)
		r.LastAdjustment = event.Timestamp
		metrics.StopAdjustments.Inc()
		m.log.Debug("stop adjusted", "symbol", pos.Symbol, "old", r.CurrentStop, "new", candidate)
	}
	r.CurrentStop = candidate
	r.HasStop = true
	return r.CurrentStop, true
}

// candidateStop computes the raw stop candidate for a record: the breakeven
// overlay when armed, otherwise the configured strategy.
func (m *Monitor) candidateStop(r *Record, current float64, long bool, cond domain.MarketConditions) (float64, bool) {
	if r.Params.ProfitTrigger > 0 {
		if stop, ok := BreakevenStop(r.EntryPrice, current, r.Params.ProfitTrigger, r.Params.Buffer, long); ok {
			return stop, true
		}
		if r.Strategy == StrategyBreakeven {
			// Pure breakeven with nothing armed yet: no stop, by design of
			// the strategy, not an error.
			return 0, false
		}
	}
	return Compute(r.Strategy, r.Params, r.EntryPrice, current, r.BestFavorablePrice, long, cond)
}

// atLeastAsFavorable reports whether a candidate stop protects the holder at
// least as well as the current one. For longs a higher stop is tighter; for
// shorts a lower one is.
func atLeastAsFavorable(candidate, current float64, long bool) bool {
	if long {
		return candidate >= current
	}
	return candidate <= current
}

// Stop returns the active stop for a symbol, if any.
func (m *Monitor) Stop(symbol string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[symbol]
	if !ok || !r.HasStop {
		return 0, false
	}
	return r.CurrentStop, true
}

// Records returns copies of all stop records keyed by symbol.
func (m *Monitor) Records() map[string]Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Record, len(m.records))
	for sym, r := range m.records {
		out[sym] = *r
	}
	return out
}

// AdjustmentHistory returns the recorded adjustments for a symbol in
// chronological order. An empty symbol returns all events.
func (m *Monitor) AdjustmentHistory(symbol string) []AdjustmentEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.history.Items()
	if symbol == "" {
		return events
	}
	var out []AdjustmentEvent
	for _, e := range events {
		if e.Symbol == symbol {
			out = append(out, e)
		}
	}
	return out
}

// Performance summarises the adjustment history, optionally filtered by
// symbol (empty = all symbols). Empty histories return zeroed fields; a
// single event reports frequency 0 to avoid a divide-by-zero over a zero
// time span.
func (m *Monitor) Performance(symbol string) Performance {
	events := m.AdjustmentHistory(symbol)

	perf := Performance{StrategyDistribution: make(map[Strategy]int)}
	if len(events) == 0 {
		return perf
	}

	perf.TotalAdjustments = len(events)

	sized := 0
	totalSize := 0.0
	for _, e := range events {
		perf.StrategyDistribution[e.Strategy]++
		if e.OldStop != 0 {
			delta := e.NewStop - e.OldStop
			if delta < 0 {
				delta = -delta
			}
			totalSize += delta
			sized++
		}
	}
	if sized > 0 {
		perf.AvgAdjustmentSize = totalSize / float64(sized)
	}

	if len(events) > 1 {
		span := events[len(events)-1].Timestamp.Sub(events[0].Timestamp).Hours()
		if span > 0 {
			perf.AdjustmentFrequency = float64(len(events)) / span
		}
	}
	return perf
}
