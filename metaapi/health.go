package metaapi

import (
	"strings"
	"sync"
	"time"

	"github.com/agiliumtrade-ai/metaapi-go/internal/stats"
)

// TerminalState is the local mirror of remote terminal state, maintained by an
// external collaborator. The health monitor only reads it.
type TerminalState interface {
	Connected() bool
	ConnectedToBroker() bool
	Synchronized() bool
	SubscribedSymbols() []string
	Specification(symbol string) (SymbolSpecification, bool)
}

// ConnectionHealthStatus is a snapshot of connection health. Healthy is the
// conjunction of the four booleans.
type ConnectionHealthStatus struct {
	Connected             bool
	ConnectedToBroker     bool
	QuoteStreamingHealthy bool
	Synchronized          bool
	Healthy               bool
	Message               string
}

const (
	healthTickInterval = time.Second
	// defaultMinQuoteInterval is how stale the last price update may be while
	// quotes still count as streamed.
	defaultMinQuoteInterval = time.Minute

	// uptime is tracked over a week at hourly resolution
	uptimeWindowSize = 168
	uptimeWindowSpan = 7 * 24 * time.Hour

	serverTimeLayout = "15:04:05.000"
	// brokerTimeLayout is how broker-local wall-clock times arrive on the
	// wire. They carry no zone; parsing yields the broker wall clock.
	brokerTimeLayout = "2006-01-02 15:04:05.000"
)

// HealthMonitor derives connection, quote streaming and synchronization
// health from terminal state and the price stream, and tracks weekly uptime.
//
// Register Listener with the client for the monitored account, then Start the
// periodic checks.
type HealthMonitor struct {
	state            TerminalState
	logger           Logger
	minQuoteInterval time.Duration
	uptime           *stats.Reservoir

	mu            sync.Mutex
	offset        time.Duration
	priceReceived time.Time
	quotesHealthy bool
	stopCh        chan struct{}
	doneCh        chan struct{}

	// for testing only
	newTicker func(d time.Duration) ticker
	now       func() time.Time
}

// NewHealthMonitor creates a monitor over the given terminal state.
func NewHealthMonitor(state TerminalState, logger Logger) *HealthMonitor {
	if logger == nil {
		logger = newStdLog()
	}
	return &HealthMonitor{
		state:            state,
		logger:           logger,
		minQuoteInterval: defaultMinQuoteInterval,
		uptime:           stats.NewReservoir(uptimeWindowSize, uptimeWindowSpan),
		quotesHealthy:    true,
		newTicker:        newTimeTicker,
		now:              time.Now,
	}
}

// Listener returns the synchronization listener feeding the monitor. It only
// consumes price updates.
func (m *HealthMonitor) Listener() *SynchronizationListener {
	return &SynchronizationListener{
		OnSymbolPriceUpdated: m.priceUpdated,
	}
}

// Start arms the periodic health and uptime checks.
func (m *HealthMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.run(m.stopCh, m.doneCh)
}

// Stop disarms the periodic checks.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh, m.doneCh = nil, nil
	m.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
}

// priceUpdated records the tick arrival and derives the broker-clock offset
// from the broker-local time stamp. The UTC time field cannot serve here: it
// tracks the client clock, so the offset it yields loses the broker's
// timezone.
func (m *HealthMonitor) priceUpdated(price SymbolPrice) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priceReceived = now
	if price.BrokerTime == "" {
		return
	}
	brokerTime, err := time.Parse(brokerTimeLayout, price.BrokerTime)
	if err != nil {
		m.logger.Warnf("metaapi: could not parse broker time %q: %v", price.BrokerTime, err)
		return
	}
	m.offset = now.Sub(brokerTime)
}

func (m *HealthMonitor) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	quoteTicker := m.newTicker(healthTickInterval)
	defer quoteTicker.Stop()
	uptimeTicker := m.newTicker(healthTickInterval)
	defer uptimeTicker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-quoteTicker.C():
			m.tick("quote health", m.updateQuoteHealth)
		case <-uptimeTicker.C():
			m.tick("uptime", m.measureUptime)
		}
	}
}

// tick shields the check loop from a failing check.
func (m *HealthMonitor) tick(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf("metaapi: %s: %s check failed: %v", m.now().Format(time.RFC3339), name, r)
		}
	}()
	fn()
}

// updateQuoteHealth recomputes whether quotes are streamed as expected.
// Quotes are healthy when no symbols are subscribed, when the broker clock is
// outside every quote session of every subscribed symbol, or when the last
// price update is fresh enough.
func (m *HealthMonitor) updateQuoteHealth() {
	m.mu.Lock()
	offset := m.offset
	priceReceived := m.priceReceived
	m.mu.Unlock()

	now := m.now()
	healthy := true

	symbols := m.state.SubscribedSymbols()
	if len(symbols) > 0 && m.inQuoteSession(symbols, now.Add(-offset)) {
		healthy = !priceReceived.IsZero() && now.Sub(priceReceived) <= m.minQuoteInterval
	}

	m.mu.Lock()
	m.quotesHealthy = healthy
	m.mu.Unlock()
}

// inQuoteSession reports whether the broker-local clock falls inside a quote
// session of at least one of the symbols. Session boundaries are formatted
// "HH:mm:ss.SSS" strings and compare lexicographically.
func (m *HealthMonitor) inQuoteSession(symbols []string, brokerNow time.Time) bool {
	brokerNow = brokerNow.UTC()
	serverTime := brokerNow.Format(serverTimeLayout)
	weekday := strings.ToUpper(brokerNow.Weekday().String())

	for _, symbol := range symbols {
		specification, ok := m.state.Specification(symbol)
		if !ok {
			continue
		}
		for _, session := range specification.QuoteSessions[weekday] {
			if session.From <= serverTime && serverTime <= session.To {
				return true
			}
		}
	}
	return false
}

// measureUptime pushes the current health sample into the weekly reservoir.
func (m *HealthMonitor) measureUptime() {
	status := m.HealthStatus()
	if status.Healthy {
		m.uptime.Push(100)
	} else {
		m.uptime.Push(0)
	}
}

// Uptime returns the percentage of time the connection was healthy over the
// past week.
func (m *HealthMonitor) Uptime() float64 {
	return m.uptime.Statistics().Average
}

// HealthStatus composes the current health snapshot.
func (m *HealthMonitor) HealthStatus() ConnectionHealthStatus {
	m.mu.Lock()
	quotesHealthy := m.quotesHealthy
	m.mu.Unlock()

	status := ConnectionHealthStatus{
		Connected:             m.state.Connected(),
		ConnectedToBroker:     m.state.ConnectedToBroker(),
		QuoteStreamingHealthy: quotesHealthy,
		Synchronized:          m.state.Synchronized(),
	}
	status.Healthy = status.Connected && status.ConnectedToBroker &&
		status.QuoteStreamingHealthy && status.Synchronized

	if status.Healthy {
		status.Message = "Connection is healthy"
		return status
	}
	var reasons []string
	if !status.Connected {
		reasons = append(reasons, "connection to API server is not established or lost")
	}
	if !status.ConnectedToBroker {
		reasons = append(reasons, "connection to broker is not established or lost")
	}
	if !status.Synchronized {
		reasons = append(reasons, "local terminal state is not synchronized to broker")
	}
	if !status.QuoteStreamingHealthy {
		reasons = append(reasons, "quotes are not streamed by the broker")
	}
	status.Message = "Connection is not healthy because " + strings.Join(reasons, " and ") + "."
	return status
}
