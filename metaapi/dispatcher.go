package metaapi

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

// dispatchQueueSize bounds the per-account packet queue. The transport reader
// is decoupled from listeners by this buffer; a slow listener stalls only its
// own account until that account's queue is full, after which dispatch blocks
// its caller.
const dispatchQueueSize = 32

// dispatcher fans reordered synchronization packets out to the listeners
// registered for the packet's account. Dispatch is sequential within an
// account (one worker goroutine per account) and concurrent across accounts.
type dispatcher struct {
	logger Logger

	mu        sync.Mutex
	listeners map[string][]*SynchronizationListener
	queues    map[string]chan map[string]interface{}
	stopCh    chan struct{}
	closed    bool
	wg        sync.WaitGroup
}

func newDispatcher(logger Logger) *dispatcher {
	return &dispatcher{
		logger:    logger,
		listeners: map[string][]*SynchronizationListener{},
		queues:    map[string]chan map[string]interface{}{},
		stopCh:    make(chan struct{}),
	}
}

func (d *dispatcher) addListener(accountID string, listener *SynchronizationListener) {
	if listener == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[accountID] = append(d.listeners[accountID], listener)
}

func (d *dispatcher) removeListener(accountID string, listener *SynchronizationListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ls := d.listeners[accountID]
	for i, l := range ls {
		if l == listener {
			d.listeners[accountID] = append(append([]*SynchronizationListener{}, ls[:i]...), ls[i+1:]...)
			break
		}
	}
	if len(d.listeners[accountID]) == 0 {
		delete(d.listeners, accountID)
	}
}

// close stops the account workers and drops all listener registrations.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.listeners = map[string][]*SynchronizationListener{}
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
}

// dispatch hands a packet to the worker of its account, starting the worker
// on first use.
func (d *dispatcher) dispatch(packet map[string]interface{}) {
	accountID, _ := packet["accountId"].(string)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	q, ok := d.queues[accountID]
	if !ok {
		q = make(chan map[string]interface{}, dispatchQueueSize)
		d.queues[accountID] = q
		d.wg.Add(1)
		go d.worker(accountID, q)
	}
	d.mu.Unlock()

	select {
	case q <- packet:
	case <-d.stopCh:
	}
}

func (d *dispatcher) worker(accountID string, q <-chan map[string]interface{}) {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case packet := <-q:
			d.process(accountID, packet)
		}
	}
}

// snapshot copies the listener set so registrations may change while a packet
// is being dispatched.
func (d *dispatcher) snapshot(accountID string) []*SynchronizationListener {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*SynchronizationListener(nil), d.listeners[accountID]...)
}

func (d *dispatcher) process(accountID string, packet map[string]interface{}) {
	packetType, _ := packet["type"].(string)
	listeners := d.snapshot(accountID)
	if len(listeners) == 0 {
		return
	}

	switch packetType {
	case "authenticated":
		for _, l := range listeners {
			if l.OnConnected != nil {
				d.invoke(accountID, "onConnected", l.OnConnected)
			}
		}
	case "disconnected":
		for _, l := range listeners {
			if l.OnDisconnected != nil {
				d.invoke(accountID, "onDisconnected", l.OnDisconnected)
			}
		}
	case "synchronizationStarted":
		for _, l := range listeners {
			if l.OnSynchronizationStarted != nil {
				d.invoke(accountID, "onSynchronizationStarted", l.OnSynchronizationStarted)
			}
		}
	case "status":
		connected, _ := packet["connected"].(bool)
		for _, l := range listeners {
			if l.OnBrokerConnectionStatusChanged != nil {
				l := l
				d.invoke(accountID, "onBrokerConnectionStatusChanged", func() {
					l.OnBrokerConnectionStatusChanged(connected)
				})
			}
		}
	case "accountInformation":
		var payload struct {
			AccountInformation *AccountInformation `json:"accountInformation"`
		}
		if !d.decode(accountID, packetType, packet, &payload) {
			return
		}
		if payload.AccountInformation == nil {
			return
		}
		d.updateAccountInformation(accountID, listeners, *payload.AccountInformation)
	case "positions":
		var payload struct {
			Positions []Position `json:"positions"`
		}
		if !d.decode(accountID, packetType, packet, &payload) {
			return
		}
		for _, l := range listeners {
			if l.OnPositionsReplaced != nil {
				l, positions := l, payload.Positions
				d.invoke(accountID, "onPositionsReplaced", func() { l.OnPositionsReplaced(positions) })
			}
		}
	case "orders":
		var payload struct {
			Orders []Order `json:"orders"`
		}
		if !d.decode(accountID, packetType, packet, &payload) {
			return
		}
		for _, l := range listeners {
			if l.OnOrdersReplaced != nil {
				l, orders := l, payload.Orders
				d.invoke(accountID, "onOrdersReplaced", func() { l.OnOrdersReplaced(orders) })
			}
		}
	case "historyOrders":
		var payload struct {
			HistoryOrders []Order `json:"historyOrders"`
		}
		if !d.decode(accountID, packetType, packet, &payload) {
			return
		}
		for _, order := range payload.HistoryOrders {
			for _, l := range listeners {
				if l.OnHistoryOrderAdded != nil {
					l, order := l, order
					d.invoke(accountID, "onHistoryOrderAdded", func() { l.OnHistoryOrderAdded(order) })
				}
			}
		}
	case "deals":
		var payload struct {
			Deals []Deal `json:"deals"`
		}
		if !d.decode(accountID, packetType, packet, &payload) {
			return
		}
		for _, deal := range payload.Deals {
			for _, l := range listeners {
				if l.OnDealAdded != nil {
					l, deal := l, deal
					d.invoke(accountID, "onDealAdded", func() { l.OnDealAdded(deal) })
				}
			}
		}
	case "update":
		var payload struct {
			AccountInformation *AccountInformation `json:"accountInformation"`
			UpdatedPositions   []Position          `json:"updatedPositions"`
			RemovedPositionIDs []string            `json:"removedPositionIds"`
			UpdatedOrders      []Order             `json:"updatedOrders"`
			CompletedOrderIDs  []string            `json:"completedOrderIds"`
			HistoryOrders      []Order             `json:"historyOrders"`
			Deals              []Deal              `json:"deals"`
		}
		if !d.decode(accountID, packetType, packet, &payload) {
			return
		}
		if payload.AccountInformation != nil {
			d.updateAccountInformation(accountID, listeners, *payload.AccountInformation)
		}
		for _, position := range payload.UpdatedPositions {
			for _, l := range listeners {
				if l.OnPositionUpdated != nil {
					l, position := l, position
					d.invoke(accountID, "onPositionUpdated", func() { l.OnPositionUpdated(position) })
				}
			}
		}
		for _, positionID := range payload.RemovedPositionIDs {
			for _, l := range listeners {
				if l.OnPositionRemoved != nil {
					l, positionID := l, positionID
					d.invoke(accountID, "onPositionRemoved", func() { l.OnPositionRemoved(positionID) })
				}
			}
		}
		for _, order := range payload.UpdatedOrders {
			for _, l := range listeners {
				if l.OnOrderUpdated != nil {
					l, order := l, order
					d.invoke(accountID, "onOrderUpdated", func() { l.OnOrderUpdated(order) })
				}
			}
		}
		for _, orderID := range payload.CompletedOrderIDs {
			for _, l := range listeners {
				if l.OnOrderCompleted != nil {
					l, orderID := l, orderID
					d.invoke(accountID, "onOrderCompleted", func() { l.OnOrderCompleted(orderID) })
				}
			}
		}
		for _, order := range payload.HistoryOrders {
			for _, l := range listeners {
				if l.OnHistoryOrderAdded != nil {
					l, order := l, order
					d.invoke(accountID, "onHistoryOrderAdded", func() { l.OnHistoryOrderAdded(order) })
				}
			}
		}
		for _, deal := range payload.Deals {
			for _, l := range listeners {
				if l.OnDealAdded != nil {
					l, deal := l, deal
					d.invoke(accountID, "onDealAdded", func() { l.OnDealAdded(deal) })
				}
			}
		}
	case "dealSynchronizationFinished":
		synchronizationID, _ := packet["synchronizationId"].(string)
		for _, l := range listeners {
			if l.OnDealSynchronizationFinished != nil {
				l := l
				d.invoke(accountID, "onDealSynchronizationFinished", func() {
					l.OnDealSynchronizationFinished(synchronizationID)
				})
			}
		}
	case "orderSynchronizationFinished":
		synchronizationID, _ := packet["synchronizationId"].(string)
		for _, l := range listeners {
			if l.OnOrderSynchronizationFinished != nil {
				l := l
				d.invoke(accountID, "onOrderSynchronizationFinished", func() {
					l.OnOrderSynchronizationFinished(synchronizationID)
				})
			}
		}
	case "specifications":
		var payload struct {
			Specifications []SymbolSpecification `json:"specifications"`
		}
		if !d.decode(accountID, packetType, packet, &payload) {
			return
		}
		for _, specification := range payload.Specifications {
			for _, l := range listeners {
				if l.OnSymbolSpecificationUpdated != nil {
					l, specification := l, specification
					d.invoke(accountID, "onSymbolSpecificationUpdated", func() {
						l.OnSymbolSpecificationUpdated(specification)
					})
				}
			}
		}
	case "prices":
		var payload struct {
			Prices []SymbolPrice `json:"prices"`
		}
		if !d.decode(accountID, packetType, packet, &payload) {
			return
		}
		for _, price := range payload.Prices {
			for _, l := range listeners {
				if l.OnSymbolPriceUpdated != nil {
					l, price := l, price
					d.invoke(accountID, "onSymbolPriceUpdated", func() { l.OnSymbolPriceUpdated(price) })
				}
			}
		}
	default:
		d.logger.Infof("metaapi: account %s: ignoring packet of unknown type %s", accountID, packetType)
	}
}

func (d *dispatcher) updateAccountInformation(accountID string, listeners []*SynchronizationListener, info AccountInformation) {
	for _, l := range listeners {
		if l.OnAccountInformationUpdated != nil {
			l := l
			d.invoke(accountID, "onAccountInformationUpdated", func() { l.OnAccountInformationUpdated(info) })
		}
	}
}

// invoke shields the dispatch loop from a misbehaving listener.
func (d *dispatcher) invoke(accountID, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("metaapi: account %s: %s listener failed: %v", accountID, event, r)
		}
	}()
	fn()
}

func (d *dispatcher) decode(accountID, packetType string, packet map[string]interface{}, dst interface{}) bool {
	if err := decodePacket(packet, dst); err != nil {
		d.logger.Errorf("metaapi: account %s: could not decode %s packet: %v", accountID, packetType, err)
		return false
	}
	return true
}

// decodePacket decodes a normalized packet map into a typed payload. Instants
// are already time.Time values after normalization; numbers become decimals
// through the decode hook.
func decodePacket(src map[string]interface{}, dst interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: decimalDecodeHook,
		TagName:    "json",
		Result:     dst,
	})
	if err != nil {
		return err
	}
	return dec.Decode(src)
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func decimalDecodeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		return decimal.NewFromString(v)
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	default:
		return nil, fmt.Errorf("cannot decode %s into decimal", from)
	}
}
