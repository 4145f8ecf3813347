package metaapi

// SynchronizationListener receives state synchronization events for a single
// account. Fields are optional capabilities: nil callbacks are skipped, so a
// consumer only fills in the events it cares about.
//
// For one account, callbacks are invoked in packet sequence order, and in the
// documented per-packet order for packets carrying several updates. Callbacks
// for different accounts may run concurrently.
type SynchronizationListener struct {
	// OnConnected is invoked when a server-side connection to the trading
	// terminal is established.
	OnConnected func()
	// OnDisconnected is invoked when the server-side connection is dropped.
	OnDisconnected func()
	// OnBrokerConnectionStatusChanged reports the broker connection state.
	OnBrokerConnectionStatusChanged func(connected bool)
	// OnSynchronizationStarted is invoked when a state synchronization pass
	// begins.
	OnSynchronizationStarted func()

	OnAccountInformationUpdated func(info AccountInformation)

	OnPositionsReplaced func(positions []Position)
	OnPositionUpdated   func(position Position)
	OnPositionRemoved   func(positionID string)

	OnOrdersReplaced func(orders []Order)
	OnOrderUpdated   func(order Order)
	OnOrderCompleted func(orderID string)

	OnHistoryOrderAdded func(order Order)
	OnDealAdded         func(deal Deal)

	// OnDealSynchronizationFinished is invoked when deal history has been
	// fully transferred for the given synchronization pass.
	OnDealSynchronizationFinished func(synchronizationID string)
	// OnOrderSynchronizationFinished is invoked when order history has been
	// fully transferred for the given synchronization pass.
	OnOrderSynchronizationFinished func(synchronizationID string)

	OnSymbolSpecificationUpdated func(specification SymbolSpecification)
	OnSymbolPriceUpdated         func(price SymbolPrice)
}
