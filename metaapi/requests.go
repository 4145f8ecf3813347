package metaapi

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// isoTimeLayout is how instants are encoded in outbound requests.
const isoTimeLayout = "2006-01-02T15:04:05.000Z"

func formatISOTime(t time.Time) string {
	return t.UTC().Format(isoTimeLayout)
}

func (c *Client) rpcInto(ctx context.Context, accountID string, request map[string]interface{}, dst interface{}) error {
	raw, err := c.rpc(ctx, accountID, request, 0)
	if err != nil {
		return err
	}
	if dst == nil {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// GetAccountInformation returns the account's state.
func (c *Client) GetAccountInformation(ctx context.Context, accountID string) (*AccountInformation, error) {
	var resp struct {
		AccountInformation *AccountInformation `json:"accountInformation"`
	}
	err := c.rpcInto(ctx, accountID, map[string]interface{}{"type": "getAccountInformation"}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.AccountInformation, nil
}

// GetPositions returns the account's open positions.
func (c *Client) GetPositions(ctx context.Context, accountID string) ([]Position, error) {
	var resp struct {
		Positions []Position `json:"positions"`
	}
	err := c.rpcInto(ctx, accountID, map[string]interface{}{"type": "getPositions"}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Positions, nil
}

// GetPosition returns one open position by its id.
func (c *Client) GetPosition(ctx context.Context, accountID, positionID string) (*Position, error) {
	var resp struct {
		Position *Position `json:"position"`
	}
	err := c.rpcInto(ctx, accountID, map[string]interface{}{
		"type":       "getPosition",
		"positionId": positionID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Position, nil
}

// GetOrders returns the account's pending orders.
func (c *Client) GetOrders(ctx context.Context, accountID string) ([]Order, error) {
	var resp struct {
		Orders []Order `json:"orders"`
	}
	err := c.rpcInto(ctx, accountID, map[string]interface{}{"type": "getOrders"}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetOrder returns one pending order by its id.
func (c *Client) GetOrder(ctx context.Context, accountID, orderID string) (*Order, error) {
	var resp struct {
		Order *Order `json:"order"`
	}
	err := c.rpcInto(ctx, accountID, map[string]interface{}{
		"type":    "getOrder",
		"orderId": orderID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

// GetHistoryOrdersByTicket returns historical orders matching a ticket.
func (c *Client) GetHistoryOrdersByTicket(ctx context.Context, accountID, ticket string) (*HistoryOrders, error) {
	var resp HistoryOrders
	err := c.rpcInto(ctx, accountID, map[string]interface{}{
		"type":   "getHistoryOrdersByTicket",
		"ticket": ticket,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetHistoryOrdersByPosition returns historical orders of a position.
func (c *Client) GetHistoryOrdersByPosition(ctx context.Context, accountID, positionID string) (*HistoryOrders, error) {
	var resp HistoryOrders
	err := c.rpcInto(ctx, accountID, map[string]interface{}{
		"type":       "getHistoryOrdersByPosition",
		"positionId": positionID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetHistoryOrdersByTimeRange returns a page of historical orders within the
// time range.
func (c *Client) GetHistoryOrdersByTimeRange(ctx context.Context, accountID string, start, end time.Time, offset, limit int) (*HistoryOrders, error) {
	var resp HistoryOrders
	err := c.rpcInto(ctx, accountID, map[string]interface{}{
		"type":      "getHistoryOrdersByTimeRange",
		"startTime": formatISOTime(start),
		"endTime":   formatISOTime(end),
		"offset":    offset,
		"limit":     limit,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDealsByTicket returns historical deals matching a ticket.
func (c *Client) GetDealsByTicket(ctx context.Context, accountID, ticket string) (*Deals, error) {
	var resp Deals
	err := c.rpcInto(ctx, accountID, map[string]interface{}{
		"type":   "getDealsByTicket",
		"ticket": ticket,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDealsByPosition returns historical deals of a position.
func (c *Client) GetDealsByPosition(ctx context.Context, accountID, positionID string) (*Deals, error) {
	var resp Deals
	err := c.rpcInto(ctx, accountID, map[string]interface{}{
		"type":       "getDealsByPosition",
		"positionId": positionID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDealsByTimeRange returns a page of historical deals within the time
// range.
func (c *Client) GetDealsByTimeRange(ctx context.Context, accountID string, start, end time.Time, offset, limit int) (*Deals, error) {
	var resp Deals
	err := c.rpcInto(ctx, accountID, map[string]interface{}{
		"type":      "getDealsByTimeRange",
		"startTime": formatISOTime(start),
		"endTime":   formatISOTime(end),
		"offset":    offset,
		"limit":     limit,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveHistory clears the account's order and deal history.
func (c *Client) RemoveHistory(ctx context.Context, accountID string) error {
	return c.rpcInto(ctx, accountID, map[string]interface{}{"type": "removeHistory"}, nil)
}

// RemoveApplication clears the application-scoped state for the account.
func (c *Client) RemoveApplication(ctx context.Context, accountID string) error {
	return c.rpcInto(ctx, accountID, map[string]interface{}{"type": "removeApplication"}, nil)
}

// tradeSuccessCodes are the platform return codes that count as a successful
// trade.
var tradeSuccessCodes = map[string]struct{}{
	"ERR_NO_ERROR":               {},
	"TRADE_RETCODE_PLACED":       {},
	"TRADE_RETCODE_DONE":         {},
	"TRADE_RETCODE_DONE_PARTIAL": {},
	"TRADE_RETCODE_NO_CHANGES":   {},
}

// Trade executes a trade on the account. Any platform return code outside the
// success set is reported as a TradeError.
func (c *Client) Trade(ctx context.Context, accountID string, trade TradeRequest) (*TradeResponse, error) {
	var resp struct {
		Response *wireTradeResponse `json:"response"`
	}
	err := c.rpcInto(ctx, accountID, map[string]interface{}{
		"type":  "trade",
		"trade": trade,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Response == nil {
		return nil, &InternalError{Message: "trade response is missing"}
	}
	result := resp.Response.normalize()
	if _, ok := tradeSuccessCodes[result.StringCode]; !ok {
		return nil, &TradeError{
			Message:     result.Message,
			NumericCode: result.NumericCode,
			StringCode:  result.StringCode,
		}
	}
	return result, nil
}

// wireTradeResponse accepts the legacy field names description and error as
// aliases for stringCode and numericCode.
type wireTradeResponse struct {
	NumericCode *int   `json:"numericCode"`
	StringCode  string `json:"stringCode"`
	Message     string `json:"message"`
	OrderID     string `json:"orderId"`
	PositionID  string `json:"positionId"`
	Description string `json:"description"`
	Error       *int   `json:"error"`
}

func (w *wireTradeResponse) normalize() *TradeResponse {
	r := &TradeResponse{
		StringCode: w.StringCode,
		Message:    w.Message,
		OrderID:    w.OrderID,
		PositionID: w.PositionID,
	}
	if r.StringCode == "" {
		r.StringCode = w.Description
	}
	switch {
	case w.NumericCode != nil:
		r.NumericCode = *w.NumericCode
	case w.Error != nil:
		r.NumericCode = *w.Error
	}
	return r
}

// Subscribe asks the server to start pushing the account's synchronization
// packets. It is fire and forget: timeouts are suppressed because the server
// pushes packets once it is ready; other failures are logged and surfaced
// through the subscribe error callback when one is configured.
func (c *Client) Subscribe(accountID string) {
	go func() {
		_, err := c.rpc(context.Background(), accountID, map[string]interface{}{"type": "subscribe"}, 0)
		if err == nil {
			return
		}
		var timeout *TimeoutError
		if errors.As(err, &timeout) {
			return
		}
		c.logger.Errorf("metaapi: account %s: subscribe failed: %v", accountID, err)
		if c.onSubscribeError != nil {
			c.onSubscribeError(accountID, err)
		}
	}()
}

// Reconnect asks the server to reconnect the account to its trading terminal.
func (c *Client) Reconnect(ctx context.Context, accountID string) error {
	return c.rpcInto(ctx, accountID, map[string]interface{}{"type": "reconnect"}, nil)
}

// Synchronize starts a server-side state synchronization pass. The
// synchronization id doubles as the request id so server-side correlation
// survives client restarts; pass the zero time to sync the full history.
func (c *Client) Synchronize(ctx context.Context, accountID, synchronizationID string, startingHistoryOrderTime, startingDealTime time.Time) error {
	request := map[string]interface{}{
		"type":      "synchronize",
		"requestId": synchronizationID,
	}
	if !startingHistoryOrderTime.IsZero() {
		request["startingHistoryOrderTime"] = formatISOTime(startingHistoryOrderTime)
	}
	if !startingDealTime.IsZero() {
		request["startingDealTime"] = formatISOTime(startingDealTime)
	}
	return c.rpcInto(ctx, accountID, request, nil)
}

// WaitSynchronized blocks until the server reports the terminal state
// synchronized or the server-side wait expires. The client-side deadline
// trails the server-side wait by one second so the server reply wins the
// race.
func (c *Client) WaitSynchronized(ctx context.Context, accountID, applicationPattern, synchronizationID string, timeout time.Duration) error {
	request := map[string]interface{}{
		"type":             "waitSynchronized",
		"timeoutInSeconds": timeout.Seconds(),
	}
	if applicationPattern != "" {
		request["applicationPattern"] = applicationPattern
	}
	if synchronizationID != "" {
		request["synchronizationId"] = synchronizationID
	}
	_, err := c.rpc(ctx, accountID, request, timeout+time.Second)
	return err
}

// SubscribeToMarketData subscribes the terminal to streamed prices of a
// symbol.
func (c *Client) SubscribeToMarketData(ctx context.Context, accountID, symbol string) error {
	return c.rpcInto(ctx, accountID, map[string]interface{}{
		"type":   "subscribeToMarketData",
		"symbol": symbol,
	}, nil)
}

// GetSymbolSpecification returns the specification of a symbol.
func (c *Client) GetSymbolSpecification(ctx context.Context, accountID, symbol string) (*SymbolSpecification, error) {
	var resp struct {
		Specification *SymbolSpecification `json:"specification"`
	}
	err := c.rpcInto(ctx, accountID, map[string]interface{}{
		"type":   "getSymbolSpecification",
		"symbol": symbol,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Specification, nil
}

// GetSymbolPrice returns the latest price of a symbol.
func (c *Client) GetSymbolPrice(ctx context.Context, accountID, symbol string) (*SymbolPrice, error) {
	var resp struct {
		Price *SymbolPrice `json:"price"`
	}
	err := c.rpcInto(ctx, accountID, map[string]interface{}{
		"type":   "getSymbolPrice",
		"symbol": symbol,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Price, nil
}
