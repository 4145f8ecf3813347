package metaapi

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountInformation is the state of a trading account.
type AccountInformation struct {
	Platform    string          `json:"platform,omitempty"`
	Broker      string          `json:"broker,omitempty"`
	Currency    string          `json:"currency,omitempty"`
	Server      string          `json:"server,omitempty"`
	Balance     decimal.Decimal `json:"balance"`
	Equity      decimal.Decimal `json:"equity"`
	Margin      decimal.Decimal `json:"margin"`
	FreeMargin  decimal.Decimal `json:"freeMargin"`
	Leverage    int             `json:"leverage,omitempty"`
	MarginLevel decimal.Decimal `json:"marginLevel"`
}

// Position is an open position on the account.
type Position struct {
	ID                          string          `json:"id"`
	Type                        string          `json:"type,omitempty"`
	Symbol                      string          `json:"symbol"`
	Magic                       int             `json:"magic,omitempty"`
	Time                        time.Time       `json:"time"`
	BrokerTime                  string          `json:"brokerTime,omitempty"`
	UpdateTime                  time.Time       `json:"updateTime,omitempty"`
	OpenPrice                   decimal.Decimal `json:"openPrice"`
	CurrentPrice                decimal.Decimal `json:"currentPrice"`
	CurrentTickValue            decimal.Decimal `json:"currentTickValue"`
	StopLoss                    decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit                  decimal.Decimal `json:"takeProfit,omitempty"`
	Volume                      decimal.Decimal `json:"volume"`
	Swap                        decimal.Decimal `json:"swap"`
	Profit                      decimal.Decimal `json:"profit"`
	Commission                  decimal.Decimal `json:"commission,omitempty"`
	ClientID                    string          `json:"clientId,omitempty"`
	Comment                     string          `json:"comment,omitempty"`
	UnrealizedProfit            decimal.Decimal `json:"unrealizedProfit,omitempty"`
	RealizedProfit              decimal.Decimal `json:"realizedProfit,omitempty"`
}

// Order is a pending order on the account.
type Order struct {
	ID               string          `json:"id"`
	Type             string          `json:"type,omitempty"`
	State            string          `json:"state,omitempty"`
	Symbol           string          `json:"symbol"`
	Magic            int             `json:"magic,omitempty"`
	Time             time.Time       `json:"time"`
	BrokerTime       string          `json:"brokerTime,omitempty"`
	OpenPrice        decimal.Decimal `json:"openPrice,omitempty"`
	CurrentPrice     decimal.Decimal `json:"currentPrice,omitempty"`
	StopLoss         decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit       decimal.Decimal `json:"takeProfit,omitempty"`
	Volume           decimal.Decimal `json:"volume"`
	CurrentVolume    decimal.Decimal `json:"currentVolume,omitempty"`
	PositionID       string          `json:"positionId,omitempty"`
	ClientID         string          `json:"clientId,omitempty"`
	Comment          string          `json:"comment,omitempty"`
	Platform         string          `json:"platform,omitempty"`
	DoneTime         time.Time       `json:"doneTime,omitempty"`
	DoneBrokerTime   string          `json:"doneBrokerTime,omitempty"`
}

// Deal is an executed transaction in the account history.
type Deal struct {
	ID         string          `json:"id"`
	Type       string          `json:"type,omitempty"`
	EntryType  string          `json:"entryType,omitempty"`
	Symbol     string          `json:"symbol,omitempty"`
	Magic      int             `json:"magic,omitempty"`
	Time       time.Time       `json:"time"`
	BrokerTime string          `json:"brokerTime,omitempty"`
	Volume     decimal.Decimal `json:"volume,omitempty"`
	Price      decimal.Decimal `json:"price,omitempty"`
	Commission decimal.Decimal `json:"commission,omitempty"`
	Swap       decimal.Decimal `json:"swap,omitempty"`
	Profit     decimal.Decimal `json:"profit"`
	PositionID string          `json:"positionId,omitempty"`
	OrderID    string          `json:"orderId,omitempty"`
	ClientID   string          `json:"clientId,omitempty"`
	Comment    string          `json:"comment,omitempty"`
	Platform   string          `json:"platform,omitempty"`
}

// QuoteSession is a window of a weekday during which the broker streams
// prices for a symbol. Boundaries are broker-local "HH:mm:ss.SSS" strings and
// compare lexicographically.
type QuoteSession struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SymbolSpecification describes a tradable symbol.
type SymbolSpecification struct {
	Symbol              string                    `json:"symbol"`
	TickSize            decimal.Decimal           `json:"tickSize,omitempty"`
	MinVolume           decimal.Decimal           `json:"minVolume,omitempty"`
	MaxVolume           decimal.Decimal           `json:"maxVolume,omitempty"`
	VolumeStep          decimal.Decimal           `json:"volumeStep,omitempty"`
	ContractSize        decimal.Decimal           `json:"contractSize,omitempty"`
	BaseCurrency        string                    `json:"baseCurrency,omitempty"`
	ProfitCurrency      string                    `json:"profitCurrency,omitempty"`
	QuoteSessions       map[string][]QuoteSession `json:"quoteSessions,omitempty"`
	TradeSessions       map[string][]QuoteSession `json:"tradeSessions,omitempty"`
	Description         string                    `json:"description,omitempty"`
}

// SymbolPrice is a streamed tick for a symbol. BrokerTime is the broker-local
// wall clock of the tick and is what the health monitor derives the broker
// clock offset from.
type SymbolPrice struct {
	Symbol          string          `json:"symbol"`
	Bid             decimal.Decimal `json:"bid"`
	Ask             decimal.Decimal `json:"ask"`
	ProfitTickValue decimal.Decimal `json:"profitTickValue,omitempty"`
	LossTickValue   decimal.Decimal `json:"lossTickValue,omitempty"`
	Time            time.Time       `json:"time"`
	BrokerTime      string          `json:"brokerTime,omitempty"`
}

// TradeRequest is a trade to execute on the account.
type TradeRequest struct {
	ActionType string          `json:"actionType"`
	Symbol     string          `json:"symbol,omitempty"`
	Volume     decimal.Decimal `json:"volume,omitempty"`
	OpenPrice  decimal.Decimal `json:"openPrice,omitempty"`
	StopLoss   decimal.Decimal `json:"stopLoss,omitempty"`
	TakeProfit decimal.Decimal `json:"takeProfit,omitempty"`
	OrderID    string          `json:"orderId,omitempty"`
	PositionID string          `json:"positionId,omitempty"`
	Comment    string          `json:"comment,omitempty"`
	ClientID   string          `json:"clientId,omitempty"`
	Magic      int             `json:"magic,omitempty"`
}

// TradeResponse is the trading platform's reply to a trade request.
type TradeResponse struct {
	NumericCode int    `json:"numericCode"`
	StringCode  string `json:"stringCode"`
	Message     string `json:"message"`
	OrderID     string `json:"orderId,omitempty"`
	PositionID  string `json:"positionId,omitempty"`
}

// HistoryOrders is a page of historical orders. Synchronizing indicates the
// server is still filling the history and the page may be incomplete.
type HistoryOrders struct {
	HistoryOrders []Order `json:"historyOrders"`
	Synchronizing bool    `json:"synchronizing"`
}

// Deals is a page of historical deals.
type Deals struct {
	Deals         []Deal `json:"deals"`
	Synchronizing bool   `json:"synchronizing"`
}
