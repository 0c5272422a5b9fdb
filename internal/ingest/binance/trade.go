package binance

import (
	"strings"

	"tradecore/internal/mdg"
	"tradecore/internal/model"
)

const _tradeEvent = "trade"

// TradeEvent is the payload of the Binance '<symbol>@trade' stream.
type TradeEvent struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
}

// TakerSide is the aggressor side: a maker buyer means the taker sold.
func (e TradeEvent) TakerSide() model.Side {
	if e.BuyerIsMaker {
		return model.SideSell
	}
	return model.SideBuy
}

// Raw converts the event into a raw tick for symbol ("BASE/QUOTE").
func (e TradeEvent) Raw(symbol string, recv int64) mdg.RawTick {
	return mdg.RawTick{
		Symbol:  symbol,
		Price:   e.Price,
		Volume:  e.Quantity,
		Side:    e.TakerSide().String(),
		TsEvent: e.TradeTime,
		TsRecv:  recv,
	}
}

func tradeStream(symbol string) string {
	return strings.ToLower(model.ExchangeSymbol(symbol)) + "@" + _tradeEvent
}
