package event

import (
	"bytes"
	"encoding/json"
	"strings"

	"crypto_terminal/internal/domain"
	"crypto_terminal/internal/precision"
)

const requestIDKey = "requestId"

var (
	symbolKeys   = []string{"symbol", "s", "pair", "ticker"}
	intervalKeys = []string{"interval", "timeframe", "tf", "resolution"}

	// envelopeMetaKeys may sit next to the payload key. "ticker" is left out
	// because it is also a payload key.
	envelopeMetaKeys = map[string]struct{}{
		"symbol": {}, "s": {}, "pair": {},
		"interval": {}, "timeframe": {}, "tf": {}, "resolution": {},
	}
)

// Decode classifies an envelope by its single payload key and returns the
// typed event. It returns false for unparsable JSON, envelopes without
// exactly one payload key, and unknown keys; callers treat that as a no-op.
func Decode(raw []byte) (Event, bool) {
	var env object
	if err := json.Unmarshal(raw, &env); err != nil || env == nil {
		return nil, false
	}

	meta := Meta{RequestID: env.str(requestIDKey)}
	var (
		key     string
		payload json.RawMessage
	)
	for k, v := range env {
		if k == requestIDKey {
			continue
		}
		if _, isMeta := envelopeMetaKeys[k]; isMeta {
			continue
		}
		if key != "" {
			return nil, false
		}
		key, payload = k, v
	}
	kind, ok := kindKeys[key]
	if !ok {
		return nil, false
	}

	fillMeta(&meta, payload)
	if meta.Symbol == "" {
		meta.Symbol = strings.ToUpper(env.str("symbol", "s", "pair"))
	}
	if meta.Interval == "" {
		meta.Interval = env.str(intervalKeys...)
	}
	return decodePayload(kind, meta, payload)
}

// fillMeta looks up symbol and interval on the payload object, or on the
// first element when the payload is an array.
func fillMeta(meta *Meta, payload json.RawMessage) {
	objs := objects(payload)
	if len(objs) == 0 {
		return
	}
	meta.Symbol = strings.ToUpper(objs[0].str(symbolKeys...))
	meta.Interval = objs[0].str(intervalKeys...)
}

func decodePayload(kind Kind, meta Meta, payload json.RawMessage) (Event, bool) {
	switch kind {
	case KindChart:
		return &ChartEvent{Meta: meta, Candles: decodeCandles(payload)}, true
	case KindDepth:
		bids, asks, ok := decodeDepth(payload)
		if !ok {
			return nil, false
		}
		return &DepthEvent{Meta: meta, Bids: bids, Asks: asks}, true
	case KindOrders:
		return &OrdersEvent{Meta: meta, Orders: decodeSnapshot(payload)}, true
	case KindBalances:
		return &BalancesEvent{Meta: meta, Balances: decodeBalances(payload)}, true
	case KindBalanceUpdate:
		return &BalanceUpdateEvent{Meta: meta, Balances: decodeBalances(payload)}, true
	case KindFilters:
		return &FiltersEvent{Meta: meta, Filters: decodeFilters(payload)}, true
	case KindExecutionUpdate:
		objs := objects(payload)
		if len(objs) != 1 {
			return nil, false
		}
		report, ok := decodeExecution(objs[0])
		if !ok {
			return nil, false
		}
		return &ExecutionUpdateEvent{Meta: meta, Report: report}, true
	case KindTrades:
		return &TradesEvent{Meta: meta, Fills: decodeFills(payload, meta.Symbol)}, true
	case KindHistory:
		return &HistoryEvent{Meta: meta, Fills: decodeFills(payload, meta.Symbol)}, true
	case KindTicker:
		return &TickerEvent{Meta: meta, Tickers: decodeTickers(payload)}, true
	case KindTickerUpdate:
		return &TickerUpdateEvent{Meta: meta, Tickers: decodeTickers(payload)}, true
	default:
		return nil, false
	}
}

func decodeExecution(o object) (domain.ExecutionReport, bool) {
	r := domain.ExecutionReport{
		Symbol:      strings.ToUpper(o.str("s")),
		Side:        strings.ToUpper(o.str("S")),
		ExecType:    strings.ToUpper(o.str("x")),
		Status:      strings.ToUpper(o.str("X")),
		OrderID:     o.str("i"),
		Price:       o.decimalOrZero("p"),
		OrigQty:     o.decimalOrZero("q"),
		LastQty:     o.decimalOrZero("l"),
		CumQty:      o.decimalOrZero("z"),
		CumQuoteQty: o.decimalOrZero("Z"),
		Type:        strings.ToUpper(o.str("o")),
		TimeInForce: strings.ToUpper(o.str("f")),
	}
	r.EventTime, _ = o.int64("T", "E")
	r.CreatedTime, _ = o.int64("O")
	if sp, ok := o.decimal("P"); ok && sp.IsPositive() {
		r.StopPrice = &sp
	}
	if r.OrderID == "" || r.Status == "" {
		return r, false
	}
	return r, true
}

func decodeSnapshot(payload json.RawMessage) []domain.SnapshotOrder {
	objs := objects(payload)
	out := make([]domain.SnapshotOrder, 0, len(objs))
	for _, o := range objs {
		so := domain.SnapshotOrder{
			OrderID:     o.str("orderId"),
			Symbol:      strings.ToUpper(o.str("symbol")),
			Side:        strings.ToUpper(o.str("side")),
			Status:      strings.ToUpper(o.str("status")),
			Type:        strings.ToUpper(o.str("type")),
			TimeInForce: strings.ToUpper(o.str("timeInForce")),
			Price:       o.decimalOrZero("price"),
			OrigQty:     o.decimalOrZero("origQty"),
			ExecutedQty: o.decimalOrZero("executedQty"),
		}
		if so.OrderID == "" {
			continue
		}
		if sp, ok := o.decimal("stopPrice"); ok && sp.IsPositive() {
			so.StopPrice = &sp
		}
		so.Time, _ = o.int64("time")
		so.UpdateTime, _ = o.int64("updateTime")
		if so.UpdateTime == 0 {
			so.UpdateTime = so.Time
		}
		out = append(out, so)
	}
	return out
}

// decodeFills reads trade/history rows. Side comes from "side" or, failing
// that, from "isBuyer".
func decodeFills(payload json.RawMessage, fallbackSymbol string) []domain.Fill {
	objs := objects(payload)
	out := make([]domain.Fill, 0, len(objs))
	for _, o := range objs {
		price, okP := o.decimal("price", "p")
		qty, okQ := o.decimal("qty", "executedQty", "q")
		if !okP || !okQ {
			continue
		}
		f := domain.Fill{
			ID:          o.str("id"),
			OrderID:     o.str("orderId"),
			Symbol:      strings.ToUpper(o.str("symbol")),
			Side:        strings.ToUpper(o.str("side")),
			Price:       price,
			Qty:         qty,
			Status:      strings.ToUpper(o.str("status")),
			Type:        strings.ToUpper(o.str("type")),
			TimeInForce: strings.ToUpper(o.str("timeInForce")),
		}
		if f.Symbol == "" {
			f.Symbol = fallbackSymbol
		}
		if f.Side == "" {
			if isBuyer, ok := o.boolean("isBuyer"); ok {
				f.Side = domain.SideSell
				if isBuyer {
					f.Side = domain.SideBuy
				}
			}
		}
		if qq, ok := o.decimal("quoteQty", "cummulativeQuoteQty"); ok {
			f.QuoteQty = qq
		} else {
			f.QuoteQty = price.Mul(qty)
		}
		f.Time, _ = o.int64("time", "updateTime")
		out = append(out, f)
	}
	return out
}

func decodeFilters(payload json.RawMessage) []precision.Filter {
	payload = bytes.TrimSpace(payload)
	var rows []object
	if len(payload) > 0 && payload[0] == '{' {
		// Keyed by symbol: {"BTCUSDT": {...}, ...}
		var bySymbol map[string]json.RawMessage
		if err := json.Unmarshal(payload, &bySymbol); err != nil {
			return nil
		}
		for sym, raw := range bySymbol {
			var o object
			if json.Unmarshal(raw, &o) != nil || o == nil {
				continue
			}
			if _, ok := o.raw("symbol"); !ok {
				o["symbol"], _ = json.Marshal(sym)
			}
			rows = append(rows, o)
		}
	} else {
		rows = objects(payload)
	}

	out := make([]precision.Filter, 0, len(rows))
	for _, o := range rows {
		f := precision.Filter{
			Symbol:      strings.ToUpper(o.str("symbol")),
			Status:      o.str("status"),
			TickSize:    o.str("tickSize"),
			StepSize:    o.str("stepSize"),
			MinQty:      o.str("minQty"),
			MaxQty:      o.str("maxQty"),
			MinPrice:    o.str("minPrice"),
			MaxPrice:    o.str("maxPrice"),
			MinNotional: o.str("minNotional", "notional"),
			BaseAsset:   o.str("baseAsset"),
			QuoteAsset:  o.str("quoteAsset"),
		}
		if f.Symbol == "" {
			continue
		}
		if n, ok := o.int64("quoteAssetPrecision"); ok {
			qp := int(n)
			f.QuoteAssetPrecision = &qp
		}
		out = append(out, f)
	}
	return out
}

func decodeTickers(payload json.RawMessage) []domain.Ticker {
	objs := objects(payload)
	out := make([]domain.Ticker, 0, len(objs))
	for _, o := range objs {
		price, ok := o.decimal("price", "lastPrice", "c")
		sym := strings.ToUpper(o.str(symbolKeys...))
		if !ok || sym == "" {
			continue
		}
		t := domain.Ticker{
			Symbol:     sym,
			Price:      price,
			Volume:     o.decimalOrZero("volume", "v"),
			ChangeRate: o.decimalOrZero("priceChangePercent", "changeRate", "P"),
		}
		if prev, ok := o.decimal("prevPrice", "previousPrice"); ok {
			t.PrevPrice = &prev
		}
		t.Time, _ = o.int64("time", "closeTime", "E")
		out = append(out, t)
	}
	return out
}

func decodeBalances(payload json.RawMessage) []domain.Balance {
	objs := objects(payload)
	out := make([]domain.Balance, 0, len(objs))
	for _, o := range objs {
		asset := strings.ToUpper(o.str("asset", "a"))
		if asset == "" {
			continue
		}
		out = append(out, domain.Balance{
			Asset:  asset,
			Free:   o.decimalOrZero("free", "f"),
			Locked: o.decimalOrZero("locked", "l"),
		})
	}
	return out
}

// decodeDepth reads {"bids":[[p,q],...],"asks":[[p,q],...]} (or "b"/"a").
// Rows that do not parse are dropped.
func decodeDepth(payload json.RawMessage) (bids, asks []domain.PriceLevel, ok bool) {
	objs := objects(payload)
	if len(objs) != 1 {
		return nil, nil, false
	}
	o := objs[0]
	if raw, found := o.raw("bids", "b"); found {
		bids = decodeLevels(raw)
	}
	if raw, found := o.raw("asks", "a"); found {
		asks = decodeLevels(raw)
	}
	return bids, asks, true
}

func decodeLevels(raw json.RawMessage) []domain.PriceLevel {
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil
	}
	out := make([]domain.PriceLevel, 0, len(rows))
	for _, row := range rows {
		row = bytes.TrimSpace(row)
		if len(row) == 0 {
			continue
		}
		var lvl object
		if row[0] == '[' {
			var pair []json.RawMessage
			if json.Unmarshal(row, &pair) != nil || len(pair) < 2 {
				continue
			}
			lvl = object{"price": pair[0], "quantity": pair[1]}
		} else if json.Unmarshal(row, &lvl) != nil {
			continue
		}
		price, okP := lvl.decimal("price", "p")
		qty, okQ := lvl.decimal("quantity", "qty", "q")
		if !okP || !okQ {
			continue
		}
		out = append(out, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return out
}
