package event

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"crypto_terminal/internal/domain"
)

// secondsCeiling separates second timestamps from millisecond (or finer) ones.
const secondsCeiling = 1e10

// decodeCandles accepts a list of candle objects or a map keyed by timestamp.
// A candle needs finite open/high/low/close; volume defaults to 0. Entries
// that do not qualify are dropped. The result is ascending by time and a
// repeated time keeps the last entry.
func decodeCandles(payload json.RawMessage) []domain.Candle {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil
	}

	var candles []domain.Candle
	switch payload[0] {
	case '[':
		for _, o := range objects(payload) {
			if c, ok := candleFrom(o, ""); ok {
				candles = append(candles, c)
			}
		}
	case '{':
		var byTime map[string]json.RawMessage
		if err := json.Unmarshal(payload, &byTime); err != nil {
			return nil
		}
		for key, raw := range byTime {
			var o object
			if json.Unmarshal(raw, &o) != nil || o == nil {
				continue
			}
			if c, ok := candleFrom(o, key); ok {
				candles = append(candles, c)
			}
		}
	default:
		return nil
	}
	return sortCandles(candles)
}

func candleFrom(o object, key string) (domain.Candle, bool) {
	open, ok1 := o.float("open", "o")
	high, ok2 := o.float("high", "h")
	low, ok3 := o.float("low", "l")
	closePrice, ok4 := o.float("close", "c")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return domain.Candle{}, false
	}

	ts, ok := o.int64("time", "t", "timestamp", "openTime")
	if !ok && key != "" {
		n, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return domain.Candle{}, false
		}
		ts, ok = int64(n), true
	}
	if !ok || ts <= 0 {
		return domain.Candle{}, false
	}

	volume, _ := o.float("volume", "v")
	return domain.Candle{
		Time:   NormalizeTime(ts),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}, true
}

// NormalizeTime converts millisecond (or finer) timestamps to seconds.
func NormalizeTime(ts int64) int64 {
	for ts > secondsCeiling {
		ts /= 1000
	}
	return ts
}

func sortCandles(in []domain.Candle) []domain.Candle {
	sort.SliceStable(in, func(i, j int) bool { return in[i].Time < in[j].Time })
	out := in[:0]
	for _, c := range in {
		if n := len(out); n > 0 && out[n-1].Time == c.Time {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}
