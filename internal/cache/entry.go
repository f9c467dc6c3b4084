package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Cached entry layout: {"current_<MetricType>": <value>, "ts": "<RFC3339>"}
// plus optional metadata fields. 값은 구조화된 레코드로 직렬화 - 스칼라 원시값 금지

// encodeEntry serializes one cached metric entry
func encodeEntry(mt MetricType, value float64, ts time.Time, metadata map[string]interface{}) ([]byte, error) {
	data := map[string]interface{}{
		"current_" + string(mt): value,
		"ts":                    ts.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range metadata {
		data[k] = v
	}
	return json.Marshal(data)
}

// decodeEntry parses a cached metric entry back into value + timestamp
func decodeEntry(mt MetricType, raw []byte) (float64, time.Time, error) {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		return 0, time.Time{}, fmt.Errorf("cache entry unmarshal failed: %w", err)
	}

	valueRaw, ok := data["current_"+string(mt)]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("cache entry missing current_%s field", mt)
	}

	var value float64
	if err := json.Unmarshal(valueRaw, &value); err != nil {
		return 0, time.Time{}, fmt.Errorf("cache entry value decode failed: %w", err)
	}

	var ts time.Time
	if tsRaw, ok := data["ts"]; ok {
		var tsStr string
		if err := json.Unmarshal(tsRaw, &tsStr); err != nil {
			return 0, time.Time{}, fmt.Errorf("cache entry ts decode failed: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("cache entry ts parse failed: %w", err)
		}
		ts = parsed
	}

	return value, ts, nil
}

// isStale reports whether an entry's timestamp exceeds the semantic freshness
// bound. 저장소 TTL과 무관하게 적용 - "존재하지만 오래된" 값은 miss로 취급
func isStale(entryTS, now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	if entryTS.IsZero() {
		return true
	}
	return now.Sub(entryTS) > maxAge
}
