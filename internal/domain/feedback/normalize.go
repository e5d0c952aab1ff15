package feedback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Normalize turns a loosely structured feedback submission into a Record.
//
// Tolerated shapes:
//   - verdict nested as {"result": {"deepfake", "confidence"}} or flat at the top level
//   - referenced ids under "frameIds" or "frame_ids"
//   - "timestamp" as Unix milliseconds or an RFC 3339 string
//   - booleans as JSON booleans or the strings "true" and "false"
//
// Missing fields default: wasCorrect=true, userCorrection=nil, frame ids
// empty, source "unknown", timestamp now. Only a payload that is not a JSON
// object fails, with ErrValidation. The returned Record has no ID.
func Normalize(raw []byte, now time.Time) (Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		if err == nil {
			err = fmt.Errorf("payload is null")
		}
		return Record{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	verdict := fields
	if nested, ok := asObject(fields["result"]); ok {
		verdict = nested
	}

	rec := Record{
		Timestamp:           parseTimestamp(fields["timestamp"], now),
		PredictedIsDeepfake: boolOr(verdict["deepfake"], false),
		PredictedConfidence: floatOr(verdict["confidence"], 0),
		WasCorrect:          boolOr(fields["wasCorrect"], true),
		UserCorrection:      optionalBool(fields["userCorrection"]),
		FrameIDs:            frameIDs(fields),
		Source:              stringOr(fields["source"], DefaultSource),
	}
	return rec, nil
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func asObject(v json.RawMessage) (map[string]json.RawMessage, bool) {
	if isNull(v) {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, false
	}
	return m, true
}

// parseBool accepts a JSON boolean or its string form ("true", "false").
func parseBool(v json.RawMessage) (bool, bool) {
	if isNull(v) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, false
	}
	return b, true
}

func boolOr(v json.RawMessage, def bool) bool {
	if b, ok := parseBool(v); ok {
		return b
	}
	return def
}

func optionalBool(v json.RawMessage) *bool {
	b, ok := parseBool(v)
	if !ok {
		return nil
	}
	return &b
}

func floatOr(v json.RawMessage, def float64) float64 {
	if isNull(v) {
		return def
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil || math.IsNaN(f) {
		return def
	}
	return f
}

func stringOr(v json.RawMessage, def string) string {
	if isNull(v) {
		return def
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil || s == "" {
		return def
	}
	return s
}

// frameIDs prefers "frameIds" over "frame_ids" when both keys exist, even if
// the preferred one is null.
func frameIDs(fields map[string]json.RawMessage) []string {
	raw, ok := fields["frameIds"]
	if !ok {
		raw = fields["frame_ids"]
	}
	ids := []string{}
	if isNull(raw) {
		return ids
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return ids
	}
	for _, item := range items {
		if isNull(item) {
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			ids = append(ids, s)
		}
	}
	return ids
}

func parseTimestamp(v json.RawMessage, now time.Time) time.Time {
	if isNull(v) {
		return now
	}
	var ms float64
	if err := json.Unmarshal(v, &ms); err == nil && ms > 0 && !math.IsInf(ms, 0) {
		return time.UnixMilli(int64(ms)).UTC()
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
		// ISO 8601 without a zone offset.
		if t, err := time.Parse("2006-01-02T15:04:05.999999", s); err == nil {
			return t.UTC()
		}
	}
	return now
}
