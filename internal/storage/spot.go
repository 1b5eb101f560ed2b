package storage

import (
	"encoding/json"
	"errors"
	"math"
	"unicode/utf8"

	logx "spotcheck/pkg/logx"
)

// ErrInvalidPayload is returned when a spot payload is not a JSON object.
var ErrInvalidPayload = errors.New("spot payload must be a JSON object")

// DecodeSpot builds a Spot from a configure payload.
//
// Each field is taken independently: a missing, wrong-typed or over-long
// field falls back to its DefaultSpot value and is logged at info level.
// Only a payload that is not a JSON object is an error.
func DecodeSpot(raw []byte, log logx.Logger) (Spot, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return Spot{}, ErrInvalidPayload
	}
	def := DefaultSpot()
	return Spot{
		Name:      stringField(obj, "spot_name", MaxNameLen, def.Name, log),
		Lat:       stringField(obj, "spot_lat", MaxLatLen, def.Lat, log),
		Lon:       stringField(obj, "spot_lon", MaxLonLen, def.Lon, log),
		UID:       stringField(obj, "spot_uid", MaxUIDLen, def.UID, log),
		UTCOffset: offsetField(obj, "utc_offset", def.UTCOffset, log),
	}, nil
}

// Normalize applies the same per-field fallback rules to an already typed Spot.
func (s Spot) Normalize() Spot {
	def := DefaultSpot()
	if !validString(s.Name, MaxNameLen) {
		s.Name = def.Name
	}
	if !validString(s.Lat, MaxLatLen) {
		s.Lat = def.Lat
	}
	if !validString(s.Lon, MaxLonLen) {
		s.Lon = def.Lon
	}
	if !validString(s.UID, MaxUIDLen) {
		s.UID = def.UID
	}
	if s.UTCOffset < MinUTCOffset || s.UTCOffset > MaxUTCOffset {
		s.UTCOffset = def.UTCOffset
	}
	return s
}

func validString(v string, max int) bool {
	return v != "" && utf8.RuneCountInString(v) <= max
}

func stringField(obj map[string]json.RawMessage, key string, max int, def string, log logx.Logger) string {
	raw, ok := obj[key]
	if !ok {
		log.Info("spot field missing, using default", logx.String("field", key), logx.String("default", def))
		return def
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil || string(raw) == "null" {
		log.Info("spot field not a string, using default", logx.String("field", key), logx.String("default", def))
		return def
	}
	if !validString(v, max) {
		log.Info("spot field invalid length, using default", logx.String("field", key), logx.Int("max", max), logx.String("default", def))
		return def
	}
	return v
}

func offsetField(obj map[string]json.RawMessage, key string, def int, log logx.Logger) int {
	raw, ok := obj[key]
	if !ok {
		log.Info("spot field missing, using default", logx.String("field", key), logx.Int("default", def))
		return def
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil || string(raw) == "null" {
		log.Info("spot field not a number, using default", logx.String("field", key), logx.Int("default", def))
		return def
	}
	v = math.Trunc(v)
	if v < MinUTCOffset || v > MaxUTCOffset {
		log.Info("spot utc offset out of range, using default", logx.String("offset", string(raw)), logx.Int("default", def))
		return def
	}
	return int(v)
}
