package conditions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	logx "spotcheck/pkg/logx"
)

var (
	ErrTransport = errors.New("conditions transport failure")
	ErrMalformed = errors.New("conditions payload malformed")
)

const (
	keyTemp       = "temp"
	keyWindSpeed  = "wind_speed"
	keyWindDir    = "wind_dir"
	keyTideHeight = "tide_height"
)

// Parse decodes a conditions body of the form {"data": {...}}.
//
// If none of the four fields are present the payload is ErrMalformed.
// Otherwise every field is either its parsed value or its sentinel, and each
// substitution is logged at warn level.
func Parse(body []byte, now time.Time, log logx.Logger) (Snapshot, error) {
	var doc struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	data := doc.Data
	present := 0
	for _, k := range [...]string{keyTemp, keyWindSpeed, keyWindDir, keyTideHeight} {
		if _, ok := data[k]; ok {
			present++
		}
	}
	if present == 0 {
		return Snapshot{}, fmt.Errorf("%w: no expected fields in response", ErrMalformed)
	}

	return Snapshot{
		Temperature: numberField(data, keyTemp, TemperatureUnknown, log),
		WindSpeed:   numberField(data, keyWindSpeed, WindSpeedUnknown, log),
		WindDir:     stringField(data, keyWindDir, WindDirUnknown, log),
		TideHeight:  stringField(data, keyTideHeight, TideHeightUnknown, log),
		FetchedAt:   now,
	}, nil
}

func numberField(data map[string]json.RawMessage, key string, sentinel int, log logx.Logger) int {
	raw, ok := data[key]
	if !ok {
		log.Warn("conditions field missing", logx.String("field", key), logx.Int("fallback", sentinel))
		return sentinel
	}
	var v float64
	if string(raw) == "null" || json.Unmarshal(raw, &v) != nil {
		log.Warn("conditions field is not a number", logx.String("field", key), logx.Int("fallback", sentinel))
		return sentinel
	}
	if math.Abs(v) > maxReading {
		log.Warn("conditions field out of range", logx.String("field", key), logx.Int("fallback", sentinel))
		return sentinel
	}
	return int(math.Trunc(v))
}

// maxReading bounds numeric readings so the int conversion is well defined.
const maxReading = 1e6

func stringField(data map[string]json.RawMessage, key, sentinel string, log logx.Logger) string {
	raw, ok := data[key]
	if !ok {
		log.Warn("conditions field missing", logx.String("field", key), logx.String("fallback", sentinel))
		return sentinel
	}
	var v string
	if string(raw) == "null" || json.Unmarshal(raw, &v) != nil {
		log.Warn("conditions field is not a string", logx.String("field", key), logx.String("fallback", sentinel))
		return sentinel
	}
	return v
}
