package metaapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimesConvertsTimeFields(t *testing.T) {
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"time": "2021-01-01T00:00:00.000Z",
		"updateTime": "2021-06-01T12:30:45.500Z",
		"brokerTime": "2021-01-01 02:00:00.000",
		"symbol": "EURUSD",
		"volume": 0.07
	}`), &payload))

	normalized := NormalizeTimes(payload).(map[string]interface{})

	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), normalized["time"])
	assert.Equal(t,
		time.Date(2021, 6, 1, 12, 30, 45, 500000000, time.UTC),
		normalized["updateTime"])
	assert.Equal(t, "2021-01-01 02:00:00.000", normalized["brokerTime"])
	assert.Equal(t, "EURUSD", normalized["symbol"])
	assert.Equal(t, 0.07, normalized["volume"])
}

func TestNormalizeTimesRecursesIntoContainers(t *testing.T) {
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"positions": [
			{"id": "1", "time": "2020-04-15T02:45:06.521Z"},
			{"id": "2", "time": "2020-04-16T02:45:06.521Z"}
		],
		"accountInformation": {"updateTime": "2020-04-15T02:45:06.521Z"}
	}`), &payload))

	normalized := NormalizeTimes(payload).(map[string]interface{})

	positions := normalized["positions"].([]interface{})
	first := positions[0].(map[string]interface{})
	assert.IsType(t, time.Time{}, first["time"])
	info := normalized["accountInformation"].(map[string]interface{})
	assert.IsType(t, time.Time{}, info["updateTime"])
}

func TestNormalizeTimesIsIdempotent(t *testing.T) {
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"time": "2021-01-01T00:00:00.000Z",
		"deals": [{"time": "2021-01-01T00:00:00.000Z", "brokerTime": "2021-01-01 02:00:00.000"}]
	}`), &payload))

	once := NormalizeTimes(payload)
	twice := NormalizeTimes(once)

	assert.Equal(t, once, twice)
}

func TestNormalizeTimesLeavesMalformedStrings(t *testing.T) {
	payload := map[string]interface{}{
		"time":     "not a timestamp",
		"doneTime": "2021-13-45T99:00:00Z",
	}

	normalized := NormalizeTimes(payload).(map[string]interface{})

	assert.Equal(t, "not a timestamp", normalized["time"])
	assert.Equal(t, "2021-13-45T99:00:00Z", normalized["doneTime"])
}

func TestNormalizeTimesToleratesCycles(t *testing.T) {
	payload := map[string]interface{}{"time": "2021-01-01T00:00:00.000Z"}
	payload["self"] = payload

	assert.NotPanics(t, func() {
		NormalizeTimes(payload)
	})
	assert.IsType(t, time.Time{}, payload["time"])
}

func TestNormalizeTimesRoundTrip(t *testing.T) {
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"time": "2021-01-01T00:00:00.000Z"}`), &payload))

	normalized := NormalizeTimes(payload).(map[string]interface{})
	serialized, err := json.Marshal(normalized)
	require.NoError(t, err)

	var back map[string]interface{}
	require.NoError(t, json.Unmarshal(serialized, &back))
	parsed, err := time.Parse(time.RFC3339Nano, back["time"].(string))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(normalized["time"].(time.Time)))
}
