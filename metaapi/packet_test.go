package metaapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanPacketInfo(t *testing.T) {
	info, err := scanPacketInfo([]byte(`{
		"type": "prices",
		"accountId": "account-1",
		"sequenceNumber": 42,
		"prices": [{"symbol": "EURUSD", "bid": 1.1, "ask": 1.2}]
	}`))

	require.NoError(t, err)
	assert.Equal(t, "prices", info.Type)
	assert.Equal(t, "account-1", info.AccountID)
	assert.EqualValues(t, 42, info.SequenceNumber)
	assert.True(t, info.HasSequence)
}

func TestScanPacketInfoWithoutSequence(t *testing.T) {
	info, err := scanPacketInfo([]byte(`{"requestId": "req-1", "accountInformation": {"balance": 100}}`))

	require.NoError(t, err)
	assert.Equal(t, "req-1", info.RequestID)
	assert.False(t, info.HasSequence)
}

func TestScanPacketInfoSkipsNulls(t *testing.T) {
	info, err := scanPacketInfo([]byte(`{"type": null, "accountId": "a", "details": null}`))

	require.NoError(t, err)
	assert.Empty(t, info.Type)
	assert.Equal(t, "a", info.AccountID)
}

func TestScanPacketInfoMalformed(t *testing.T) {
	_, err := scanPacketInfo([]byte(`{"type": "prices"`))

	require.Error(t, err)
}
