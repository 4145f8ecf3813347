package metaapi

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syncPacket(accountID string, seq int64, packetType string) map[string]interface{} {
	return map[string]interface{}{
		"type":           packetType,
		"accountId":      accountID,
		"sequenceNumber": float64(seq),
	}
}

func sequenceNumbers(t *testing.T, packets []map[string]interface{}) []int64 {
	t.Helper()
	out := make([]int64, 0, len(packets))
	for _, p := range packets {
		seq, ok := sequenceNumberOf(p)
		require.True(t, ok)
		out = append(out, seq)
	}
	return out
}

func TestOrdererPassesThroughUnsequencedPackets(t *testing.T) {
	o := newPacketOrderer(10*time.Second, newStdLog(), nil)

	p := map[string]interface{}{"type": "status", "accountId": "a", "connected": true}
	out := o.restoreOrder(p)

	require.Len(t, out, 1)
	assert.Equal(t, p, out[0])
}

func TestOrdererAdoptsFirstObservedSequence(t *testing.T) {
	o := newPacketOrderer(10*time.Second, newStdLog(), nil)

	out := o.restoreOrder(syncPacket("a", 5, "authenticated"))

	assert.Equal(t, []int64{5}, sequenceNumbers(t, out))
}

func TestOrdererReordersOutOfOrderPackets(t *testing.T) {
	o := newPacketOrderer(10*time.Second, newStdLog(), nil)

	var emitted []map[string]interface{}
	emitted = append(emitted, o.restoreOrder(syncPacket("a", 5, "authenticated"))...)
	emitted = append(emitted, o.restoreOrder(syncPacket("a", 7, "status"))...)
	emitted = append(emitted, o.restoreOrder(syncPacket("a", 6, "accountInformation"))...)

	assert.Equal(t, []int64{5, 6, 7}, sequenceNumbers(t, emitted))
}

func TestOrdererDropsDuplicates(t *testing.T) {
	o := newPacketOrderer(10*time.Second, newStdLog(), nil)

	o.restoreOrder(syncPacket("a", 5, "authenticated"))
	o.restoreOrder(syncPacket("a", 6, "status"))

	assert.Empty(t, o.restoreOrder(syncPacket("a", 5, "authenticated")))
	assert.Empty(t, o.restoreOrder(syncPacket("a", 6, "status")))
}

func TestOrdererKeepsAccountsIndependent(t *testing.T) {
	o := newPacketOrderer(10*time.Second, newStdLog(), nil)

	a := o.restoreOrder(syncPacket("a", 5, "authenticated"))
	b := o.restoreOrder(syncPacket("b", 100, "authenticated"))

	assert.Equal(t, []int64{5}, sequenceNumbers(t, a))
	assert.Equal(t, []int64{100}, sequenceNumbers(t, b))

	// A gap on one account must not affect the other.
	assert.Empty(t, o.restoreOrder(syncPacket("a", 8, "status")))
	assert.Equal(t, []int64{101}, sequenceNumbers(t, o.restoreOrder(syncPacket("b", 101, "status"))))
}

func TestOrdererRecoversFromUnfillableGap(t *testing.T) {
	var mu sync.Mutex
	var gaps []expiredGap
	o := newPacketOrderer(10*time.Second, newStdLog(), func(accountID string, expected, actual int64) {
		mu.Lock()
		defer mu.Unlock()
		gaps = append(gaps, expiredGap{accountID: accountID, expected: expected, actual: actual})
	})

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return now }

	require.Equal(t, []int64{10}, sequenceNumbers(t, o.restoreOrder(syncPacket("a", 10, "authenticated"))))
	assert.Empty(t, o.restoreOrder(syncPacket("a", 15, "status")))

	// Before the deadline the gap is still considered recoverable.
	o.checkDeadlines()
	mu.Lock()
	assert.Empty(t, gaps)
	mu.Unlock()

	now = now.Add(11 * time.Second)
	o.checkDeadlines()

	mu.Lock()
	require.Len(t, gaps, 1)
	assert.Equal(t, expiredGap{accountID: "a", expected: 11, actual: 15}, gaps[0])
	mu.Unlock()

	// The next observed sequence becomes the new baseline.
	out := o.restoreOrder(syncPacket("a", 20, "authenticated"))
	assert.Equal(t, []int64{20}, sequenceNumbers(t, out))
}

func TestOrdererBackgroundTick(t *testing.T) {
	gapCh := make(chan expiredGap, 1)
	o := newPacketOrderer(time.Millisecond, newStdLog(), func(accountID string, expected, actual int64) {
		gapCh <- expiredGap{accountID: accountID, expected: expected, actual: actual}
	})
	tickCh := make(chan time.Time)
	o.newTicker = func(time.Duration) ticker {
		return &fakeTicker{ch: tickCh}
	}
	o.start()
	defer o.stop()

	o.restoreOrder(syncPacket("a", 1, "authenticated"))
	o.restoreOrder(syncPacket("a", 4, "status"))

	time.Sleep(5 * time.Millisecond)
	tickCh <- time.Now()

	select {
	case gap := <-gapCh:
		assert.Equal(t, "a", gap.accountID)
		assert.EqualValues(t, 2, gap.expected)
		assert.EqualValues(t, 4, gap.actual)
	case <-time.After(time.Second):
		t.Fatal("gap was not reported")
	}
}

func TestOrdererStopClearsState(t *testing.T) {
	o := newPacketOrderer(10*time.Second, newStdLog(), nil)
	o.start()

	o.restoreOrder(syncPacket("a", 5, "authenticated"))
	o.stop()

	// After stop, previously consumed sequences are forgotten.
	out := o.restoreOrder(syncPacket("a", 1, "authenticated"))
	assert.Equal(t, []int64{1}, sequenceNumbers(t, out))
}

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() {}
