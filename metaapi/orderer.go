package metaapi

import (
	"sync"
	"time"
)

// ordererTickInterval is how often gap deadlines are checked.
const ordererTickInterval = time.Second

// packetOrderer restores per-account ordering of synchronization packets by
// their sequence numbers. Packets arriving ahead of the expected sequence are
// buffered; if the gap is not filled within gapTimeout the host is notified so
// it can re-subscribe, and the account's ordering state is reset.
type packetOrderer struct {
	gapTimeout   time.Duration
	onOutOfOrder func(accountID string, expected, actual int64)
	logger       Logger

	mu      sync.Mutex
	streams map[string]*accountStream
	stopCh  chan struct{}
	doneCh  chan struct{}

	// for testing only
	newTicker func(d time.Duration) ticker
	now       func() time.Time
}

type accountStream struct {
	started  bool
	expected int64
	wait     map[int64]map[string]interface{}
	deadline time.Time
}

func newPacketOrderer(gapTimeout time.Duration, logger Logger, onOutOfOrder func(accountID string, expected, actual int64)) *packetOrderer {
	return &packetOrderer{
		gapTimeout:   gapTimeout,
		onOutOfOrder: onOutOfOrder,
		logger:       logger,
		streams:      map[string]*accountStream{},
		newTicker:    newTimeTicker,
		now:          time.Now,
	}
}

// start arms the background gap check.
func (o *packetOrderer) start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopCh != nil {
		return
	}
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	go o.run(o.stopCh, o.doneCh)
}

// stop disarms the gap check and clears all per-account state.
func (o *packetOrderer) stop() {
	o.mu.Lock()
	stopCh, doneCh := o.stopCh, o.doneCh
	o.stopCh, o.doneCh = nil, nil
	o.streams = map[string]*accountStream{}
	o.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}
}

// restoreOrder returns zero or more packets in ascending sequence order.
// Packets without a sequence number pass through unchanged.
func (o *packetOrderer) restoreOrder(p map[string]interface{}) []map[string]interface{} {
	seq, ok := sequenceNumberOf(p)
	if !ok {
		return []map[string]interface{}{p}
	}
	accountID, _ := p["accountId"].(string)

	o.mu.Lock()
	defer o.mu.Unlock()

	s := o.streams[accountID]
	if s == nil {
		s = &accountStream{wait: map[int64]map[string]interface{}{}}
		o.streams[accountID] = s
	}

	switch {
	case !s.started:
		// First observed sequence becomes the baseline.
		s.started = true
		s.expected = seq + 1
		return append([]map[string]interface{}{p}, o.drain(s)...)
	case seq == s.expected:
		s.expected++
		return append([]map[string]interface{}{p}, o.drain(s)...)
	case seq > s.expected:
		if len(s.wait) == 0 {
			s.deadline = o.now().Add(o.gapTimeout)
		}
		s.wait[seq] = p
		return nil
	default:
		// Duplicate of an already consumed sequence.
		return nil
	}
}

// drain emits buffered packets as long as the head of the buffer matches the
// expected sequence.
func (o *packetOrderer) drain(s *accountStream) []map[string]interface{} {
	var out []map[string]interface{}
	for {
		p, ok := s.wait[s.expected]
		if !ok {
			break
		}
		delete(s.wait, s.expected)
		s.expected++
		out = append(out, p)
	}
	return out
}

func (o *packetOrderer) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	t := o.newTicker(ordererTickInterval)
	defer t.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-t.C():
			o.checkDeadlines()
		}
	}
}

type expiredGap struct {
	accountID string
	expected  int64
	actual    int64
}

func (o *packetOrderer) checkDeadlines() {
	now := o.now()

	o.mu.Lock()
	var expired []expiredGap
	for accountID, s := range o.streams {
		if len(s.wait) == 0 || !now.After(s.deadline) {
			continue
		}
		actual := int64(-1)
		for seq := range s.wait {
			if actual < 0 || seq < actual {
				actual = seq
			}
		}
		expired = append(expired, expiredGap{accountID: accountID, expected: s.expected, actual: actual})
		// The next observed sequence becomes the new baseline.
		delete(o.streams, accountID)
	}
	o.mu.Unlock()

	for _, gap := range expired {
		o.logger.Warnf("metaapi: account %s: packet sequence gap not recovered, expected %d, buffered from %d",
			gap.accountID, gap.expected, gap.actual)
		if o.onOutOfOrder != nil {
			o.onOutOfOrder(gap.accountID, gap.expected, gap.actual)
		}
	}
}

func sequenceNumberOf(p map[string]interface{}) (int64, bool) {
	switch v := p["sequenceNumber"].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
