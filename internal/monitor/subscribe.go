package monitor

import (
	"github.com/ngenohkevin/hivedeck-monitor/internal/snapshot"
)

// Subscribe returns a channel receiving every new snapshot and a function
// that cancels the subscription. A subscriber that falls behind misses
// snapshots; the sampling loop never waits for it.
func (m *Monitor) Subscribe(buffer int) (<-chan *snapshot.Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *snapshot.Snapshot, buffer)

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (m *Monitor) publish(snap *snapshot.Snapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for _, ch := range m.subs {
		select {
		case ch <- snap.Clone():
		default:
		}
	}
}
