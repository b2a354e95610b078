// Package autosave tracks an agent's configuration edits and writes them
// back after a quiet period.
package autosave

import (
	"sync"
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// DefaultCooldown is how long saved and error states stay visible.
const DefaultCooldown = 3 * time.Second

// Machine is the save indicator. Each save attempt gets a sequence number;
// a completion for anything but the latest attempt is ignored. Saved and
// error states fall back to idle after the cooldown.
type Machine struct {
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	status    domain.AutoSaveStatus
	seq       uint64
	decay     *time.Timer
	listeners []func(domain.AutoSaveStatus)
	version   uint64

	notifyMu  sync.Mutex
	delivered uint64
}

// NewMachine creates an idle Machine.
func NewMachine(cooldown time.Duration) *Machine {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Machine{
		cooldown: cooldown,
		now:      time.Now,
		status:   domain.AutoSaveStatus{State: domain.SaveIdle},
	}
}

// OnChange registers fn for every status change, delivered in order.
func (m *Machine) OnChange(fn func(domain.AutoSaveStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Status returns the current status.
func (m *Machine) Status() domain.AutoSaveStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Begin marks a save attempt as running and returns its sequence number.
func (m *Machine) Begin() uint64 {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.stopDecayLocked()
	m.status.State = domain.SaveSaving
	m.status.Error = ""
	st, v, fns := m.changedLocked()
	m.mu.Unlock()

	m.deliver(st, v, fns)
	return seq
}

// Finish records the outcome of attempt seq. It reports false when a newer
// attempt has started since.
func (m *Machine) Finish(seq uint64, err error) bool {
	m.mu.Lock()
	if seq != m.seq {
		m.mu.Unlock()
		return false
	}
	if err != nil {
		m.status.State = domain.SaveError
		m.status.Error = err.Error()
	} else {
		t := m.now()
		m.status.State = domain.SaveSaved
		m.status.LastSaved = &t
		m.status.Error = ""
	}
	m.stopDecayLocked()
	m.decay = time.AfterFunc(m.cooldown, func() { m.toIdle(seq) })
	st, v, fns := m.changedLocked()
	m.mu.Unlock()

	m.deliver(st, v, fns)
	return true
}

func (m *Machine) toIdle(seq uint64) {
	m.mu.Lock()
	if seq != m.seq || m.status.State == domain.SaveSaving {
		m.mu.Unlock()
		return
	}
	m.status.State = domain.SaveIdle
	m.status.Error = ""
	m.decay = nil
	st, v, fns := m.changedLocked()
	m.mu.Unlock()

	m.deliver(st, v, fns)
}

// Reset returns to idle and forgets the last save time. In-flight attempts
// are orphaned.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.seq++
	m.stopDecayLocked()
	m.status = domain.AutoSaveStatus{State: domain.SaveIdle}
	st, v, fns := m.changedLocked()
	m.mu.Unlock()

	m.deliver(st, v, fns)
}

func (m *Machine) stopDecayLocked() {
	if m.decay != nil {
		m.decay.Stop()
		m.decay = nil
	}
}

func (m *Machine) changedLocked() (domain.AutoSaveStatus, uint64, []func(domain.AutoSaveStatus)) {
	m.version++
	return m.status, m.version, m.listeners
}

func (m *Machine) deliver(st domain.AutoSaveStatus, version uint64, fns []func(domain.AutoSaveStatus)) {
	if len(fns) == 0 {
		return
	}
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	if version <= m.delivered {
		return
	}
	m.delivered = version
	for _, fn := range fns {
		fn(st)
	}
}
