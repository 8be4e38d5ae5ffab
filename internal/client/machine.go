package client

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/classpoll/internal/domain"
	"github.com/pscheid92/classpoll/internal/protocol"
)

const (
	tickInterval = time.Second
	noticeTTL    = 2 * time.Second
)

// Machine serializes network events, user input and clock ticks onto one
// View. Actions produced by a transition are handed to the sender after the
// lock is released.
type Machine struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	view      View
	send      func(protocol.Action)
	countdown *countdown
	notices   map[int]clockwork.Timer
	scheduled int
	changes   chan struct{}
	stopped   bool
}

// countdown owns the ticker for one poll. It is stopped as soon as the poll
// view it belongs to is torn down.
type countdown struct {
	pollID string
	ticker clockwork.Ticker
	done   chan struct{}
}

func (c *countdown) stop() {
	c.ticker.Stop()
	close(c.done)
}

func NewMachine(clock clockwork.Clock) *Machine {
	return &Machine{
		clock:   clock,
		notices: make(map[int]clockwork.Timer),
		changes: make(chan struct{}, 1),
	}
}

// SetSender installs the function that delivers actions to the hub. Actions
// produced while no sender is set are dropped.
func (m *Machine) SetSender(send func(protocol.Action)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.send = send
}

// View returns a snapshot of the current state.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view.Clone()
}

// Changes is signalled after every transition. Signals coalesce.
func (m *Machine) Changes() <-chan struct{} {
	return m.changes
}

func (m *Machine) ChooseRole(role domain.Role) {
	m.update(func(v *View) []protocol.Action {
		v.ChooseRole(role)
		return nil
	})
}

func (m *Machine) SubmitName(name string) {
	m.update(func(v *View) []protocol.Action { return v.SubmitName(name) })
}

func (m *Machine) Select(option string) {
	m.update(func(v *View) []protocol.Action {
		v.Select(option)
		return nil
	})
}

func (m *Machine) SubmitVote() {
	m.update(func(v *View) []protocol.Action { return v.SubmitVote() })
}

func (m *Machine) CreatePoll(question string, options []string, duration int) {
	m.update(func(v *View) []protocol.Action { return v.CreatePoll(question, options, duration) })
}

func (m *Machine) EndPoll() {
	m.update(func(v *View) []protocol.Action { return v.EndPoll() })
}

func (m *Machine) Kick(name string) {
	m.update(func(v *View) []protocol.Action { return v.Kick(name) })
}

func (m *Machine) SendChat(text string) {
	m.update(func(v *View) []protocol.Action { return v.SendChat(text) })
}

func (m *Machine) GoHome() {
	m.update(func(v *View) []protocol.Action {
		v.GoHome()
		return nil
	})
}

// Handle merges a hub event.
func (m *Machine) Handle(ev protocol.Event) {
	m.update(func(v *View) []protocol.Action { return v.Apply(ev) })
}

func (m *Machine) Opened() {
	m.update(func(v *View) []protocol.Action {
		v.Opened()
		return nil
	})
}

func (m *Machine) Closed() {
	m.update(func(v *View) []protocol.Action {
		v.Closed()
		return nil
	})
}

// Stop cancels the countdown and pending notice timers. Later calls are no-ops.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	if m.countdown != nil {
		m.countdown.stop()
		m.countdown = nil
	}
	for id, t := range m.notices {
		t.Stop()
		delete(m.notices, id)
	}
}

func (m *Machine) update(fn func(v *View) []protocol.Action) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	actions := fn(&m.view)
	m.syncCountdown()
	m.scheduleNotices()
	send := m.send
	m.mu.Unlock()

	select {
	case m.changes <- struct{}{}:
	default:
	}

	if send == nil {
		return
	}
	for _, a := range actions {
		send(a)
	}
}

// syncCountdown runs under mu. It keeps exactly one ticker alive for the
// poll whose countdown is running and none otherwise.
func (m *Machine) syncCountdown() {
	running := m.view.CountdownRunning()
	pollID := ""
	if m.view.CurrentPoll != nil {
		pollID = m.view.CurrentPoll.ID
	}

	if m.countdown != nil && (!running || m.countdown.pollID != pollID) {
		m.countdown.stop()
		m.countdown = nil
	}
	if running && m.countdown == nil {
		m.startCountdown(pollID)
	}
}

func (m *Machine) startCountdown(pollID string) {
	c := &countdown{
		pollID: pollID,
		ticker: m.clock.NewTicker(tickInterval),
		done:   make(chan struct{}),
	}
	m.countdown = c

	go func() {
		for {
			select {
			case <-c.done:
				return
			case <-c.ticker.Chan():
				m.update(func(v *View) []protocol.Action {
					if m.countdown != c {
						return nil
					}
					return v.Tick()
				})
			}
		}
	}()
}

func (m *Machine) scheduleNotices() {
	for _, n := range m.view.Notices {
		if n.ID <= m.scheduled {
			continue
		}
		id := n.ID
		m.notices[id] = m.clock.AfterFunc(noticeTTL, func() {
			m.update(func(v *View) []protocol.Action {
				delete(m.notices, id)
				v.Dismiss(id)
				return nil
			})
		})
		m.scheduled = id
	}
}
