package player

import (
	"github.com/teslashibe/go-soundnode/pkg/audioio"
)

// State is the controller's lifecycle phase.
type State int

const (
	// StateIdle means no session exists.
	StateIdle State = iota
	// StateLoading means a session is opening its source.
	StateLoading
	// StatePlaying means audio is being forwarded.
	StatePlaying
	// StateDraining means the session is tearing the hardware down.
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a snapshot of the controller.
type Status struct {
	State       State             `json:"state"`
	Playing     bool              `json:"playing"`
	Volume      float64           `json:"volume"`
	Session     *SessionInfo      `json:"session,omitempty"`
	LastSession *SessionInfo      `json:"last_session,omitempty"`
	Sink        audioio.SinkStats `json:"sink"`
	PoolInUse   int               `json:"pool_in_use"`
	PoolBytes   int               `json:"pool_bytes"`
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		State:       c.state,
		Playing:     c.state != StateIdle,
		LastSession: c.last,
	}
	sess := c.sess
	c.mu.Unlock()

	if sess != nil {
		info := sess.Info()
		st.Session = &info
	}
	st.Volume = c.Volume()
	st.Sink = c.sink.Stats()
	st.PoolInUse = c.pool.InUse()
	st.PoolBytes = c.pool.Capacity()
	return st
}
