package swap

import "crypto/sha256"

// ClaimObservation is one candidate claiming transaction surfaced by a chain
// watcher, reduced to the witness items the monitor needs to inspect.
type ClaimObservation struct {
	SessionID    string
	WitnessItems [][]byte
}

// Monitor watches both legs of open sessions for a revealed preimage and
// applies it to the matching session, completing the atomic part of the
// swap: once the preimage is public on one leg, the other leg can always be
// claimed with it before its own timeout (by construction of the T_B < T_A
// skew enforced in Manager.Open).
type Monitor struct {
	manager *Manager
}

func NewMonitor(m *Manager) *Monitor {
	return &Monitor{manager: m}
}

// Observe processes one observed claiming transaction. It is a no-op (not an
// error) if the session is already past FUNDED, since duplicate observations
// of the same claim are expected from multiple chain watchers.
func (mon *Monitor) Observe(obs ClaimObservation) error {
	s, err := mon.manager.Get(obs.SessionID)
	if err != nil {
		return err
	}
	if s.State() != StateFunded {
		return nil
	}
	preimage, found := ScanWitnessForPreimage(obs.WitnessItems, s.Hashlock)
	if !found {
		return nil
	}
	return s.Claim(preimage, sha256.Sum256)
}
