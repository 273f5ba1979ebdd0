package client

// remoteChange tags an in-flight player mutation that originated from the
// server. The matching player event consumes the tag exactly once and is
// then swallowed instead of being echoed back as a new local action.
type remoteChange int

const (
	changeSeek remoteChange = iota
	changePlay
	changePause
	changeRate
)

// pendingSet is only touched by the engine's event loop goroutine.
type pendingSet map[remoteChange]struct{}

func (p pendingSet) mark(c remoteChange) { p[c] = struct{}{} }

// consume reports whether the tag was set, clearing it.
func (p pendingSet) consume(c remoteChange) bool {
	if _, ok := p[c]; ok {
		delete(p, c)
		return true
	}
	return false
}
