package engine

import (
	"time"

	"golang.org/x/time/rate"
)

// throttle splits the host's upstream bandwidth evenly between its connected
// peers and caps each share at the downstream limit the peer advertised.
// Requires mu.
func (e *Engine) throttle(h *host, now time.Time) {
	h.lastThrottle = now

	connected := 0
	for _, p := range h.peers {
		if p.state == PeerStateConnected || p.state == PeerStateDisconnectLater {
			connected++
		}
	}

	for _, p := range h.peers {
		var limit uint32
		if h.cfg.UpstreamBandwidth > 0 && connected > 0 {
			limit = h.cfg.UpstreamBandwidth / uint32(connected)
			if limit == 0 {
				limit = 1
			}
		}
		if p.remoteDown > 0 && (limit == 0 || p.remoteDown < limit) {
			limit = p.remoteDown
		}
		p.setLimit(limit, now)
	}
}

// setLimit applies a send rate in bytes per second, 0 meaning unlimited.
// The burst always admits one maximum-size frame.
func (p *peer) setLimit(limit uint32, now time.Time) {
	if limit == 0 {
		p.limiter = nil
		return
	}

	burst := int(limit)
	if floor := 4 + maxFrameSize; burst < floor {
		burst = floor
	}
	if p.limiter == nil {
		p.limiter = rate.NewLimiter(rate.Limit(limit), burst)
		return
	}
	p.limiter.SetLimitAt(now, rate.Limit(limit))
	p.limiter.SetBurstAt(now, burst)
}
