package aggregate

import (
	"sort"
	"strings"
)

// Domains rebuilds the per-domain roll-up from the sender table. The key
// is the part of the address after the last @. Senders are visited in
// ascending address order, so the lexicographically smallest sender of a
// domain seeds its row; later senders merge in the nine counters that
// precede the activity stamp in the persisted vector. The seed's
// DeltaAxed and LastActivity are left as-is on merge, matching the
// historical roll-up behavior.
func (a *Aggregator) Domains() map[string]*SenderStats {
	addrs := make([]string, 0, len(a.senders))
	for addr := range a.senders {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	out := make(map[string]*SenderStats)
	for _, addr := range addrs {
		st := a.senders[addr]
		dom := addr
		if i := strings.LastIndexByte(addr, '@'); i >= 0 {
			dom = addr[i+1:]
		}
		cur, ok := out[dom]
		if !ok {
			seed := *st
			out[dom] = &seed
			continue
		}
		cur.Nrcpt += st.Nrcpt
		cur.Sent += st.Sent
		cur.Bounced += st.Bounced
		cur.Deferred += st.Deferred
		cur.Axed += st.Axed
		cur.DeltaNrcpt += st.DeltaNrcpt
		cur.DeltaSent += st.DeltaSent
		cur.DeltaBounced += st.DeltaBounced
		cur.DeltaDeferred += st.DeltaDeferred
	}
	return out
}
