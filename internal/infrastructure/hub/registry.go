package hub

// channelRegistry maps channel names to their subscribers in registration
// order. A channel without subscribers has no entry. It is not safe for
// concurrent use; the Hub serialises access.
type channelRegistry struct {
	channels map[string][]*Subscription
	total    int
}

func newChannelRegistry() *channelRegistry {
	return &channelRegistry{channels: make(map[string][]*Subscription)}
}

// register adds sub to its channel and reports whether it is the channel's
// first subscriber. Registering the same subscription again has no effect.
func (r *channelRegistry) register(sub *Subscription) bool {
	set := r.channels[sub.channel]
	for _, s := range set {
		if s == sub {
			return false
		}
	}
	r.channels[sub.channel] = append(set, sub)
	r.total++
	return len(set) == 0
}

// unregister removes sub. emptied is true when the channel lost its last
// subscriber and its entry was deleted.
func (r *channelRegistry) unregister(sub *Subscription) (removed, emptied bool) {
	set := r.channels[sub.channel]
	for i, s := range set {
		if s != sub {
			continue
		}
		set = append(set[:i:i], set[i+1:]...)
		r.total--
		if len(set) == 0 {
			delete(r.channels, sub.channel)
			return true, true
		}
		r.channels[sub.channel] = set
		return true, false
	}
	return false, false
}

func (r *channelRegistry) subscriberCount() int {
	return r.total
}

// snapshot returns a copy of the channel's subscribers, oldest first.
func (r *channelRegistry) snapshot(channel string) []*Subscription {
	set := r.channels[channel]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Subscription, len(set))
	copy(out, set)
	return out
}

func (r *channelRegistry) counts() map[string]int {
	out := make(map[string]int, len(r.channels))
	for name, set := range r.channels {
		out[name] = len(set)
	}
	return out
}

// drain empties the registry and returns every subscription it held.
func (r *channelRegistry) drain() []*Subscription {
	var all []*Subscription
	for _, set := range r.channels {
		all = append(all, set...)
	}
	clear(r.channels)
	r.total = 0
	return all
}
