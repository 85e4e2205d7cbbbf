package mqtt

import "log"

// bufferedMsg is a serialized publish waiting for the broker.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds publishes made while disconnected, in order.
//
// Retained messages carry the current value of a characteristic, so a newer
// one replaces the buffered value of the same topic in place and they are
// evicted only when nothing else is left to drop. Events are dropped oldest
// first once the outbox is full. Callers synchronize.
type outbox struct {
	msgs    []bufferedMsg
	limit   int
	dropped int
}

func newOutbox(limit int) *outbox {
	if limit < 1 {
		limit = 1
	}
	return &outbox{limit: limit}
}

func (o *outbox) push(msg bufferedMsg) {
	if msg.retained {
		for i := range o.msgs {
			if o.msgs[i].retained && o.msgs[i].topic == msg.topic {
				o.msgs[i] = msg
				return
			}
		}
	}

	if len(o.msgs) >= o.limit {
		victim := 0
		for i, m := range o.msgs {
			if !m.retained {
				victim = i
				break
			}
		}
		if o.dropped == 0 {
			log.Printf("mqtt: outbox full (%d messages), dropping oldest", o.limit)
		}
		o.dropped++
		o.msgs = append(o.msgs[:victim], o.msgs[victim+1:]...)
	}
	o.msgs = append(o.msgs, msg)
}

// drain empties the outbox, returning nil when there was nothing queued.
func (o *outbox) drain() []bufferedMsg {
	if len(o.msgs) == 0 {
		return nil
	}
	if o.dropped > 0 {
		log.Printf("mqtt: %d messages were dropped while offline", o.dropped)
	}
	out := o.msgs
	o.msgs = nil
	o.dropped = 0
	return out
}

func (o *outbox) len() int {
	return len(o.msgs)
}
