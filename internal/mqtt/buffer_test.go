package mqtt

import (
	"testing"
)

func eventMsg(i int) bufferedMsg {
	return bufferedMsg{topic: "espresso/machine/events", payload: []byte{byte(i)}, qos: 1}
}

func stateMsg(topic, payload string) bufferedMsg {
	return bufferedMsg{topic: "espresso/machine/" + topic, payload: []byte(payload), qos: 1, retained: true}
}

func payloads(msgs []bufferedMsg) []int {
	out := make([]int, len(msgs))
	for i, m := range msgs {
		out[i] = int(m.payload[0])
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestOutboxEmptyDrain(t *testing.T) {
	o := newOutbox(10)
	if got := o.drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestOutboxKeepsOrder(t *testing.T) {
	o := newOutbox(10)
	for i := 0; i < 5; i++ {
		o.push(eventMsg(i))
	}

	got := payloads(o.drain())
	if want := []int{0, 1, 2, 3, 4}; !equalInts(got, want) {
		t.Errorf("drain: got %v, want %v", got, want)
	}
	if again := o.drain(); again != nil {
		t.Errorf("expected nil from second drain, got %d items", len(again))
	}
}

func TestOutboxDropsOldestEvents(t *testing.T) {
	tests := []struct {
		name   string
		limit  int
		pushed int
		want   []int
	}{
		{"under limit", 5, 3, []int{0, 1, 2}},
		{"at limit", 5, 5, []int{0, 1, 2, 3, 4}},
		{"over limit", 5, 8, []int{3, 4, 5, 6, 7}},
		{"limit one", 1, 3, []int{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOutbox(tt.limit)
			for i := 0; i < tt.pushed; i++ {
				o.push(eventMsg(i))
			}
			if got := payloads(o.drain()); !equalInts(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOutboxReusableAfterDrain(t *testing.T) {
	o := newOutbox(3)
	for i := 0; i < 6; i++ {
		o.push(eventMsg(i))
	}
	o.drain()

	for i := 10; i < 12; i++ {
		o.push(eventMsg(i))
	}
	if got := payloads(o.drain()); !equalInts(got, []int{10, 11}) {
		t.Errorf("second cycle: got %v", got)
	}
}

func TestOutboxLen(t *testing.T) {
	o := newOutbox(10)
	if o.len() != 0 {
		t.Errorf("expected len 0, got %d", o.len())
	}
	o.push(eventMsg(1))
	o.push(eventMsg(2))
	if o.len() != 2 {
		t.Errorf("expected len 2, got %d", o.len())
	}
	o.drain()
	if o.len() != 0 {
		t.Errorf("expected len 0 after drain, got %d", o.len())
	}
}

func TestOutboxPreservesFields(t *testing.T) {
	o := newOutbox(10)
	o.push(bufferedMsg{
		topic:    "espresso/machine/system",
		payload:  []byte(`{"test":true}`),
		qos:      1,
		retained: true,
	})

	got := o.drain()
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
	m := got[0]
	if m.topic != "espresso/machine/system" || string(m.payload) != `{"test":true}` || m.qos != 1 || !m.retained {
		t.Errorf("fields changed: %+v", m)
	}
}

func TestOutboxCoalescesRetained(t *testing.T) {
	o := newOutbox(4)
	o.push(stateMsg("shot_config", "a"))
	o.push(bufferedMsg{topic: "espresso/machine/events", payload: []byte("start"), qos: 1})
	o.push(stateMsg("shot_config", "b"))
	o.push(bufferedMsg{topic: "espresso/machine/events", payload: []byte("stop"), qos: 1})

	got := o.drain()
	want := []string{"b", "start", "stop"}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i, w := range want {
		if string(got[i].payload) != w {
			t.Errorf("item %d: expected %q, got %q", i, w, got[i].payload)
		}
	}
}

func TestOutboxEvictsEventsBeforeState(t *testing.T) {
	o := newOutbox(3)
	o.push(stateMsg("shot_config", "s"))
	o.push(stateMsg("machine_configuration", "m"))
	for i := 0; i < 4; i++ {
		o.push(eventMsg(i))
	}

	got := o.drain()
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if string(got[0].payload) != "s" || string(got[1].payload) != "m" {
		t.Errorf("retained state evicted: %q %q", got[0].payload, got[1].payload)
	}
	if got[2].payload[0] != 3 {
		t.Errorf("expected newest event kept, got %d", got[2].payload[0])
	}
}

func TestOutboxEvictsStateWhenOnlyStateLeft(t *testing.T) {
	o := newOutbox(2)
	o.push(stateMsg("shot_config", "s"))
	o.push(stateMsg("machine_configuration", "m"))
	o.push(stateMsg("snapshot_state", "n"))

	got := o.drain()
	if len(got) != 2 || string(got[0].payload) != "m" || string(got[1].payload) != "n" {
		t.Errorf("unexpected drain: %v", got)
	}
}
