package brew

import (
	"fmt"
	"log"
)

// DefaultQueueSize is the capacity of the command queue.
const DefaultQueueSize = 8

// Command is a hardware request from outside the control tick. Commands
// are applied by the tick; no other goroutine touches the hardware.
type Command interface {
	apply(c *Controller) error
	String() string
}

// LEDCommand switches the status LED. The LED is active low.
type LEDCommand struct {
	On bool
}

func (l LEDCommand) apply(c *Controller) error {
	if c.hw.LED == nil {
		return nil
	}
	return c.hw.LED.Set(!l.On)
}

func (l LEDCommand) String() string {
	return fmt.Sprintf("led on=%v", l.On)
}

// Queue is a bounded command queue. Post never blocks.
type Queue struct {
	ch chan Command
}

// NewQueue returns a Queue holding up to size commands.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Command, size)}
}

// Post enqueues cmd. It reports false and drops the command when the queue
// is full.
func (q *Queue) Post(cmd Command) bool {
	select {
	case q.ch <- cmd:
		return true
	default:
		log.Printf("brew: command queue full, dropping %s", cmd)
		return false
	}
}

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	return len(q.ch)
}

// drain applies every pending command without blocking.
func (q *Queue) drain(c *Controller) {
	for {
		select {
		case cmd := <-q.ch:
			if err := cmd.apply(c); err != nil {
				log.Printf("brew: %s: %v", cmd, err)
			}
		default:
			return
		}
	}
}
