// Package bleserial carries the attribute surface over a BLE-UART bridge
// module attached to a serial port.
//
// The bridge forwards bytes between the port and a BLE central. Each frame
// is one line of JSON:
//
//	{"c":"shot_config","op":"write","v":{...}}   central -> machine
//	{"c":"shot_config","op":"read"}              central -> machine
//	{"c":"snapshot_state","op":"notify","v":{...}} machine -> central
//	{"c":"shot_config","op":"value","v":{...}}   reply to read
//	{"c":"shot_config","op":"error","err":"..."} rejected request
package bleserial

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/sweeney/espresso/internal/dispatch"
	"github.com/sweeney/espresso/internal/espresso"
	"github.com/sweeney/espresso/internal/logic"
	"github.com/sweeney/espresso/internal/registry"
)

// DefaultBaudRate is the factory rate of common BLE-UART modules.
const DefaultBaudRate = 9600

// maxFrame bounds one line; a snapshot frame is a few hundred bytes.
const maxFrame = 4096

// outQueue is the number of frames other than snapshots waiting for the
// port. Further frames are dropped until the port catches up.
const outQueue = 16

// Frame operations.
const (
	OpRead   = "read"
	OpWrite  = "write"
	OpNotify = "notify"
	OpValue  = "value"
	OpError  = "error"
)

// Frame is one line on the wire.
type Frame struct {
	Characteristic string          `json:"c"`
	Op             string          `json:"op"`
	Value          json.RawMessage `json:"v,omitempty"`
	Err            string          `json:"err,omitempty"`
}

// Handler serves reads and writes, usually the dispatcher.
type Handler interface {
	HandleWrite(characteristic string, payload []byte) error
	HandleRead(characteristic string) ([]byte, error)
}

// Bridge serves the attribute surface on a byte stream.
//
// Frames are written by a single writer goroutine so that notifications
// from the control tick never wait on the port. A snapshot that has not
// been written yet is replaced by the next one.
type Bridge struct {
	rw      io.ReadWriteCloser
	handler Handler

	out  chan []byte
	wake chan struct{}
	quit chan struct{}

	mu     sync.Mutex
	snap   []byte // latest unsent snapshot frame
	closed bool
}

// Open opens the serial port and returns a Bridge on it.
func Open(port string, baudRate int, h Handler) (*Bridge, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	conn, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	return New(conn, h), nil
}

// New returns a Bridge on rw and starts its writer.
func New(rw io.ReadWriteCloser, h Handler) *Bridge {
	b := &Bridge{
		rw:      rw,
		handler: h,
		out:     make(chan []byte, outQueue),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
	go b.writeLoop()
	return b
}

func (b *Bridge) writeLoop() {
	for {
		select {
		case <-b.quit:
			return
		case data := <-b.out:
			b.write(data)
		case <-b.wake:
			b.mu.Lock()
			data := b.snap
			b.snap = nil
			b.mu.Unlock()
			if data != nil {
				b.write(data)
			}
		}
	}
}

func (b *Bridge) write(data []byte) {
	if _, err := b.rw.Write(data); err != nil && !b.isClosed() {
		log.Printf("ble: write: %v", err)
	}
}

// Serve reads frames until the stream ends or Close is called. Malformed
// frames are answered with an error frame and skipped.
func (b *Bridge) Serve() error {
	scanner := bufio.NewScanner(b.rw)
	scanner.Buffer(make([]byte, 0, 512), maxFrame)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		b.handleLine([]byte(line))
	}

	err := scanner.Err()
	if err == nil || errors.Is(err, io.EOF) || b.isClosed() {
		return nil
	}
	return fmt.Errorf("read serial: %w", err)
}

func (b *Bridge) handleLine(line []byte) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		log.Printf("ble: malformed frame: %v", err)
		b.send(Frame{Op: OpError, Err: "malformed frame"})
		return
	}

	switch f.Op {
	case OpWrite:
		if err := b.handler.HandleWrite(f.Characteristic, f.Value); err != nil {
			b.send(Frame{Characteristic: f.Characteristic, Op: OpError, Err: err.Error()})
		}
	case OpRead:
		v, err := b.handler.HandleRead(f.Characteristic)
		if err != nil {
			b.send(Frame{Characteristic: f.Characteristic, Op: OpError, Err: err.Error()})
			return
		}
		b.send(Frame{Characteristic: f.Characteristic, Op: OpValue, Value: v})
	default:
		b.send(Frame{Characteristic: f.Characteristic, Op: OpError, Err: fmt.Sprintf("unknown op %q", f.Op)})
	}
}

// send queues a frame for the writer without blocking.
func (b *Bridge) send(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("ble: encode %s: %v", f.Characteristic, err)
		return
	}
	data = append(data, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if f.Characteristic == dispatch.SnapshotState && f.Op == OpNotify {
		b.snap = data
		select {
		case b.wake <- struct{}{}:
		default:
		}
		return
	}
	select {
	case b.out <- data:
	default:
		log.Printf("ble: port busy, dropping %s %s frame", f.Characteristic, f.Op)
	}
}

func (b *Bridge) notify(characteristic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("ble: encode %s: %v", characteristic, err)
		return
	}
	b.send(Frame{Characteristic: characteristic, Op: OpNotify, Value: data})
}

// NotifySnapshot sends the snapshot characteristic.
func (b *Bridge) NotifySnapshot(s espresso.Snapshot) {
	b.notify(dispatch.SnapshotState, s)
}

// NotifyEvent is a no-op: shot events are not a characteristic, and BLE
// centrals follow the shot through snapshot_state.
func (b *Bridge) NotifyEvent(logic.Event) {}

// NotifyShotConfig sends the shot configuration characteristic.
func (b *Bridge) NotifyShotConfig(c registry.ShotConfig) {
	b.notify(dispatch.ShotConfig, c)
}

// NotifyMachineConfig sends the machine configuration characteristic.
func (b *Bridge) NotifyMachineConfig(c registry.MachineConfig) {
	b.notify(dispatch.MachineConfiguration, c)
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close stops the writer and closes the port, which ends Serve. Queued
// frames are discarded.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.snap = nil
	close(b.quit)
	b.mu.Unlock()
	return b.rw.Close()
}

var _ dispatch.Surface = (*Bridge)(nil)
