// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// Event is one readiness report from [Dispatcher.Wait].
type Event struct {
	// ID is the lease the sentinel belongs to.
	ID string

	// Sentinel is the FIFO path.
	Sentinel string

	// Data is the number of bytes drained from the sentinel. Holders
	// are not expected to write; stray data is reported and discarded.
	Data int

	// Closed is true when every write end of the sentinel has been
	// closed. The watch has already been removed.
	Closed bool
}

type watch struct {
	fd       int
	id       string
	sentinel string
}

// Dispatcher multiplexes sentinel read ends with poll(2). It holds one
// non-blocking read descriptor per armed lease plus a wake pipe that
// lets other goroutines interrupt a blocked [Dispatcher.Wait].
//
// Register, Deregister, Wait, and Close must be called from a single
// goroutine. Wake may be called from any goroutine, including after
// Close.
type Dispatcher struct {
	watches map[string]*watch

	// wakeMu keeps Wake from writing to a wake descriptor number that
	// Close has released and the process may have reused.
	wakeMu    sync.Mutex
	wakeRead  int
	wakeWrite int
	closed    bool

	buffer []byte
}

// NewDispatcher creates a Dispatcher with an empty watch set.
func NewDispatcher() (*Dispatcher, error) {
	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("creating wake pipe: %w", err)
	}
	return &Dispatcher{
		watches:   make(map[string]*watch),
		wakeRead:  pipe[0],
		wakeWrite: pipe[1],
		buffer:    make([]byte, 4096),
	}, nil
}

// Register arms a watch on the FIFO at sentinel for lease id.
//
// The read end is opened non-blocking, then a write end is opened and
// closed once. Linux only reports POLLHUP on a FIFO when its writer
// count drops to zero after at least one writer has come and gone
// since the reader opened. Without the extra open, a read end armed
// after the holder connected (every recovered lease) would never see
// hang-up, and one armed after the holder already exited would look
// permanently idle.
func (d *Dispatcher) Register(id, sentinel string) error {
	if _, exists := d.watches[id]; exists {
		return &WatchRegistrationError{Path: sentinel, Err: fmt.Errorf("lease %s is already watched", id)}
	}

	fd, err := unix.Open(sentinel, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return &WatchRegistrationError{Path: sentinel, Err: err}
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return &WatchRegistrationError{Path: sentinel, Err: err}
	}
	if stat.Mode&unix.S_IFMT != unix.S_IFIFO {
		unix.Close(fd)
		return &WatchRegistrationError{Path: sentinel, Err: errors.New("not a FIFO")}
	}

	touch, err := unix.Open(sentinel, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(fd)
		return &WatchRegistrationError{Path: sentinel, Err: fmt.Errorf("priming hang-up detection: %w", err)}
	}
	unix.Close(touch)

	d.watches[id] = &watch{fd: fd, id: id, sentinel: sentinel}
	return nil
}

// Deregister closes the watch for id. Unknown IDs are ignored.
func (d *Dispatcher) Deregister(id string) error {
	w, exists := d.watches[id]
	if !exists {
		return nil
	}
	delete(d.watches, id)
	return unix.Close(w.fd)
}

// Watching reports whether id has an armed watch.
func (d *Dispatcher) Watching(id string) bool {
	_, exists := d.watches[id]
	return exists
}

// Len returns the number of armed watches.
func (d *Dispatcher) Len() int { return len(d.watches) }

// Wait blocks until at least one sentinel is readable or hung up, or
// until [Dispatcher.Wake] is called. It returns the events observed,
// sorted by lease ID. A wake with no sentinel activity returns no
// events and a nil error.
func (d *Dispatcher) Wait() ([]Event, error) {
	// descriptors[i+1] belongs to polled[i]; slot 0 is the wake pipe.
	polled := make([]*watch, 0, len(d.watches))
	descriptors := make([]unix.PollFd, 0, len(d.watches)+1)
	descriptors = append(descriptors, unix.PollFd{Fd: int32(d.wakeRead), Events: unix.POLLIN})
	for _, w := range d.watches {
		polled = append(polled, w)
		descriptors = append(descriptors, unix.PollFd{Fd: int32(w.fd), Events: unix.POLLIN})
	}

	if _, err := unix.Poll(descriptors, -1); err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("poll: %w", err)
	}

	if descriptors[0].Revents != 0 {
		d.drainWake()
	}

	var events []Event
	for i, descriptor := range descriptors[1:] {
		if descriptor.Revents == 0 {
			continue
		}
		w := polled[i]
		event := d.drain(w)
		if descriptor.Revents&unix.POLLNVAL != 0 {
			event.Closed = true
		}
		if event.Closed {
			delete(d.watches, w.id)
			unix.Close(w.fd)
		}
		if event.Closed || event.Data > 0 {
			events = append(events, event)
		}
	}

	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

// drain reads everything buffered in the sentinel. A zero-length read
// means no writer remains.
func (d *Dispatcher) drain(w *watch) Event {
	event := Event{ID: w.id, Sentinel: w.sentinel}
	for {
		count, err := unix.Read(w.fd, d.buffer)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			// EAGAIN: writers remain and the pipe is empty.
			return event
		}
		if count == 0 {
			event.Closed = true
			return event
		}
		event.Data += count
	}
}

func (d *Dispatcher) drainWake() {
	var scratch [64]byte
	for {
		if _, err := unix.Read(d.wakeRead, scratch[:]); err != nil {
			return
		}
	}
}

// Wake interrupts a blocked Wait. A full wake pipe already guarantees
// a pending wakeup, so EAGAIN is ignored. Wake after Close is a no-op.
func (d *Dispatcher) Wake() {
	d.wakeMu.Lock()
	defer d.wakeMu.Unlock()
	if d.closed {
		return
	}
	unix.Write(d.wakeWrite, []byte{0})
}

// Close releases every watch descriptor and the wake pipe. The FIFOs
// themselves are left in place.
func (d *Dispatcher) Close() error {
	d.wakeMu.Lock()
	defer d.wakeMu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	for id, w := range d.watches {
		if err := unix.Close(w.fd); err != nil {
			errs = append(errs, fmt.Errorf("closing watch for %s: %w", id, err))
		}
		delete(d.watches, id)
	}
	if err := unix.Close(d.wakeRead); err != nil {
		errs = append(errs, err)
	}
	if err := unix.Close(d.wakeWrite); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
