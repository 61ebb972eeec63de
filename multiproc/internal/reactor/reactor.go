// Package reactor is a small epoll-based readiness notifier used by the
// cooperative channel flavor (multiproc.AsyncSender/AsyncReceiver). It
// exists because that flavor deliberately does not piggyback on Go's
// built-in network poller — the spec calls for an explicit cooperative
// task executor distinct from the blocking flavor, not "whatever the
// runtime already does for net.Conn".
package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Reactor multiplexes readability/writability waits for a set of
// non-blocking file descriptors across a single epoll instance and one
// background goroutine.
type Reactor struct {
	epfd int

	mu      sync.Mutex
	waiters map[int]*waiter
	closed  bool
}

type waiter struct {
	readCh  chan struct{}
	writeCh chan struct{}
	mask    uint32
}

// New creates a Reactor backed by a fresh epoll instance and starts its
// background event loop.
func New() (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	r := &Reactor{
		epfd:    epfd,
		waiters: make(map[int]*waiter),
	}
	go r.loop()
	return r, nil
}

func (r *Reactor) loop() {
	events := make([]unix.EpollEvent, 64)
	for {
		n, err := unix.EpollWait(r.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			ev := events[i].Events
			r.mu.Lock()
			w, ok := r.waiters[fd]
			if ok {
				delete(r.waiters, fd)
			}
			r.mu.Unlock()
			if !ok {
				continue
			}
			if ev&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 && w.readCh != nil {
				close(w.readCh)
			}
			if ev&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 && w.writeCh != nil {
				close(w.writeCh)
			}
		}
	}
}

// WaitReadable blocks the calling goroutine until fd is readable (or
// hung up / errored), registering a one-shot epoll interest for it.
func (r *Reactor) WaitReadable(fd int) error {
	return r.wait(fd, unix.EPOLLIN, true)
}

// WaitWritable blocks the calling goroutine until fd is writable.
func (r *Reactor) WaitWritable(fd int) error {
	return r.wait(fd, unix.EPOLLOUT, false)
}

func (r *Reactor) wait(fd int, events uint32, readSide bool) error {
	ch := make(chan struct{})
	w := &waiter{mask: events}
	if readSide {
		w.readCh = ch
	} else {
		w.writeCh = ch
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return unix.EBADF
	}
	r.waiters[fd] = w
	r.mu.Unlock()

	ev := unix.EpollEvent{Events: events | unix.EPOLLONESHOT, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
			r.mu.Lock()
			delete(r.waiters, fd)
			r.mu.Unlock()
			return err
		}
	}

	<-ch
	return nil
}

// Close tears down the epoll instance. Outstanding waiters are never
// woken; callers must not rely on Close to unblock them.
func (r *Reactor) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return unix.Close(r.epfd)
}
