//go:build linux || darwin

package ptyio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/blesense/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

type ringPTY struct {
	logger  *logrus.Logger
	master  *os.File
	slave   *os.File
	ttyName string
	poll    int
	onError ErrorCallback
	errOnce sync.Once

	readBuf    *ringbuffer.RingBuffer
	writeBuf   *ringbuffer.RingBuffer
	readNotify chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool

	droppedRead  atomic.Uint64
	droppedWrite atomic.Uint64
	readBytes    atomic.Uint64
	writeBytes   atomic.Uint64
}

// New opens a PTY pair with the slave in raw mode and starts the I/O loops.
func New(opts *Options) (PTY, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)
	if o.Logger == nil {
		o.Logger = logrus.New()
		o.Logger.SetOutput(io.Discard)
	}

	master, slave, err := open()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &ringPTY{
		logger:     o.Logger,
		master:     master,
		slave:      slave,
		ttyName:    slave.Name(),
		poll:       int(o.PollTimeout / time.Millisecond),
		onError:    o.OnError,
		readBuf:    ringbuffer.New(o.ReadCap),
		writeBuf:   ringbuffer.New(o.WriteCap),
		readNotify: make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	p.wg.Add(2)
	groutine.Go(ctx, "pty-read-loop", func(context.Context) { p.readLoop() })
	groutine.Go(ctx, "pty-write-loop", func(context.Context) { p.writeLoop() })
	return p, nil
}

func open() (*os.File, *os.File, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}

	fail := func(what string, err error) (*os.File, *os.File, error) {
		cleanup := errors.Join(master.Close(), slave.Close())
		if cleanup != nil {
			return nil, nil, fmt.Errorf("failed to set %s on %s: %w (cleanup: %v)", what, slave.Name(), err, cleanup)
		}
		return nil, nil, fmt.Errorf("failed to set %s on %s: %w", what, slave.Name(), err)
	}
	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		return fail("raw mode", err)
	}
	if err := syscall.SetNonblock(int(master.Fd()), true); err != nil {
		return fail("nonblocking mode", err)
	}
	return master, slave, nil
}

func (p *ringPTY) reportError(err error) {
	p.logger.WithError(err).Warn("PTY loop stopped")
	if p.onError != nil {
		p.errOnce.Do(func() { p.onError(err) })
	}
}

func (p *ringPTY) readLoop() {
	defer p.wg.Done()

	fds := []unix.PollFd{{Fd: int32(p.master.Fd()), Events: unix.POLLIN}}
	buf := make([]byte, 1024)
	for p.ctx.Err() == nil {
		ready, err := unix.Poll(fds, p.poll)
		if err != nil && !errors.Is(err, syscall.EINTR) {
			p.logger.WithError(err).Debug("PTY read poll failed")
			continue
		}
		if ready == 0 {
			continue
		}

		n, err := p.master.Read(buf)
		if n > 0 {
			written, _ := p.readBuf.Write(buf[:n])
			if written < n {
				p.droppedRead.Add(uint64(n - written))
			}
			p.readBytes.Add(uint64(written))
			select {
			case p.readNotify <- struct{}{}:
			default:
			}
		}

		switch {
		case err == nil, errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
		case errors.Is(err, syscall.EBADF), errors.Is(err, io.EOF), errors.Is(err, os.ErrClosed):
			return
		default:
			p.reportError(fmt.Errorf("pty read: %w", err))
			return
		}
	}
}

func (p *ringPTY) writeLoop() {
	defer p.wg.Done()

	fds := []unix.PollFd{{Fd: int32(p.master.Fd()), Events: unix.POLLOUT}}
	buf := make([]byte, 4096)
	for p.ctx.Err() == nil {
		if p.writeBuf.IsEmpty() {
			time.Sleep(time.Duration(p.poll) * time.Millisecond)
			continue
		}

		n, err := p.writeBuf.TryRead(buf)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			continue
		}
		for off := 0; off < n; {
			w, err := p.master.Write(buf[off:n])
			off += w
			p.writeBytes.Add(uint64(w))
			switch {
			case err == nil, errors.Is(err, syscall.EINTR):
			case errors.Is(err, syscall.EAGAIN):
				_, _ = unix.Poll(fds, p.poll)
			case errors.Is(err, syscall.EBADF), errors.Is(err, os.ErrClosed):
				return
			default:
				p.reportError(fmt.Errorf("pty write: %w", err))
				return
			}
		}
	}
}

// Write queues data for the slave. When the queue is full the excess is
// dropped and n reports what was queued.
func (p *ringPTY) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, os.ErrClosed
	}
	if len(data) == 0 {
		return 0, nil
	}
	n, err := p.writeBuf.Write(data)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) {
		return n, err
	}
	if n < len(data) {
		p.droppedWrite.Add(uint64(len(data) - n))
		p.logger.WithField("dropped", len(data)-n).Warn("PTY write buffer overflow")
	}
	return n, nil
}

// Read blocks until input is available. It returns io.EOF once closed.
func (p *ringPTY) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	for {
		if p.closed.Load() {
			return 0, io.EOF
		}
		n, err := p.readBuf.TryRead(b)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			return 0, err
		}
		select {
		case <-p.readNotify:
		case <-p.ctx.Done():
			return 0, io.EOF
		}
	}
}

func (p *ringPTY) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()
	err := errors.Join(p.master.Close(), p.slave.Close())

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Duration(p.poll)*time.Millisecond*2 + time.Second):
		p.logger.WithField("tty", p.ttyName).Warn("PTY loops did not stop in time")
	}
	return err
}

func (p *ringPTY) Stats() Stats {
	return Stats{
		ReadQueueLen:      p.readBuf.Length(),
		WriteQueueLen:     p.writeBuf.Length(),
		DroppedReadCount:  p.droppedRead.Load(),
		DroppedWriteCount: p.droppedWrite.Load(),
		ReadBytesTotal:    p.readBytes.Load(),
		WriteBytesTotal:   p.writeBytes.Load(),
	}
}

func (p *ringPTY) TTYName() string {
	return p.ttyName
}
