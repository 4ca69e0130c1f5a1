// Package ptyio opens a pseudo-terminal for the simulator console. The
// process owns the master side; an operator attaches a terminal program to
// the slave path (for example `screen /dev/pts/5`).
//
// Writes are queued in a ring buffer and never block the caller. Reads block
// until input arrives or the PTY is closed, so the master can back an
// x/term Terminal.
package ptyio

import (
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnsupported is returned by New where the OS has no PTY support.
var ErrUnsupported = errors.New("pty is not supported on this platform")

// ErrorCallback receives the error that ended a background loop.
type ErrorCallback func(err error)

type Options struct {
	ReadCap     int           `default:"4096"`
	WriteCap    int           `default:"16384"`
	PollTimeout time.Duration `default:"50ms"`
	Logger      *logrus.Logger
	OnError     ErrorCallback
}

// PTY is the master side of a pseudo-terminal pair.
type PTY interface {
	io.ReadWriteCloser
	Stats() Stats
	// TTYName is the slave device path.
	TTYName() string
}

type Stats struct {
	ReadQueueLen      int
	WriteQueueLen     int
	DroppedReadCount  uint64
	DroppedWriteCount uint64
	ReadBytesTotal    uint64
	WriteBytesTotal   uint64
}
