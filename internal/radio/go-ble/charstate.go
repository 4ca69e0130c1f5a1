package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesense/internal/characteristic"
	"github.com/srg/blesense/internal/radio"
)

// notifier is the part of ble.Notifier a characteristic needs.
type notifier interface {
	Write(b []byte) (int, error)
	Context() context.Context
}

// charState is the server-side state of one characteristic. Handlers run on
// go-ble's goroutines, updates on the control loop.
type charState struct {
	id     characteristic.ID
	logger *logrus.Logger

	mu          sync.Mutex
	value       []byte
	subscribers map[notifier]struct{}
}

func newCharState(id characteristic.ID, value []byte, logger *logrus.Logger) *charState {
	return &charState{
		id:          id,
		logger:      logger,
		value:       append([]byte(nil), value...),
		subscribers: make(map[notifier]struct{}),
	}
}

func (c *charState) get() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.value...)
}

func (c *charState) set(v []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = append([]byte(nil), v...)
}

// serve holds a subscription open until the central unsubscribes or the
// connection drops.
func (c *charState) serve(n notifier) {
	c.mu.Lock()
	c.subscribers[n] = struct{}{}
	count := len(c.subscribers)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{"uuid": c.id, "subscribers": count}).Info("Central subscribed")
	<-n.Context().Done()

	c.mu.Lock()
	delete(c.subscribers, n)
	c.mu.Unlock()
	c.logger.WithField("uuid", c.id).Info("Central unsubscribed")
}

// notify writes v to every live subscriber. A subscriber whose context is
// already done or whose write fails with a teardown error yields ErrBusy;
// the remaining subscribers are still notified.
func (c *charState) notify(v []byte) error {
	c.mu.Lock()
	subs := make([]notifier, 0, len(c.subscribers))
	for n := range c.subscribers {
		subs = append(subs, n)
	}
	c.mu.Unlock()

	var busy error
	for _, n := range subs {
		if n.Context().Err() != nil {
			busy = fmt.Errorf("%w: %s subscriber closing", radio.ErrBusy, c.id)
			continue
		}
		if _, err := n.Write(v); err != nil {
			if radio.IsBusyMessage(err.Error()) || n.Context().Err() != nil {
				busy = fmt.Errorf("%w: %s: %v", radio.ErrBusy, c.id, err)
				continue
			}
			return err
		}
	}
	return busy
}

func (c *charState) subscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}
