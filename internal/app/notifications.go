package app

import (
	"github.com/ethereum/go-ethereum/event"

	"github.com/FlorentDgrs/Dvoting/internal/domain"
)

// DefaultNotificationLimit caps a single Notifications read when no limit is given
const DefaultNotificationLimit = 100

// record assigns the next sequence number, appends the event to the log and
// queues it for live delivery. Caller must hold the write lock.
func (l *Ledger) record(eventType domain.EventType, payload interface{}) *domain.Event {
	ev := domain.NewEvent(eventType, l.election.Round(), payload)
	l.seq++
	ev.Seq = l.seq
	l.log = append(l.log, ev)
	l.queueEvent(ev)
	return ev
}

// queueEvent adds an event to the delivery queue. When the queue is full the
// event stays in the log and eventLoop redelivers it from there.
func (l *Ledger) queueEvent(ev *domain.Event) {
	select {
	case l.events <- ev:
	default:
		l.dropped.Store(true)
		l.logger.Warn("event queue full, delivering from log", "type", ev.Type, "seq", ev.Seq)
	}
}

// eventLoop publishes queued events to subscribers in sequence order
func (l *Ledger) eventLoop() {
	var delivered uint64
	for {
		select {
		case <-l.done:
			return
		case ev := <-l.events:
			switch {
			case ev.Seq <= delivered:
				// Already sent from the log
			case ev.Seq > delivered+1:
				delivered = l.redeliver(delivered)
			default:
				l.feed.Send(ev)
				delivered = ev.Seq
			}

			for l.dropped.Swap(false) {
				delivered = l.redeliver(delivered)
			}
		}
	}
}

// redeliver publishes every logged event after seq and returns the last one sent
func (l *Ledger) redeliver(after uint64) uint64 {
	for {
		backlog := l.Notifications(after, 0)
		if len(backlog) == 0 {
			return after
		}
		for _, ev := range backlog {
			select {
			case <-l.done:
				return after
			default:
			}
			l.feed.Send(ev)
			after = ev.Seq
		}
	}
}

// Subscribe delivers every future notification to ch. Slow receivers hold up
// delivery to everyone, so ch should be buffered and drained promptly.
func (l *Ledger) Subscribe(ch chan<- *domain.Event) event.Subscription {
	sub := l.feed.Subscribe(ch)
	if tracked := l.scope.Track(sub); tracked != nil {
		return tracked
	}

	// Ledger already closed
	sub.Unsubscribe()
	return event.NewSubscription(func(<-chan struct{}) error { return nil })
}

// Notifications returns logged notifications with seq greater than after, oldest first
func (l *Ledger) Notifications(after uint64, limit int) []*domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	if after >= uint64(len(l.log)) {
		return []*domain.Event{}
	}

	end := after + uint64(limit)
	if end > uint64(len(l.log)) {
		end = uint64(len(l.log))
	}

	out := make([]*domain.Event, end-after)
	copy(out, l.log[after:end])
	return out
}

// LastSeq returns the sequence number of the most recent notification
func (l *Ledger) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Close stops live delivery and unsubscribes all subscribers
func (l *Ledger) Close() {
	l.once.Do(func() {
		close(l.done)
		l.scope.Close()
	})
}
