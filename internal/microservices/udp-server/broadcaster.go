package udp

import (
	"log/slog"
	"net"
	"sync/atomic"
)

// Broadcaster writes relayed frames to the subscribers that want them.
type Broadcaster struct {
	conn       *net.UDPConn
	subManager *SubscriberManager
	logger     *slog.Logger

	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewBroadcaster(conn *net.UDPConn, subManager *SubscriberManager, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{conn: conn, subManager: subManager, logger: logger}
}

// Publish sends one datagram per matching subscriber. It is called from the
// simulation goroutine, so a failing subscriber is dropped rather than retried.
func (b *Broadcaster) Publish(sessionID string, data []byte) {
	for _, sub := range b.subManager.Matching(sessionID) {
		if err := b.sendToSubscriber(sub, data); err != nil {
			b.failed.Add(1)
			b.subManager.Remove(sub.Addr)
			b.logger.Warn("udp_subscriber_dropped",
				"addr", sub.Addr.String(),
				"error", err,
			)
			continue
		}
		b.sent.Add(1)
	}
}

// Stats returns datagrams sent and failed since start.
func (b *Broadcaster) Stats() (sent, failed uint64) {
	return b.sent.Load(), b.failed.Load()
}

func (b *Broadcaster) sendToSubscriber(sub *Subscriber, data []byte) error {
	_, err := b.conn.WriteToUDP(data, sub.Addr)
	return err
}
