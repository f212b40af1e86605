// internal/events/nats.go
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// DefaultSubjectPrefix is the NATS subject root for match events.
const DefaultSubjectPrefix = "quizduel.sessions"

// natsConn is the subset of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subj string, data []byte) error
}

// NATSPublisher forwards events to NATS on "<prefix>.<session id>.<type>" so
// other processes can follow a match without polling.
type NATSPublisher struct {
	conn   natsConn
	prefix string
	logger logrus.FieldLogger
}

// NewNATSPublisher wraps a connection. An empty prefix uses DefaultSubjectPrefix.
func NewNATSPublisher(conn *nats.Conn, prefix string, logger logrus.FieldLogger) *NATSPublisher {
	return newNATSPublisher(conn, prefix, logger)
}

func newNATSPublisher(conn natsConn, prefix string, logger logrus.FieldLogger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(ev Event) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, ev.SessionID, ev.Type)
}

// Publish serializes ev and hands it to the NATS client's buffered writer.
func (p *NATSPublisher) Publish(ev Event) {
	data, err := json.Marshal(wireEvent{Event: ev, Recipients: ev.Recipients})
	if err != nil {
		p.logger.WithError(err).WithField("type", ev.Type).Error("failed to marshal event for NATS")
		return
	}
	if err := p.conn.Publish(p.Subject(ev), data); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": ev.SessionID,
			"type":       ev.Type,
		}).Warn("failed to publish event to NATS")
	}
}

// wireEvent carries recipients on the bus, which the client-facing JSON omits.
type wireEvent struct {
	Event
	Recipients []uuid.UUID `json:"recipients,omitempty"`
}

// ConnectNATS dials url with reconnect logging.
func ConnectNATS(url, name string, logger logrus.FieldLogger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrlRedacted()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}
