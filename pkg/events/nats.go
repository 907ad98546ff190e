package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/deltastream-lab/tradesim/pkg/errors"
)

// DefaultSubjectPrefix is the root of the NATS subject hierarchy; the event
// type is appended, e.g. tradesim.events.order.filled.
const DefaultSubjectPrefix = "tradesim.events"

// NATSPublisher publishes events as JSON messages to NATS, one subject per
// event type.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to the NATS server at url. An empty prefix
// falls back to DefaultSubjectPrefix.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodePublishFailed, err, "connect to nats at %s", url)
	}

	return &NATSPublisher{
		nc:     nc,
		prefix: prefix,
	}, nil
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(errors.ErrCodePublishFailed, "marshal event", err)
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, event.Type)
	if err := p.nc.Publish(subject, payload); err != nil {
		return errors.Wrapf(errors.ErrCodePublishFailed, err, "publish to %s", subject)
	}

	return nil
}

// Connected reports whether the underlying connection is currently up.
func (p *NATSPublisher) Connected() bool {
	return p.nc.IsConnected()
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
