package events

// Publisher delivers events to downstream consumers. Publish must not
// block order processing: implementations buffer or drop instead of
// waiting, and a publish failure never rolls back the order that caused
// the event.
type Publisher interface {
	Publish(event Event) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

func (p *NopPublisher) Publish(Event) error {
	return nil
}

func (p *NopPublisher) Close() error {
	return nil
}

// MultiPublisher fans one event out to several publishers. Every target is
// attempted even when an earlier one fails; the first error is returned.
type MultiPublisher struct {
	targets []Publisher
}

func NewMultiPublisher(targets ...Publisher) *MultiPublisher {
	return &MultiPublisher{targets: targets}
}

func (p *MultiPublisher) Publish(event Event) error {
	var firstErr error

	for _, target := range p.targets {
		if err := target.Publish(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (p *MultiPublisher) Close() error {
	var firstErr error

	for _, target := range p.targets {
		if err := target.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
