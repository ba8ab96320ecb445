package events

import "context"

type Subscriber interface {
	Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error
}

// Publisher puts a change event on the stream.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Source delivers raw change-stream records to handle until ctx is done.
type Source interface {
	Run(ctx context.Context, handle func(ctx context.Context, raw []byte) error) error
}
