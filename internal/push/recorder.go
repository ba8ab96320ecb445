package push

import (
	"context"
	"sync"
)

// Recorder keeps messages instead of sending them. It stands in for the relay when
// push is disabled and in tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(ctx context.Context, msgs []Message) ([]Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	tickets := make([]Ticket, 0, len(msgs))
	for _, m := range msgs {
		r.sent = append(r.sent, m)
		tickets = append(tickets, Ticket{To: m.To, Status: TicketOK})
	}
	return tickets, nil
}

// Sent returns a copy of everything recorded so far.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}
