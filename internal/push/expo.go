package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	upforit_errors "upforit/pkg/errors"
	"upforit/pkg/logger"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// MaxChunk is the largest batch the Expo push API accepts in one request.
const MaxChunk = 100

type Config struct {
	URL         string
	AccessToken string
	Timeout     time.Duration
	MaxFailures int
	OpenTimeout time.Duration
}

// ExpoClient posts notifications to the Expo push relay behind a circuit breaker.
type ExpoClient struct {
	cfg    Config
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	log    *logger.Logger
}

func NewExpoClient(cfg Config, l *logger.Logger) *ExpoClient {
	if l == nil {
		l = logger.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	st := gobreaker.Settings{
		Name:        "expo-push",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.MaxFailures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			l.Logger.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &ExpoClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cb:     gobreaker.NewCircuitBreaker(st),
		log:    l,
	}
}

type expoResponse struct {
	Data []struct {
		Status  string `json:"status"`
		ID      string `json:"id"`
		Message string `json:"message"`
		Details struct {
			Error string `json:"error"`
		} `json:"details"`
	} `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Send posts msgs in chunks of MaxChunk. A failing chunk does not stop later chunks;
// the first error is returned alongside the tickets that were obtained.
func (c *ExpoClient) Send(ctx context.Context, msgs []Message) ([]Ticket, error) {
	var (
		tickets  []Ticket
		firstErr error
	)
	for start := 0; start < len(msgs); start += MaxChunk {
		end := min(start+MaxChunk, len(msgs))
		chunk := msgs[start:end]

		got, err := c.sendChunk(ctx, chunk)
		if err != nil {
			c.log.WarnCtx(ctx, "push chunk failed", zap.Int("size", len(chunk)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		tickets = append(tickets, got...)
	}
	return tickets, firstErr
}

func (c *ExpoClient) sendChunk(ctx context.Context, chunk []Message) ([]Ticket, error) {
	body, err := json.Marshal(chunk)
	if err != nil {
		return nil, err
	}

	res, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.cfg.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		// 5xx counts against the breaker
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("push relay status %d", resp.StatusCode)
		}
		return relayReply{status: resp.StatusCode, body: raw}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("push relay breaker open: %w", upforit_errors.ErrServiceUnavailable)
		}
		return nil, fmt.Errorf("%v: %w", err, upforit_errors.ErrDeliveryFailed)
	}

	reply := res.(relayReply)
	if reply.status >= 300 {
		return nil, fmt.Errorf("push relay status %d: %s: %w", reply.status, bytes.TrimSpace(reply.body), upforit_errors.ErrDeliveryFailed)
	}

	var decoded expoResponse
	if err := json.Unmarshal(reply.body, &decoded); err != nil {
		return nil, fmt.Errorf("decode push reply: %w", upforit_errors.ErrDeliveryFailed)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("push relay: %s: %w", decoded.Errors[0].Message, upforit_errors.ErrDeliveryFailed)
	}

	tickets := make([]Ticket, 0, len(chunk))
	for i, m := range chunk {
		t := Ticket{To: m.To}
		if i < len(decoded.Data) {
			d := decoded.Data[i]
			t.Status, t.ID, t.Message, t.Error = d.Status, d.ID, d.Message, d.Details.Error
		}
		if t.Status == TicketError {
			c.log.WarnCtx(ctx, "push ticket error", zap.String("error", t.Error), zap.String("message", t.Message))
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

type relayReply struct {
	status int
	body   []byte
}
