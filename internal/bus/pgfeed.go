package bus

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
)

// notifyChannel is the Postgres NOTIFY channel request triggers fire
// on.
const notifyChannel = "roadsync_requests"

// PGFeed subscribes to request change notifications over a dedicated
// Postgres LISTEN connection. Payloads are JSON {"action", "request_id"};
// a payload that does not parse still produces a coarse "changed"
// event so subscribers never miss a write.
type PGFeed struct {
	url    string
	logger *log.Logger

	// backoff bounds the reconnect delay after a dropped connection.
	backoff time.Duration
}

// NewPGFeed creates a feed for the backend at url.
func NewPGFeed(url string, logger *log.Logger) *PGFeed {
	if logger == nil {
		logger = log.New(os.Stderr, "[pgfeed] ", log.LstdFlags)
	}
	return &PGFeed{url: url, logger: logger, backoff: 5 * time.Second}
}

// Name identifies the feed in logs.
func (f *PGFeed) Name() string { return "postgres" }

// Run listens until ctx is cancelled, reconnecting after transient
// connection failures.
func (f *PGFeed) Run(ctx context.Context, publish func(Event)) error {
	for {
		err := f.listen(ctx, publish)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Printf("listen connection lost: %v, reconnecting in %s", err, f.backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.backoff):
		}
	}
}

// listen holds one LISTEN connection open and publishes its
// notifications.
func (f *PGFeed) listen(ctx context.Context, publish func(Event)) error {
	conn, err := pgx.Connect(ctx, f.url)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		publish(decodePayload(notification.Payload))
	}
}

// decodePayload parses a notification payload, falling back to a
// coarse change event on malformed input.
func decodePayload(payload string) Event {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil || ev.Action == "" {
		ev = Event{Action: "changed"}
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return ev
}
