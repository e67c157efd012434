// Package notify announces finished imports on NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectImportCompleted is the default subject for finished imports.
const SubjectImportCompleted = "smsimport.import.completed"

// Publisher sends a JSON-encoded payload on a subject.
type Publisher interface {
	Publish(subject string, data any) error
}

// ImportCompleted is published once per run that reached the store.
type ImportCompleted struct {
	RunID        string `json:"run_id"`
	Store        string `json:"store"`
	Generation   string `json:"generation"`
	Policy       string `json:"policy"`
	Messages     int    `json:"messages"`
	Groups       int    `json:"groups"`
	SavedGroups  int    `json:"saved_groups"`
	FailedGroups int    `json:"failed_groups"`
	Outgoing     int    `json:"outgoing"`
	Incoming     int    `json:"incoming"`
	Timestamp    string `json:"timestamp"`
}

type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("smsdb-import"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	c.logger.Debug("published", "subject", subject, "bytes", len(payload))
	return nil
}

// Close flushes pending publishes before disconnecting.
func (c *Client) Close() {
	if err := c.conn.Flush(); err != nil {
		c.logger.Warn("nats flush failed", "error", err)
	}
	c.conn.Close()
}
