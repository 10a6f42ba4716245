// Package hermes connects debrief to the NATS bus: it announces finished
// aggregation runs and listens for newly stored recordings.
package hermes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// QueueGroup spreads recording notifications across debrief instances, so a
// stored file triggers one re-aggregation rather than one per instance.
const QueueGroup = "debrief"

// Headers set on mission signals.
const (
	HeaderRunID   = "Debrief-Run-Id"
	HeaderMission = "Debrief-Mission"
)

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("debrief"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected, mission signals paused", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
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

// Publish sends data as JSON on subject.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// PublishMissionAggregated announces a finished run on
// SubjectMissionAggregated.
func (c *Client) PublishMissionAggregated(signal MissionAggregatedSignal) error {
	msg, err := missionAggregatedMsg(signal)
	if err != nil {
		return err
	}
	if err := c.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	c.logger.Debug("mission aggregated signal sent", "mission", signal.Mission, "run_id", signal.RunID)
	return nil
}

// missionAggregatedMsg carries the run id and mission name as headers so
// consumers can route without decoding. The run id is also the JetStream
// de-duplication id: a re-sent signal for the same run is stored once.
func missionAggregatedMsg(signal MissionAggregatedSignal) (*nats.Msg, error) {
	payload, err := json.Marshal(signal)
	if err != nil {
		return nil, fmt.Errorf("marshal mission signal: %w", err)
	}
	msg := nats.NewMsg(SubjectMissionAggregated)
	msg.Data = payload
	msg.Header.Set(HeaderMission, signal.Mission)
	if signal.RunID != "" {
		msg.Header.Set(HeaderRunID, signal.RunID)
		msg.Header.Set(nats.MsgIdHdr, signal.RunID)
	}
	return msg, nil
}

// SubscribeRecordingStored delivers decoded recording notifications within
// QueueGroup. Malformed messages are logged and dropped.
func (c *Client) SubscribeRecordingStored(handler func(RecordingStoredEvent)) error {
	sub, err := c.conn.QueueSubscribe(SubjectRecordingStored, QueueGroup, func(msg *nats.Msg) {
		evt, err := DecodeRecordingStored(msg.Data)
		if err != nil {
			c.logger.Warn("dropping malformed recording event", "subject", msg.Subject, "error", err)
			return
		}
		handler(evt)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectRecordingStored, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("listening for stored recordings", "subject", SubjectRecordingStored, "queue", QueueGroup)
	return nil
}

// Close drops the subscriptions and flushes pending mission signals.
func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	if err := c.conn.Flush(); err != nil {
		c.logger.Warn("nats flush on close", "error", err)
	}
	c.conn.Close()
}
