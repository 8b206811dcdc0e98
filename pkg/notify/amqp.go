// Package notify publishes report lifecycle events to a message broker.
// Publishing is best effort: a broker outage is logged and never fails the
// diagnosis pipeline.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName   = "reports.events"
	publishTimeout = 3 * time.Second
)

// ReportEvent is the wire form of a lifecycle notification.
type ReportEvent struct {
	Event       string    `json:"event"`
	RecordingID string    `json:"recording_id"`
	WardID      string    `json:"ward_id"`
	ReportID    string    `json:"report_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// AMQPNotifier fans report events out to an AMQP exchange. Construct with
// NewAMQPNotifier; the zero value is not usable.
type AMQPNotifier struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	url  string
}

// NewAMQPNotifier dials the broker and declares the fanout exchange.
func NewAMQPNotifier(url string) (*AMQPNotifier, error) {
	n := &AMQPNotifier{url: url}
	if err := n.connect(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *AMQPNotifier) connect() error {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	n.conn = conn
	n.ch = ch
	return nil
}

// ReportCompleted announces a persisted report for a recording.
func (n *AMQPNotifier) ReportCompleted(ctx context.Context, recordingID, wardID, reportID string) {
	n.publish(ctx, ReportEvent{
		Event:       "report.completed",
		RecordingID: recordingID,
		WardID:      wardID,
		ReportID:    reportID,
		At:          time.Now().UTC(),
	})
}

// ReportFailed announces a diagnosis failure for a recording.
func (n *AMQPNotifier) ReportFailed(ctx context.Context, recordingID, wardID, errMsg string) {
	n.publish(ctx, ReportEvent{
		Event:       "report.failed",
		RecordingID: recordingID,
		WardID:      wardID,
		Error:       errMsg,
		At:          time.Now().UTC(),
	})
}

func (n *AMQPNotifier) publish(ctx context.Context, evt ReportEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		slog.Error("encode report event", "event", evt.Event, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch == nil || n.ch.IsClosed() {
		if err := n.reconnectLocked(); err != nil {
			slog.Warn("report event dropped, broker unreachable",
				"event", evt.Event, "recording_id", evt.RecordingID, "err", err)
			return
		}
	}
	err = n.ch.PublishWithContext(ctx, exchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   evt.At,
		Body:        body,
	})
	if err != nil {
		slog.Warn("report event dropped",
			"event", evt.Event, "recording_id", evt.RecordingID, "err", err)
	}
}

func (n *AMQPNotifier) reconnectLocked() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return n.connect()
}

// Close tears down the channel and connection.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
