package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// StartSeatStatusConsumer connects to RabbitMQ, declares the seat.status
// queue (durable), and starts consuming messages.  Each event is appended
// to logs/seat-status.log in a single-line, human-friendly format.  This
// stands in for the websocket broadcast layer, which is outside this
// service.  The function runs a reconnect loop forever; processing errors
// are logged and the offending message rejected so the server keeps
// operating.
func StartSeatStatusConsumer(logger *logrus.Logger, url string) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.WithError(err).Warnf("seat-status consumer: dial failed; retrying in %s", backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(logger, conn); err != nil {
			logger.WithError(err).Warn("seat-status consumer: consume loop ended; reconnecting")
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(logger *logrus.Logger, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.WithError(err).Warn("seat-status consumer: set QoS failed")
	}

	if _, err := ch.QueueDeclare(SeatStatusQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(SeatStatusQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(d.Body); err != nil {
			logger.WithError(err).Warn("seat-status consumer: handle message failed")
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(body []byte) error {
	var ev SeatStatusEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "seat-status.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	seats := make([]string, 0, len(ev.SeatIDs))
	for _, id := range ev.SeatIDs {
		seats = append(seats, fmt.Sprintf("%d", id))
	}

	line := fmt.Sprintf("[%s] Seat status changed | event_id=%d | status=%s | holder=%q | booking=%q | seats=[%s]\n",
		ev.OccurredAt, ev.EventID, ev.Status, ev.HolderID, ev.BookingID, strings.Join(seats, ","))

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
