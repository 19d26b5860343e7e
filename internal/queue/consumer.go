package queue

import (
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// StartUserVerifiedConsumer connects to RabbitMQ, declares the
// user.verified queue (durable), and starts consuming messages. Each
// message is appended to logs/signup.log in a single-line,
// human-friendly format. The function runs a reconnect loop; it keeps
// running and logs any processing errors while rejecting the offending
// message so the server continues operating.
func StartUserVerifiedConsumer() error {
    url := brokerURL()

    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Printf("signup-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            time.Sleep(backoff)
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        if err := consumeLoop(conn); err != nil {
            log.Printf("signup-consumer: consume loop ended: %v; reconnecting", err)
            time.Sleep(2 * time.Second)
            continue
        }
    }
}

func consumeLoop(conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Printf("signup-consumer: set QoS failed: %v", err)
    }

    _, err = ch.QueueDeclare(userVerifiedQueueName, true, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }

    msgs, err := ch.Consume(userVerifiedQueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := handleMessage(d.Body); err != nil {
            log.Printf("signup-consumer: handle message failed: %v", err)
            _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

func handleMessage(body []byte) error {
    var ev UserVerifiedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    // Ensure logs directory exists
    if err := os.MkdirAll("logs", 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    fpath := filepath.Join("logs", "signup.log")
    f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    line := fmt.Sprintf("[%s] Account verified | user_id=%s | email=%s | name=%q | role=%s\n",
        ev.VerifiedAt, ev.UserID, ev.Email, ev.Name, ev.Role)

    if _, err := f.WriteString(line); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}
