// Package notify доставляет пользователям уведомления о результатах операций
// и повторяет неудавшиеся отправки из очереди.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/gmailmart-bot/internal/model"
)

// ErrUndeliverable помечает ошибку, после которой повторять отправку бессмысленно,
// например пользователь заблокировал бота.
var ErrUndeliverable = errors.New("undeliverable")

// DefaultMaxAttempts задаёт число попыток доставки по умолчанию, включая первую.
const DefaultMaxAttempts = 5

// Sender отправляет событие получателю.
type Sender interface {
	SendEvent(ctx context.Context, ev model.Event) error
}

// Message хранит событие в очереди повторной отправки.
type Message struct {
	ID         string      `json:"id"`
	Event      model.Event `json:"event"`
	Attempts   int         `json:"attempts"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// Queue хранит сообщения, ожидающие повторной отправки.
type Queue interface {
	Push(ctx context.Context, msg Message) error
	// Pop возвращает nil, если очередь пуста.
	Pop(ctx context.Context) (*Message, error)
	Len(ctx context.Context) (int64, error)
}

// Dispatcher отправляет события сразу, а неудачные ставит в очередь.
type Dispatcher struct {
	sender      Sender
	queue       Queue
	logger      *zap.Logger
	maxAttempts int
}

// NewDispatcher создаёт диспетчер. maxAttempts <= 0 означает DefaultMaxAttempts.
func NewDispatcher(sender Sender, queue Queue, logger *zap.Logger, maxAttempts int) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sender:      sender,
		queue:       queue,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Notify пытается отправить событие. При временной ошибке событие ставится в очередь,
// а ошибка всё равно возвращается вызывающему для журналирования.
func (d *Dispatcher) Notify(ctx context.Context, ev model.Event) error {
	err := d.sender.SendEvent(ctx, ev)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUndeliverable) || d.maxAttempts <= 1 {
		return err
	}

	msg := Message{
		ID:         uuid.NewString(),
		Event:      ev,
		Attempts:   1,
		EnqueuedAt: time.Now().UTC(),
	}
	if qerr := d.queue.Push(ctx, msg); qerr != nil {
		return errors.Join(err, fmt.Errorf("enqueue retry: %w", qerr))
	}
	return fmt.Errorf("queued for retry as %s: %w", msg.ID, err)
}

// Flush повторяет отправку сообщений, находившихся в очереди на момент вызова.
// Возвращает число доставленных сообщений.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	n, err := d.queue.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}

	delivered := 0
	for i := int64(0); i < n; i++ {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		msg, err := d.queue.Pop(ctx)
		if err != nil {
			return delivered, fmt.Errorf("pop message: %w", err)
		}
		if msg == nil {
			break
		}

		if err := d.sender.SendEvent(ctx, msg.Event); err != nil {
			d.retry(ctx, msg, err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (d *Dispatcher) retry(ctx context.Context, msg *Message, sendErr error) {
	msg.Attempts++
	fields := []zap.Field{
		zap.String("messageID", msg.ID),
		zap.String("kind", string(msg.Event.Kind)),
		zap.Int64("userID", msg.Event.UserID),
		zap.Int("attempts", msg.Attempts),
		zap.Error(sendErr),
	}

	if errors.Is(sendErr, ErrUndeliverable) || msg.Attempts >= d.maxAttempts {
		d.logger.Error("notification dropped", fields...)
		return
	}
	if err := d.queue.Push(ctx, *msg); err != nil {
		d.logger.Error("notification lost", append(fields, zap.NamedError("queueError", err))...)
		return
	}
	d.logger.Warn("notification retry failed", fields...)
}
