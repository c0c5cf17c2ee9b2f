package notify

import (
	"context"
	"log"
	"sync"

	"github.com/shadowdestructor/storefront/internal/catalog"
	"github.com/shadowdestructor/storefront/internal/order"
)

// Sender delivers one rendered message. Implementations are responsible
// for transport-level retries; the dispatcher only logs failures.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a rendered notification ready for delivery.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

// Dispatcher fans notifications out to a Sender from a background worker.
// Enqueueing never blocks the caller: when the queue is full the event is
// dropped and logged, since a stuck mail relay must not stall checkout.
type Dispatcher struct {
	sender            Sender
	queue             chan Message
	lowStockRecipient []string

	wg   sync.WaitGroup
	once sync.Once
	done chan struct{}
}

const defaultQueueSize = 256

func NewDispatcher(sender Sender, lowStockRecipients []string) *Dispatcher {
	return &Dispatcher{
		sender:            sender,
		queue:             make(chan Message, defaultQueueSize),
		lowStockRecipient: lowStockRecipients,
		done:              make(chan struct{}),
	}
}

// Start launches the delivery worker. Messages that fail to send are
// logged with their full subject so they can be replayed by hand.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case msg, ok := <-d.queue:
				if !ok {
					return
				}
				if err := d.sender.Send(ctx, msg); err != nil {
					log.Printf("DEAD-LETTER notification %q to %v: %v", msg.Subject, msg.To, err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close drains the queue and stops the worker. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.queue)
		close(d.done)
	})
	d.wg.Wait()
}

func (d *Dispatcher) enqueue(msg Message) {
	select {
	case <-d.done:
		log.Printf("dropping notification %q: dispatcher closed", msg.Subject)
		return
	default:
	}
	select {
	case d.queue <- msg:
	default:
		log.Printf("dropping notification %q to %v: queue full", msg.Subject, msg.To)
	}
}

// OrderConfirmation emails the buyer their order summary.
func (d *Dispatcher) OrderConfirmation(o *order.Order) {
	msg, err := renderOrderConfirmation(o)
	if err != nil {
		log.Printf("render order confirmation for %s: %v", o.Number, err)
		return
	}
	d.enqueue(msg)
}

// OrderStatusChanged emails the buyer when fulfillment moves forward.
func (d *Dispatcher) OrderStatusChanged(o *order.Order, previous order.Status) {
	msg, err := renderStatusChange(o, previous)
	if err != nil {
		log.Printf("render status change for %s: %v", o.Number, err)
		return
	}
	d.enqueue(msg)
}

// LowStock alerts the configured operators about products running out.
// With no recipients configured the alert is skipped with a warning.
func (d *Dispatcher) LowStock(products []catalog.Product) {
	if len(d.lowStockRecipient) == 0 {
		log.Printf("skipping low stock alert for %d products: no recipients configured", len(products))
		return
	}
	msg, err := renderLowStock(d.lowStockRecipient, products)
	if err != nil {
		log.Printf("render low stock alert: %v", err)
		return
	}
	d.enqueue(msg)
}

// Welcome greets a newly registered customer.
func (d *Dispatcher) Welcome(email, name string) {
	msg, err := renderWelcome(email, name)
	if err != nil {
		log.Printf("render welcome for %s: %v", email, err)
		return
	}
	d.enqueue(msg)
}

// PasswordReset sends a reset link built from the supplied URL.
func (d *Dispatcher) PasswordReset(email, resetURL string) {
	msg, err := renderPasswordReset(email, resetURL)
	if err != nil {
		log.Printf("render password reset for %s: %v", email, err)
		return
	}
	d.enqueue(msg)
}
