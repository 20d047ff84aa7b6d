package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"paygate/internal/domain"
)

// SendResult reports the outcome of a best-effort send. A failed send is
// logged and never propagated; settlement has already happened by the
// time a notification goes out.
type SendResult struct {
	Sent   bool
	Reason string
}

// SMSSender delivers a text message to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) SendResult
}

// LogSMSSender is an SMSSender that only logs. Used in development and
// when no gateway is configured.
type LogSMSSender struct {
	senderID string
}

// NewLogSMSSender creates a new LogSMSSender.
func NewLogSMSSender(senderID string) *LogSMSSender {
	return &LogSMSSender{senderID: senderID}
}

// Send logs the message and reports success.
func (s *LogSMSSender) Send(ctx context.Context, phone, message string) SendResult {
	log.Printf("[SMS] From=%s, To=%s, Message=%s", s.senderID, phone, message)
	return SendResult{Sent: true}
}

// DisabledSMSSender drops every message. Wired when outbound SMS is
// switched off in configuration.
type DisabledSMSSender struct{}

// NewDisabledSMSSender creates a new DisabledSMSSender.
func NewDisabledSMSSender() *DisabledSMSSender {
	return &DisabledSMSSender{}
}

// Send reports the message as not sent.
func (s *DisabledSMSSender) Send(ctx context.Context, phone, message string) SendResult {
	return SendResult{Sent: false, Reason: "sms disabled"}
}

// NotificationService sends customer-facing payment notifications. Every
// send is bounded by a timeout and fire-and-forget.
type NotificationService struct {
	sender  SMSSender
	timeout time.Duration
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(sender SMSSender, timeout time.Duration) *NotificationService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NotificationService{sender: sender, timeout: timeout}
}

// NotifyPaymentReceived tells the payer their payment was applied.
func (s *NotificationService) NotifyPaymentReceived(ctx context.Context, order *domain.Order, payment domain.PartialPayment) SendResult {
	var message string
	if order.PaymentStatus == domain.PaymentStatusPaid {
		message = fmt.Sprintf(
			"Payment of %s received for order %s. Your order is fully paid. Receipt: %s",
			formatAmount(payment.Amount), order.OrderNumber, payment.ReceiptID,
		)
	} else {
		message = fmt.Sprintf(
			"Payment of %s received for order %s. Balance remaining: %s. Receipt: %s",
			formatAmount(payment.Amount), order.OrderNumber,
			formatAmount(order.RemainingBalance), payment.ReceiptID,
		)
	}

	phone := payment.PayerPhone
	if phone == "" {
		phone = order.CustomerPhone
	}
	if phone == "" {
		return SendResult{Sent: false, Reason: "no phone number on record"}
	}

	return s.send(ctx, phone, message)
}

// send delivers the message with a bounded timeout and logs the outcome.
func (s *NotificationService) send(ctx context.Context, phone, message string) SendResult {
	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result := s.sender.Send(sendCtx, phone, message)
	if !result.Sent {
		log.Printf("[SMS] send failed: to=%s reason=%s", phone, result.Reason)
	}
	return result
}

func formatAmount(minor int64) string {
	return fmt.Sprintf("KES %d.%02d", minor/100, minor%100)
}
