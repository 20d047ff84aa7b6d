package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"paygate/internal/domain"
	"paygate/internal/redis"
	"paygate/internal/repository"
	"paygate/internal/service"
)

// ──────────────────────────────────────────────
// MOCK ORDER REPOSITORY
// ──────────────────────────────────────────────

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order

	// Counters for verification
	ApplyPaymentCallCount int32

	// Error injection
	ApplyPaymentError     error
	ApplyPaymentErrorOnce error
}

// NewMockOrderRepository creates a new mock order repository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[string]*domain.Order),
	}
}

// AddOrder adds an order to the mock repository.
func (m *MockOrderRepository) AddOrder(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
}

// Order returns the stored order for assertions.
func (m *MockOrderRepository) Order(id string) *domain.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.orders[id]
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyOrder(order), nil
}

func (m *MockOrderRepository) GetByReference(ctx context.Context, ref string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.ID == ref || o.OrderNumber == ref {
			return copyOrder(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockOrderRepository) GetByCheckoutRequestID(ctx context.Context, checkoutID string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.PendingPayment != nil && o.PendingPayment.CheckoutRequestID == checkoutID {
			return copyOrder(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockOrderRepository) FindCandidates(ctx context.Context, amount int64, since time.Time) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Order
	for _, o := range m.orders {
		if o.TotalAmount != amount && o.RemainingBalance != amount {
			continue
		}
		switch o.PaymentStatus {
		case domain.PaymentStatusUnpaid, domain.PaymentStatusPending, domain.PaymentStatusPartial:
		default:
			continue
		}
		if o.CreatedAt.Before(since) {
			continue
		}
		result = append(result, copyOrder(o))
	}
	return result, nil
}

func (m *MockOrderRepository) ApplyPayment(ctx context.Context, orderID string, observedRemaining int64, patch domain.OrderPatch) error {
	atomic.AddInt32(&m.ApplyPaymentCallCount, 1)
	if m.ApplyPaymentErrorOnce != nil {
		err := m.ApplyPaymentErrorOnce
		m.ApplyPaymentErrorOnce = nil
		return err
	}
	if m.ApplyPaymentError != nil {
		return m.ApplyPaymentError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	if order.CurrentRemaining() != observedRemaining {
		return repository.ErrConcurrentUpdate
	}

	order.RemainingBalance = patch.NewRemaining
	order.PaymentStatus = patch.NewStatus
	order.PartialPayments = append(order.PartialPayments, patch.Payment)
	if patch.ClearPending && order.PendingPayment != nil {
		order.PendingPayment.Status = patch.NewStatus
	}
	return nil
}

func (m *MockOrderRepository) SetPendingStatus(ctx context.Context, orderID string, status domain.PaymentStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok || order.PendingPayment == nil {
		return repository.ErrNotFound
	}
	order.PendingPayment.Status = status
	order.PendingPayment.FailureReason = reason
	if status == domain.PaymentStatusFailed && order.PaymentStatus == domain.PaymentStatusPending {
		order.PaymentStatus = domain.PaymentStatusFailed
	}
	return nil
}

func copyOrder(o *domain.Order) *domain.Order {
	clone := *o
	clone.PartialPayments = append([]domain.PartialPayment(nil), o.PartialPayments...)
	if o.PendingPayment != nil {
		pending := *o.PendingPayment
		clone.PendingPayment = &pending
	}
	return &clone
}

// ──────────────────────────────────────────────
// MOCK LEDGER REPOSITORY
// ──────────────────────────────────────────────

// MockLedgerRepository is a mock implementation of LedgerRepository.
type MockLedgerRepository struct {
	mu      sync.RWMutex
	entries map[string]*domain.LedgerEntry

	// Counters for verification
	RecordIfNewCallCount int32

	// Error injection
	RecordIfNewError  error
	UpdateStatusError error
}

// NewMockLedgerRepository creates a new mock ledger repository.
func NewMockLedgerRepository() *MockLedgerRepository {
	return &MockLedgerRepository{
		entries: make(map[string]*domain.LedgerEntry),
	}
}

// Entry returns the stored entry for assertions.
func (m *MockLedgerRepository) Entry(receiptID string) *domain.LedgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[receiptID]
}

// Count returns the number of stored entries.
func (m *MockLedgerRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MockLedgerRepository) RecordIfNew(ctx context.Context, entry *domain.LedgerEntry) (bool, *domain.LedgerEntry, error) {
	atomic.AddInt32(&m.RecordIfNewCallCount, 1)
	if m.RecordIfNewError != nil {
		return false, nil, m.RecordIfNewError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[entry.ReceiptID]; ok {
		clone := *existing
		return false, &clone, nil
	}
	clone := *entry
	m.entries[entry.ReceiptID] = &clone
	return true, nil, nil
}

func (m *MockLedgerRepository) GetByReceiptID(ctx context.Context, receiptID string) (*domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[receiptID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	clone := *entry
	return &clone, nil
}

func (m *MockLedgerRepository) UpdateStatus(ctx context.Context, receiptID string, status domain.ConfirmationStatus, notes string) error {
	if m.UpdateStatusError != nil {
		return m.UpdateStatusError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[receiptID]
	if !ok {
		return repository.ErrNotFound
	}
	entry.Status = status
	if notes != "" {
		if entry.Notes == "" {
			entry.Notes = notes
		} else {
			entry.Notes = entry.Notes + "; " + notes
		}
	}
	return nil
}

func (m *MockLedgerRepository) LinkOrder(ctx context.Context, receiptID, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[receiptID]
	if !ok {
		return repository.ErrNotFound
	}
	entry.LinkedOrderID = orderID
	return nil
}

func (m *MockLedgerRepository) ListUnlinked(ctx context.Context) ([]*domain.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.LedgerEntry
	for _, e := range m.entries {
		if e.LinkedOrderID == "" {
			clone := *e
			result = append(result, &clone)
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────
// MOCK AUDIT REPOSITORY
// ──────────────────────────────────────────────

// MockAuditRepository is a mock implementation of AuditRepository.
type MockAuditRepository struct {
	mu      sync.RWMutex
	records []*domain.AuditRecord

	// Error injection
	WriteError error
}

// NewMockAuditRepository creates a new mock audit repository.
func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{}
}

func (m *MockAuditRepository) Write(ctx context.Context, record *domain.AuditRecord) error {
	if m.WriteError != nil {
		return m.WriteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *record
	m.records = append(m.records, &clone)
	return nil
}

// Records returns the written records for assertions.
func (m *MockAuditRepository) Records() []*domain.AuditRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.AuditRecord(nil), m.records...)
}

// LastAction returns the most recent action, or empty.
func (m *MockAuditRepository) LastAction() domain.AuditAction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return ""
	}
	return m.records[len(m.records)-1].Action
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStoreInterface.
type MockLockStore struct {
	mu   sync.Mutex
	held map[string]bool

	// Counters for verification
	AcquireCallCount int32

	// Error injection
	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{held: make(map[string]bool)}
}

// Hold marks an order lock as already taken.
func (m *MockLockStore) Hold(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.held[orderID] = true
}

func (m *MockLockStore) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[orderID] {
		return false, nil
	}
	m.held[orderID] = true
	return true, nil
}

func (m *MockLockStore) ReleaseOrderLock(ctx context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.held, orderID)
	return nil
}

// ──────────────────────────────────────────────
// MOCK SMS SENDER
// ──────────────────────────────────────────────

// SentSMS captures one delivered message.
type SentSMS struct {
	Phone   string
	Message string
}

// MockSMSSender is a mock implementation of SMSSender.
type MockSMSSender struct {
	mu   sync.Mutex
	sent []SentSMS

	// FailReason, when set, makes every send report failure.
	FailReason string
}

// NewMockSMSSender creates a new mock SMS sender.
func NewMockSMSSender() *MockSMSSender {
	return &MockSMSSender{}
}

func (m *MockSMSSender) Send(ctx context.Context, phone, message string) service.SendResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReason != "" {
		return service.SendResult{Sent: false, Reason: m.FailReason}
	}
	m.sent = append(m.sent, SentSMS{Phone: phone, Message: message})
	return service.SendResult{Sent: true}
}

// Sent returns the delivered messages.
func (m *MockSMSSender) Sent() []SentSMS {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentSMS(nil), m.sent...)
}

// Ensure mocks satisfy the interfaces they stand in for.
var (
	_ repository.OrderRepository  = (*MockOrderRepository)(nil)
	_ repository.LedgerRepository = (*MockLedgerRepository)(nil)
	_ repository.AuditRepository  = (*MockAuditRepository)(nil)
	_ redis.LockStoreInterface    = (*MockLockStore)(nil)
	_ service.SMSSender           = (*MockSMSSender)(nil)
)
