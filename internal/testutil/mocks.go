package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hyunsookim/commerce/internal/domain/account"
	"github.com/hyunsookim/commerce/internal/domain/coupon"
	domainErrors "github.com/hyunsookim/commerce/internal/domain/errors"
	"github.com/hyunsookim/commerce/internal/domain/event"
	"github.com/hyunsookim/commerce/internal/domain/order"
	"github.com/hyunsookim/commerce/internal/domain/outbox"
	"github.com/hyunsookim/commerce/internal/domain/product"
	"github.com/hyunsookim/commerce/internal/domain/queue"
)

// --- Order Repository Mock ---

// MockOrderRepository is a mock implementation of order.Repository.
type MockOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order

	CreateFunc           func(ctx context.Context, o *order.Order) error
	GetByIDFunc          func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	GetByIDForUpdateFunc func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	UpdateFunc           func(ctx context.Context, o *order.Order) error
	ListByUserFunc       func(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*order.Order, error)
	ListStalePendingFunc func(ctx context.Context, cutoff time.Time, limit int) ([]*order.Order, error)
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{orders: make(map[uuid.UUID]*order.Order)}
}

// AddOrder pre-populates the mock with an order.
func (m *MockOrderRepository) AddOrder(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

// GetOrder returns the stored order (test helper, no context needed).
func (m *MockOrderRepository) GetOrder(id uuid.UUID) *order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domainErrors.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockOrderRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, id)
	}
	return m.GetByID(ctx, id)
}

func (m *MockOrderRepository) Update(ctx context.Context, o *order.Order) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *MockOrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*order.Order, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID, limit, offset)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*order.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			result = append(result, o)
		}
	}
	return result, nil
}

func (m *MockOrderRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*order.Order, error) {
	if m.ListStalePendingFunc != nil {
		return m.ListStalePendingFunc(ctx, cutoff, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*order.Order
	for _, o := range m.orders {
		if o.Status == order.StatusPending && o.CreatedAt.Before(cutoff) {
			result = append(result, o)
		}
	}
	return result, nil
}

// --- Product Repository Mock ---

// MockProductRepository is a mock implementation of product.Repository.
type MockProductRepository struct {
	mu           sync.Mutex
	products     map[uuid.UUID]*product.Product
	reservations map[uuid.UUID]*product.Reservation

	GetByIDFunc                 func(ctx context.Context, id uuid.UUID) (*product.Product, error)
	GetByIDsFunc                func(ctx context.Context, ids []uuid.UUID) ([]*product.Product, error)
	DecrementStockFunc          func(ctx context.Context, id uuid.UUID, quantity int) error
	IncrementStockFunc          func(ctx context.Context, id uuid.UUID, quantity int) error
	CreateReservationFunc       func(ctx context.Context, r *product.Reservation) error
	GetReservationByOrderIDFunc func(ctx context.Context, orderID uuid.UUID) (*product.Reservation, error)
	MarkReservationReleasedFunc func(ctx context.Context, id uuid.UUID) error
	DeleteReservationFunc       func(ctx context.Context, id uuid.UUID) error
}

func NewMockProductRepository() *MockProductRepository {
	return &MockProductRepository{
		products:     make(map[uuid.UUID]*product.Product),
		reservations: make(map[uuid.UUID]*product.Reservation),
	}
}

// AddProduct pre-populates the mock with a product.
func (m *MockProductRepository) AddProduct(p *product.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// GetProduct returns the stored product (test helper, no context needed).
func (m *MockProductRepository) GetProduct(id uuid.UUID) *product.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id]
}

func (m *MockProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, domainErrors.ErrProductNotFound
	}
	return p, nil
}

func (m *MockProductRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*product.Product, error) {
	if m.GetByIDsFunc != nil {
		return m.GetByIDsFunc(ctx, ids)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *MockProductRepository) DecrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	if m.DecrementStockFunc != nil {
		return m.DecrementStockFunc(ctx, id, quantity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return domainErrors.ErrProductNotFound
	}
	if p.Stock < quantity {
		return domainErrors.ErrInsufficientStock
	}
	p.Stock -= quantity
	return nil
}

func (m *MockProductRepository) IncrementStock(ctx context.Context, id uuid.UUID, quantity int) error {
	if m.IncrementStockFunc != nil {
		return m.IncrementStockFunc(ctx, id, quantity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return domainErrors.ErrProductNotFound
	}
	p.Stock += quantity
	return nil
}

func (m *MockProductRepository) CreateReservation(ctx context.Context, r *product.Reservation) error {
	if m.CreateReservationFunc != nil {
		return m.CreateReservationFunc(ctx, r)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[r.ID] = r
	return nil
}

func (m *MockProductRepository) GetReservationByOrderID(ctx context.Context, orderID uuid.UUID) (*product.Reservation, error) {
	if m.GetReservationByOrderIDFunc != nil {
		return m.GetReservationByOrderIDFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.OrderID == orderID {
			return r, nil
		}
	}
	return nil, domainErrors.ErrReservationNotFound
}

func (m *MockProductRepository) MarkReservationReleased(ctx context.Context, id uuid.UUID) error {
	if m.MarkReservationReleasedFunc != nil {
		return m.MarkReservationReleasedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return domainErrors.ErrReservationNotFound
	}
	if r.Released {
		return domainErrors.ErrInvalidStateTransition
	}
	r.Released = true
	return nil
}

func (m *MockProductRepository) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	if m.DeleteReservationFunc != nil {
		return m.DeleteReservationFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reservations, id)
	return nil
}

// --- Account Repository Mock ---

// MockAccountRepository is a mock implementation of account.Repository.
type MockAccountRepository struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*account.Account
	payments map[uuid.UUID]*account.Payment

	GetByUserIDFunc         func(ctx context.Context, userID uuid.UUID) (*account.Account, error)
	DebitFunc               func(ctx context.Context, userID uuid.UUID, amount int64) error
	CreditFunc              func(ctx context.Context, userID uuid.UUID, amount int64) error
	CreatePaymentFunc       func(ctx context.Context, p *account.Payment) error
	GetPaymentByOrderIDFunc func(ctx context.Context, orderID uuid.UUID) (*account.Payment, error)
	MarkPaymentRefundedFunc func(ctx context.Context, id uuid.UUID) error
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[uuid.UUID]*account.Account),
		payments: make(map[uuid.UUID]*account.Payment),
	}
}

// AddAccount pre-populates the mock with an account.
func (m *MockAccountRepository) AddAccount(a *account.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.UserID] = a
}

// GetAccount returns the stored account (test helper, no context needed).
func (m *MockAccountRepository) GetAccount(userID uuid.UUID) *account.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[userID]
}

func (m *MockAccountRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*account.Account, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return nil, domainErrors.ErrAccountNotFound
	}
	return a, nil
}

func (m *MockAccountRepository) Debit(ctx context.Context, userID uuid.UUID, amount int64) error {
	if m.DebitFunc != nil {
		return m.DebitFunc(ctx, userID, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return domainErrors.ErrAccountNotFound
	}
	if a.Balance < amount {
		return domainErrors.ErrInsufficientBalance
	}
	a.Balance -= amount
	return nil
}

func (m *MockAccountRepository) Credit(ctx context.Context, userID uuid.UUID, amount int64) error {
	if m.CreditFunc != nil {
		return m.CreditFunc(ctx, userID, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return domainErrors.ErrAccountNotFound
	}
	a.Balance += amount
	return nil
}

func (m *MockAccountRepository) CreatePayment(ctx context.Context, p *account.Payment) error {
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
	return nil
}

func (m *MockAccountRepository) GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*account.Payment, error) {
	if m.GetPaymentByOrderIDFunc != nil {
		return m.GetPaymentByOrderIDFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return nil, domainErrors.ErrPaymentNotFound
}

func (m *MockAccountRepository) MarkPaymentRefunded(ctx context.Context, id uuid.UUID) error {
	if m.MarkPaymentRefundedFunc != nil {
		return m.MarkPaymentRefundedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return domainErrors.ErrPaymentNotFound
	}
	if p.Status != account.PaymentCompleted {
		return domainErrors.ErrInvalidStateTransition
	}
	p.Status = account.PaymentRefunded
	return nil
}

// --- Coupon Repository Mock ---

// MockCouponRepository is a mock implementation of coupon.Repository.
type MockCouponRepository struct {
	mu          sync.Mutex
	coupons     map[uuid.UUID]*coupon.Coupon
	userCoupons map[uuid.UUID]*coupon.UserCoupon

	GetByIDFunc             func(ctx context.Context, id uuid.UUID) (*coupon.Coupon, error)
	IncrementIssuedFunc     func(ctx context.Context, id uuid.UUID) error
	CreateUserCouponFunc    func(ctx context.Context, uc *coupon.UserCoupon) error
	GetUserCouponByIDFunc   func(ctx context.Context, id uuid.UUID) (*coupon.UserCoupon, error)
	GetUserCouponByUserFunc func(ctx context.Context, couponID, userID uuid.UUID) (*coupon.UserCoupon, error)
	MarkUsedFunc            func(ctx context.Context, id, orderID uuid.UUID) error
	RestoreByOrderFunc      func(ctx context.Context, orderID uuid.UUID) error
}

func NewMockCouponRepository() *MockCouponRepository {
	return &MockCouponRepository{
		coupons:     make(map[uuid.UUID]*coupon.Coupon),
		userCoupons: make(map[uuid.UUID]*coupon.UserCoupon),
	}
}

// AddCoupon pre-populates the mock with a coupon.
func (m *MockCouponRepository) AddCoupon(c *coupon.Coupon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupons[c.ID] = c
}

// AddUserCoupon pre-populates the mock with an issued coupon.
func (m *MockCouponRepository) AddUserCoupon(uc *coupon.UserCoupon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userCoupons[uc.ID] = uc
}

// GetUserCoupon returns the stored user coupon (test helper, no context needed).
func (m *MockCouponRepository) GetUserCoupon(id uuid.UUID) *coupon.UserCoupon {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userCoupons[id]
}

func (m *MockCouponRepository) GetByID(ctx context.Context, id uuid.UUID) (*coupon.Coupon, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok {
		return nil, domainErrors.ErrCouponNotFound
	}
	return c, nil
}

func (m *MockCouponRepository) IncrementIssued(ctx context.Context, id uuid.UUID) error {
	if m.IncrementIssuedFunc != nil {
		return m.IncrementIssuedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coupons[id]
	if !ok {
		return domainErrors.ErrCouponNotFound
	}
	if c.IssuedCount >= c.TotalCount {
		return domainErrors.ErrCouponExhausted
	}
	c.IssuedCount++
	return nil
}

func (m *MockCouponRepository) CreateUserCoupon(ctx context.Context, uc *coupon.UserCoupon) error {
	if m.CreateUserCouponFunc != nil {
		return m.CreateUserCouponFunc(ctx, uc)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userCoupons[uc.ID] = uc
	return nil
}

func (m *MockCouponRepository) GetUserCouponByID(ctx context.Context, id uuid.UUID) (*coupon.UserCoupon, error) {
	if m.GetUserCouponByIDFunc != nil {
		return m.GetUserCouponByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	uc, ok := m.userCoupons[id]
	if !ok {
		return nil, domainErrors.ErrCouponNotIssued
	}
	return uc, nil
}

func (m *MockCouponRepository) GetUserCouponByUser(ctx context.Context, couponID, userID uuid.UUID) (*coupon.UserCoupon, error) {
	if m.GetUserCouponByUserFunc != nil {
		return m.GetUserCouponByUserFunc(ctx, couponID, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, uc := range m.userCoupons {
		if uc.CouponID == couponID && uc.UserID == userID {
			return uc, nil
		}
	}
	return nil, domainErrors.ErrCouponNotIssued
}

func (m *MockCouponRepository) MarkUsed(ctx context.Context, id, orderID uuid.UUID) error {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, id, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	uc, ok := m.userCoupons[id]
	if !ok {
		return domainErrors.ErrCouponNotIssued
	}
	if uc.Status == coupon.UserCouponUsed {
		if uc.UsedOrderID != nil && *uc.UsedOrderID == orderID {
			return nil
		}
		return domainErrors.ErrCouponAlreadyUsed
	}
	uc.Status = coupon.UserCouponUsed
	uc.UsedOrderID = &orderID
	return nil
}

func (m *MockCouponRepository) RestoreByOrder(ctx context.Context, orderID uuid.UUID) error {
	if m.RestoreByOrderFunc != nil {
		return m.RestoreByOrderFunc(ctx, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, uc := range m.userCoupons {
		if uc.UsedOrderID != nil && *uc.UsedOrderID == orderID {
			uc.Status = coupon.UserCouponUnused
			uc.UsedOrderID = nil
		}
	}
	return nil
}

// --- Queue Repository Mock ---

// MockQueueRepository is a mock implementation of queue.Repository.
type MockQueueRepository struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]*queue.Entry
	counters map[uuid.UUID]int64

	NextQueueNumberFunc        func(ctx context.Context, couponID uuid.UUID) (int64, error)
	CreateFunc                 func(ctx context.Context, e *queue.Entry) error
	GetByCouponAndUserFunc     func(ctx context.Context, couponID, userID uuid.UUID) (*queue.Entry, error)
	ClaimWaitingFunc           func(ctx context.Context, couponID uuid.UUID, limit int) ([]*queue.Entry, error)
	UpdateFunc                 func(ctx context.Context, e *queue.Entry) error
	CountWaitingBeforeFunc     func(ctx context.Context, couponID uuid.UUID, queueNumber int64) (int64, error)
	ListCouponsWithWaitingFunc func(ctx context.Context, limit int) ([]uuid.UUID, error)
	CountByStatusFunc          func(ctx context.Context, couponID uuid.UUID, status queue.Status) (int64, error)
}

func NewMockQueueRepository() *MockQueueRepository {
	return &MockQueueRepository{
		entries:  make(map[uuid.UUID]*queue.Entry),
		counters: make(map[uuid.UUID]int64),
	}
}

// AddEntry pre-populates the mock with a queue entry.
func (m *MockQueueRepository) AddEntry(e *queue.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e
}

// GetEntry returns the stored entry (test helper, no context needed).
func (m *MockQueueRepository) GetEntry(id uuid.UUID) *queue.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[id]
}

func (m *MockQueueRepository) NextQueueNumber(ctx context.Context, couponID uuid.UUID) (int64, error) {
	if m.NextQueueNumberFunc != nil {
		return m.NextQueueNumberFunc(ctx, couponID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[couponID]++
	return m.counters[couponID], nil
}

func (m *MockQueueRepository) Create(ctx context.Context, e *queue.Entry) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entries {
		if existing.CouponID == e.CouponID && existing.UserID == e.UserID {
			return domainErrors.ErrAlreadyInQueue
		}
	}
	m.entries[e.ID] = e
	return nil
}

func (m *MockQueueRepository) GetByCouponAndUser(ctx context.Context, couponID, userID uuid.UUID) (*queue.Entry, error) {
	if m.GetByCouponAndUserFunc != nil {
		return m.GetByCouponAndUserFunc(ctx, couponID, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.CouponID == couponID && e.UserID == userID {
			return e, nil
		}
	}
	return nil, domainErrors.ErrQueueEntryNotFound
}

func (m *MockQueueRepository) ClaimWaiting(ctx context.Context, couponID uuid.UUID, limit int) ([]*queue.Entry, error) {
	if m.ClaimWaitingFunc != nil {
		return m.ClaimWaitingFunc(ctx, couponID, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var waiting []*queue.Entry
	for _, e := range m.entries {
		if e.CouponID == couponID && e.Status == queue.StatusWaiting {
			waiting = append(waiting, e)
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		return waiting[i].QueueNumber < waiting[j].QueueNumber
	})
	if limit > 0 && len(waiting) > limit {
		waiting = waiting[:limit]
	}
	for _, e := range waiting {
		e.Status = queue.StatusProcessing
	}
	return waiting, nil
}

func (m *MockQueueRepository) Update(ctx context.Context, e *queue.Entry) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e
	return nil
}

func (m *MockQueueRepository) CountWaitingBefore(ctx context.Context, couponID uuid.UUID, queueNumber int64) (int64, error) {
	if m.CountWaitingBeforeFunc != nil {
		return m.CountWaitingBeforeFunc(ctx, couponID, queueNumber)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, e := range m.entries {
		if e.CouponID == couponID && e.Status == queue.StatusWaiting && e.QueueNumber < queueNumber {
			count++
		}
	}
	return count, nil
}

func (m *MockQueueRepository) ListCouponsWithWaiting(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if m.ListCouponsWithWaitingFunc != nil {
		return m.ListCouponsWithWaitingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var result []uuid.UUID
	for _, e := range m.entries {
		if e.Status == queue.StatusWaiting && !seen[e.CouponID] {
			seen[e.CouponID] = true
			result = append(result, e.CouponID)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockQueueRepository) CountByStatus(ctx context.Context, couponID uuid.UUID, status queue.Status) (int64, error) {
	if m.CountByStatusFunc != nil {
		return m.CountByStatusFunc(ctx, couponID, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, e := range m.entries {
		if e.CouponID == couponID && e.Status == status {
			count++
		}
	}
	return count, nil
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is a mock implementation of outbox.Repository. Appended
// records are kept in insertion order so tests can assert on emitted events.
type MockOutboxRepository struct {
	mu      sync.Mutex
	records []*outbox.Record

	AppendFunc            func(ctx context.Context, rec *outbox.Record) error
	ClaimPendingFunc      func(ctx context.Context, limit int) ([]*outbox.Record, error)
	MarkSuccessFunc       func(ctx context.Context, id uuid.UUID) error
	MarkAttemptFailedFunc func(ctx context.Context, id uuid.UUID, reason string) error
	RequeueFunc           func(ctx context.Context, id uuid.UUID) error
	CountByStatusFunc     func(ctx context.Context, status outbox.Status) (int64, error)
}

func NewMockOutboxRepository() *MockOutboxRepository {
	return &MockOutboxRepository{}
}

// Appended returns the records appended so far (test helper, no context needed).
func (m *MockOutboxRepository) Appended() []*outbox.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*outbox.Record(nil), m.records...)
}

// AppendedTypes returns the event types appended so far, in order.
func (m *MockOutboxRepository) AppendedTypes() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]event.Type, len(m.records))
	for i, rec := range m.records {
		types[i] = rec.EventType
	}
	return types
}

func (m *MockOutboxRepository) Append(ctx context.Context, rec *outbox.Record) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, rec)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *MockOutboxRepository) ClaimPending(ctx context.Context, limit int) ([]*outbox.Record, error) {
	if m.ClaimPendingFunc != nil {
		return m.ClaimPendingFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []*outbox.Record
	for _, rec := range m.records {
		if rec.Status == outbox.StatusPending {
			rec.Status = outbox.StatusProcessing
			claimed = append(claimed, rec)
			if limit > 0 && len(claimed) >= limit {
				break
			}
		}
	}
	sort.SliceStable(claimed, func(i, j int) bool {
		if claimed[i].AggregateID != claimed[j].AggregateID {
			return claimed[i].AggregateID < claimed[j].AggregateID
		}
		return claimed[i].CreatedAt.Before(claimed[j].CreatedAt)
	})
	return claimed, nil
}

func (m *MockOutboxRepository) MarkSuccess(ctx context.Context, id uuid.UUID) error {
	if m.MarkSuccessFunc != nil {
		return m.MarkSuccessFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ID == id {
			rec.Status = outbox.StatusSuccess
		}
	}
	return nil
}

func (m *MockOutboxRepository) MarkAttemptFailed(ctx context.Context, id uuid.UUID, reason string) error {
	if m.MarkAttemptFailedFunc != nil {
		return m.MarkAttemptFailedFunc(ctx, id, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ID == id {
			rec.RetryCount++
			rec.FailedReason = &reason
			if rec.RetryCount >= rec.MaxRetries {
				rec.Status = outbox.StatusFailed
			} else {
				rec.Status = outbox.StatusPending
			}
		}
	}
	return nil
}

func (m *MockOutboxRepository) Requeue(ctx context.Context, id uuid.UUID) error {
	if m.RequeueFunc != nil {
		return m.RequeueFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ID == id && rec.Status == outbox.StatusProcessing {
			rec.Status = outbox.StatusPending
		}
	}
	return nil
}

func (m *MockOutboxRepository) CountByStatus(ctx context.Context, status outbox.Status) (int64, error) {
	if m.CountByStatusFunc != nil {
		return m.CountByStatusFunc(ctx, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, rec := range m.records {
		if rec.Status == status {
			count++
		}
	}
	return count, nil
}

// --- Transaction Manager Mock ---

// MockTransactionManager is a mock implementation of TransactionManager.
type MockTransactionManager struct {
	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// --- Processed Marker Mock ---

type markerKey struct {
	group   string
	eventID uuid.UUID
}

// MockProcessedMarker is a mock implementation of the consumer idempotency
// marker. The fallback remembers marked events, so a second MarkProcessed for
// the same (group, event) reports not-fresh like the real table does.
type MockProcessedMarker struct {
	mu     sync.Mutex
	marked map[markerKey]bool

	MarkProcessedFunc func(ctx context.Context, group string, eventID uuid.UUID) (bool, error)
}

func NewMockProcessedMarker() *MockProcessedMarker {
	return &MockProcessedMarker{marked: make(map[markerKey]bool)}
}

func (m *MockProcessedMarker) MarkProcessed(ctx context.Context, group string, eventID uuid.UUID) (bool, error) {
	if m.MarkProcessedFunc != nil {
		return m.MarkProcessedFunc(ctx, group, eventID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := markerKey{group: group, eventID: eventID}
	if m.marked[key] {
		return false, nil
	}
	m.marked[key] = true
	return true, nil
}

// --- Publisher Mock ---

// MockPublisher is a mock implementation of the relay's Publisher.
type MockPublisher struct {
	mu        sync.Mutex
	published []event.Envelope

	PublishEnvelopeFunc func(ctx context.Context, env event.Envelope) error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Published returns the envelopes published so far (test helper).
func (m *MockPublisher) Published() []event.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Envelope(nil), m.published...)
}

func (m *MockPublisher) PublishEnvelope(ctx context.Context, env event.Envelope) error {
	if m.PublishEnvelopeFunc != nil {
		return m.PublishEnvelopeFunc(ctx, env)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, env)
	return nil
}
