package testutil

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/dafibh/cooplend/cooplend-backend/internal/websocket"
	"github.com/shopspring/decimal"
)

// MockTxRunner runs fn directly with a nil transaction handle
type MockTxRunner struct {
	Calls int
	Err   error
}

// RunInTx implements domain.TxRunner
func (m *MockTxRunner) RunInTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	m.Calls++
	if m.Err != nil {
		return m.Err
	}
	return fn(nil)
}

// MockMemberRepository is a mock implementation of domain.MemberRepository
type MockMemberRepository struct {
	Members   map[int32]*domain.Member
	ByAuth0ID map[string]*domain.Member
	NextID    int32
	CreateFn  func(auth0ID, email string, name *string) (*domain.Member, bool, error)
}

// NewMockMemberRepository creates a new MockMemberRepository
func NewMockMemberRepository() *MockMemberRepository {
	return &MockMemberRepository{
		Members:   make(map[int32]*domain.Member),
		ByAuth0ID: make(map[string]*domain.Member),
		NextID:    1,
	}
}

// GetByID retrieves a member by ID
func (m *MockMemberRepository) GetByID(ctx context.Context, id int32) (*domain.Member, error) {
	if member, ok := m.Members[id]; ok {
		return member, nil
	}
	return nil, domain.ErrMemberNotFound
}

// GetByAuth0ID retrieves a member by Auth0 ID
func (m *MockMemberRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.Member, error) {
	if member, ok := m.ByAuth0ID[auth0ID]; ok {
		return member, nil
	}
	return nil, domain.ErrMemberNotFound
}

// CreateOrGetByAuth0ID creates or retrieves a member by Auth0 ID
func (m *MockMemberRepository) CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name *string) (*domain.Member, bool, error) {
	if m.CreateFn != nil {
		return m.CreateFn(auth0ID, email, name)
	}
	if member, ok := m.ByAuth0ID[auth0ID]; ok {
		return member, false, nil
	}
	member := &domain.Member{
		ID:        m.NextID,
		Auth0ID:   auth0ID,
		Email:     email,
		Name:      name,
		Role:      domain.MemberRoleMember,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.NextID++
	m.AddMember(member)
	return member, true, nil
}

// AddMember adds a member to the mock repository (helper for tests)
func (m *MockMemberRepository) AddMember(member *domain.Member) {
	m.Members[member.ID] = member
	m.ByAuth0ID[member.Auth0ID] = member
	if member.ID >= m.NextID {
		m.NextID = member.ID + 1
	}
}

// MockLoanRepository is a mock implementation of domain.LoanRepository.
// Loans are stored and returned by value so callers cannot mutate the store.
type MockLoanRepository struct {
	Loans             map[int32]*domain.Loan
	NextID            int32
	CreateFn          func(loan *domain.Loan) (*domain.Loan, error)
	UpdateBalanceFn   func(id int32, expected, balance decimal.Decimal, status domain.LoanStatus) (*domain.Loan, error)
	UpdateStatusCalls int
	BalanceUpdates    int
}

// NewMockLoanRepository creates a new MockLoanRepository
func NewMockLoanRepository() *MockLoanRepository {
	return &MockLoanRepository{
		Loans:  make(map[int32]*domain.Loan),
		NextID: 1,
	}
}

func cloneLoan(l *domain.Loan) *domain.Loan {
	c := *l
	return &c
}

// Create creates a new loan
func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) (*domain.Loan, error) {
	if m.CreateFn != nil {
		return m.CreateFn(loan)
	}
	stored := cloneLoan(loan)
	stored.ID = m.NextID
	m.NextID++
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.Loans[stored.ID] = stored
	return cloneLoan(stored), nil
}

// GetByID retrieves a loan by ID
func (m *MockLoanRepository) GetByID(ctx context.Context, id int32) (*domain.Loan, error) {
	loan, ok := m.Loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	return cloneLoan(loan), nil
}

// GetByIDForUpdateTx retrieves a loan by ID (mock does not lock)
func (m *MockLoanRepository) GetByIDForUpdateTx(ctx context.Context, tx domain.Tx, id int32) (*domain.Loan, error) {
	return m.GetByID(ctx, id)
}

// ListByMember retrieves all loans of a member, newest first
func (m *MockLoanRepository) ListByMember(ctx context.Context, memberID int32) ([]*domain.Loan, error) {
	result := make([]*domain.Loan, 0)
	for _, loan := range m.Loans {
		if loan.MemberID == memberID {
			result = append(result, cloneLoan(loan))
		}
	}
	sortLoans(result)
	return result, nil
}

// ListByStatus retrieves all loans, optionally filtered by status
func (m *MockLoanRepository) ListByStatus(ctx context.Context, status *domain.LoanStatus) ([]*domain.Loan, error) {
	result := make([]*domain.Loan, 0)
	for _, loan := range m.Loans {
		if status == nil || loan.Status == *status {
			result = append(result, cloneLoan(loan))
		}
	}
	sortLoans(result)
	return result, nil
}

func sortLoans(loans []*domain.Loan) {
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID > loans[j].ID })
}

// UpdateStatusTx persists the decision fields of a loan
func (m *MockLoanRepository) UpdateStatusTx(ctx context.Context, tx domain.Tx, loan *domain.Loan) (*domain.Loan, error) {
	m.UpdateStatusCalls++
	stored, ok := m.Loans[loan.ID]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	stored.Status = loan.Status
	stored.ApprovedBy = loan.ApprovedBy
	stored.ApprovedAt = loan.ApprovedAt
	stored.RejectionReason = loan.RejectionReason
	stored.UpdatedAt = time.Now()
	return cloneLoan(stored), nil
}

// UpdateBalanceTx sets the balance if the stored one still equals expected
func (m *MockLoanRepository) UpdateBalanceTx(ctx context.Context, tx domain.Tx, id int32, expected, balance decimal.Decimal, status domain.LoanStatus) (*domain.Loan, error) {
	if m.UpdateBalanceFn != nil {
		return m.UpdateBalanceFn(id, expected, balance, status)
	}
	stored, ok := m.Loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	if !stored.RemainingBalance.Equal(expected) {
		return nil, domain.ErrBalanceChanged
	}
	m.BalanceUpdates++
	stored.RemainingBalance = balance
	stored.Status = status
	stored.UpdatedAt = time.Now()
	return cloneLoan(stored), nil
}

// AddLoan adds a loan to the mock repository (helper for tests)
func (m *MockLoanRepository) AddLoan(loan *domain.Loan) {
	m.Loans[loan.ID] = cloneLoan(loan)
	if loan.ID >= m.NextID {
		m.NextID = loan.ID + 1
	}
}

// MockPaymentRepository is a mock implementation of domain.PaymentRepository
type MockPaymentRepository struct {
	Payments        map[int32]*domain.Payment
	NextID          int32
	AttachReceiptFn func(id int32, receiptPath string) (*domain.Payment, error)
}

// NewMockPaymentRepository creates a new MockPaymentRepository
func NewMockPaymentRepository() *MockPaymentRepository {
	return &MockPaymentRepository{
		Payments: make(map[int32]*domain.Payment),
		NextID:   1,
	}
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	return &c
}

// CreateTx creates a new payment
func (m *MockPaymentRepository) CreateTx(ctx context.Context, tx domain.Tx, payment *domain.Payment) (*domain.Payment, error) {
	stored := clonePayment(payment)
	stored.ID = m.NextID
	m.NextID++
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.Payments[stored.ID] = stored
	return clonePayment(stored), nil
}

// GetByID retrieves a payment by ID
func (m *MockPaymentRepository) GetByID(ctx context.Context, id int32) (*domain.Payment, error) {
	payment, ok := m.Payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return clonePayment(payment), nil
}

// GetByIDForUpdateTx retrieves a payment by ID (mock does not lock)
func (m *MockPaymentRepository) GetByIDForUpdateTx(ctx context.Context, tx domain.Tx, id int32) (*domain.Payment, error) {
	return m.GetByID(ctx, id)
}

// ListByLoan retrieves all payments of a loan, oldest first
func (m *MockPaymentRepository) ListByLoan(ctx context.Context, loanID int32) ([]*domain.Payment, error) {
	return m.filter(func(p *domain.Payment) bool { return p.LoanID == loanID }), nil
}

// ListPending retrieves all pending payments, oldest first
func (m *MockPaymentRepository) ListPending(ctx context.Context) ([]*domain.Payment, error) {
	return m.filter(func(p *domain.Payment) bool { return p.Status == domain.PaymentStatusPending }), nil
}

func (m *MockPaymentRepository) filter(keep func(p *domain.Payment) bool) []*domain.Payment {
	result := make([]*domain.Payment, 0)
	for _, p := range m.Payments {
		if keep(p) {
			result = append(result, clonePayment(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// UpdateStatusTx persists the verification fields of a payment
func (m *MockPaymentRepository) UpdateStatusTx(ctx context.Context, tx domain.Tx, payment *domain.Payment) (*domain.Payment, error) {
	stored, ok := m.Payments[payment.ID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	stored.Status = payment.Status
	stored.VerifiedBy = payment.VerifiedBy
	stored.VerifiedAt = payment.VerifiedAt
	stored.UpdatedAt = time.Now()
	return clonePayment(stored), nil
}

// AttachReceipt sets the receipt path of a pending payment
func (m *MockPaymentRepository) AttachReceipt(ctx context.Context, id int32, receiptPath string) (*domain.Payment, error) {
	if m.AttachReceiptFn != nil {
		return m.AttachReceiptFn(id, receiptPath)
	}
	stored, ok := m.Payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	if stored.Status != domain.PaymentStatusPending {
		return nil, domain.ErrReceiptNotAllowed
	}
	stored.ReceiptPath = &receiptPath
	return clonePayment(stored), nil
}

// CountVerifiedByLoan counts verified payments of a loan
func (m *MockPaymentRepository) CountVerifiedByLoan(ctx context.Context, loanID int32) (int32, error) {
	var n int32
	for _, p := range m.Payments {
		if p.LoanID == loanID && p.Status == domain.PaymentStatusVerified {
			n++
		}
	}
	return n, nil
}

// AddPayment adds a payment to the mock repository (helper for tests)
func (m *MockPaymentRepository) AddPayment(payment *domain.Payment) {
	m.Payments[payment.ID] = clonePayment(payment)
	if payment.ID >= m.NextID {
		m.NextID = payment.ID + 1
	}
}

// MockContributionRepository is a mock implementation of domain.ContributionRepository
type MockContributionRepository struct {
	Contributions map[int32]*domain.Contribution
	NextID        int32
}

// NewMockContributionRepository creates a new MockContributionRepository
func NewMockContributionRepository() *MockContributionRepository {
	return &MockContributionRepository{
		Contributions: make(map[int32]*domain.Contribution),
		NextID:        1,
	}
}

func cloneContribution(c *domain.Contribution) *domain.Contribution {
	cc := *c
	return &cc
}

// Create creates a new contribution
func (m *MockContributionRepository) Create(ctx context.Context, contribution *domain.Contribution) (*domain.Contribution, error) {
	stored := cloneContribution(contribution)
	stored.ID = m.NextID
	m.NextID++
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.Contributions[stored.ID] = stored
	return cloneContribution(stored), nil
}

// GetByID retrieves a contribution by ID
func (m *MockContributionRepository) GetByID(ctx context.Context, id int32) (*domain.Contribution, error) {
	c, ok := m.Contributions[id]
	if !ok {
		return nil, domain.ErrContributionNotFound
	}
	return cloneContribution(c), nil
}

// ListByMember retrieves all contributions of a member, newest first
func (m *MockContributionRepository) ListByMember(ctx context.Context, memberID int32) ([]*domain.Contribution, error) {
	result := make([]*domain.Contribution, 0)
	for _, c := range m.Contributions {
		if c.MemberID == memberID {
			result = append(result, cloneContribution(c))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

// ListPending retrieves all pending contributions, oldest first
func (m *MockContributionRepository) ListPending(ctx context.Context) ([]*domain.Contribution, error) {
	result := make([]*domain.Contribution, 0)
	for _, c := range m.Contributions {
		if c.Status == domain.ContributionStatusPending {
			result = append(result, cloneContribution(c))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// DecidePending moves a pending contribution to its decided status
func (m *MockContributionRepository) DecidePending(ctx context.Context, contribution *domain.Contribution) (*domain.Contribution, error) {
	stored, ok := m.Contributions[contribution.ID]
	if !ok {
		return nil, domain.ErrContributionNotFound
	}
	if stored.Status != domain.ContributionStatusPending {
		return nil, domain.ErrContributionAlreadyProcessed
	}
	stored.Status = contribution.Status
	stored.DecidedBy = contribution.DecidedBy
	stored.DecidedAt = contribution.DecidedAt
	stored.UpdatedAt = time.Now()
	return cloneContribution(stored), nil
}

// SumConfirmedByMember sums confirmed contributions of a member
func (m *MockContributionRepository) SumConfirmedByMember(ctx context.Context, memberID int32) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, c := range m.Contributions {
		if c.MemberID == memberID && c.Status == domain.ContributionStatusConfirmed {
			total = total.Add(c.Amount)
		}
	}
	return total, nil
}

// AddContribution adds a contribution to the mock repository (helper for tests)
func (m *MockContributionRepository) AddContribution(contribution *domain.Contribution) {
	m.Contributions[contribution.ID] = cloneContribution(contribution)
	if contribution.ID >= m.NextID {
		m.NextID = contribution.ID + 1
	}
}

// MockNotificationRepository is a mock implementation of domain.NotificationRepository
// MockNotificationRepository is a mock implementation of domain.NotificationRepository
type MockNotificationRepository struct {
	Notifications map[int32]*domain.Notification
	NextID        int32
	CreateErr     error
}

// NewMockNotificationRepository creates a new MockNotificationRepository
func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		Notifications: make(map[int32]*domain.Notification),
		NextID:        1,
	}
}

// Create stores a notification
func (m *MockNotificationRepository) Create(ctx context.Context, notification *domain.Notification) (*domain.Notification, error) {
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	stored := *notification
	stored.ID = m.NextID
	m.NextID++
	stored.CreatedAt = time.Now()
	m.Notifications[stored.ID] = &stored
	result := stored
	return &result, nil
}

// ListByMember retrieves a member's notifications, newest first
func (m *MockNotificationRepository) ListByMember(ctx context.Context, memberID int32, unreadOnly bool) ([]*domain.Notification, error) {
	result := make([]*domain.Notification, 0)
	for _, n := range m.Notifications {
		if n.MemberID != memberID || (unreadOnly && n.Read) {
			continue
		}
		c := *n
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

// MarkRead marks a member's notification as read
func (m *MockNotificationRepository) MarkRead(ctx context.Context, memberID int32, id int32) (*domain.Notification, error) {
	n, ok := m.Notifications[id]
	if !ok || n.MemberID != memberID {
		return nil, domain.ErrNotificationNotFound
	}
	n.Read = true
	c := *n
	return &c, nil
}

// MockSettingsRepository is a mock implementation of domain.SettingsRepository
type MockSettingsRepository struct {
	Values map[string]string
	Err    error
}

// NewMockSettingsRepository creates a new MockSettingsRepository
func NewMockSettingsRepository() *MockSettingsRepository {
	return &MockSettingsRepository{Values: make(map[string]string)}
}

// GetAll returns a copy of all settings
func (m *MockSettingsRepository) GetAll(ctx context.Context) (map[string]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	result := make(map[string]string, len(m.Values))
	for k, v := range m.Values {
		result[k] = v
	}
	return result, nil
}

// RecordedNotification is a notification captured by RecordingNotifier
type RecordedNotification struct {
	MemberID int32
	Kind     domain.NotificationKind
	Title    string
	Body     string
	LoanID   *int32
}

// RecordingNotifier is a domain.NotificationSink that keeps what it is sent
type RecordingNotifier struct {
	mu            sync.Mutex
	Notifications []RecordedNotification
}

// Notify implements domain.NotificationSink
func (r *RecordingNotifier) Notify(ctx context.Context, memberID int32, kind domain.NotificationKind, title, body string, loanID *int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notifications = append(r.Notifications, RecordedNotification{
		MemberID: memberID,
		Kind:     kind,
		Title:    title,
		Body:     body,
		LoanID:   loanID,
	})
}

// Kinds returns the kinds of all recorded notifications in order
func (r *RecordingNotifier) Kinds() []domain.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]domain.NotificationKind, len(r.Notifications))
	for i, n := range r.Notifications {
		kinds[i] = n.Kind
	}
	return kinds
}

// PublishedEvent is an event captured by RecordingPublisher
type PublishedEvent struct {
	MemberID int32
	Event    websocket.Event
}

// RecordingPublisher is a websocket.EventPublisher that keeps what it is sent
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

// Publish implements websocket.EventPublisher
func (r *RecordingPublisher) Publish(memberID int32, event websocket.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, PublishedEvent{MemberID: memberID, Event: event})
}

// Types returns the type of every published event in order
func (r *RecordingPublisher) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.Events))
	for i, e := range r.Events {
		types[i] = e.Event.Type
	}
	return types
}

// MockReceiptStore is an in-memory storage.ReceiptStore
type MockReceiptStore struct {
	Objects   map[string][]byte
	Deleted   []string
	UploadErr error
}

// NewMockReceiptStore creates a new MockReceiptStore
func NewMockReceiptStore() *MockReceiptStore {
	return &MockReceiptStore{Objects: make(map[string][]byte)}
}

// Upload stores the object in memory
func (m *MockReceiptStore) Upload(ctx context.Context, objectPath string, data io.Reader, contentType string, size int64) (string, error) {
	if m.UploadErr != nil {
		return "", m.UploadErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", err
	}
	m.Objects[objectPath] = buf.Bytes()
	return objectPath, nil
}

// Delete removes the object
func (m *MockReceiptStore) Delete(ctx context.Context, objectPath string) error {
	delete(m.Objects, objectPath)
	m.Deleted = append(m.Deleted, objectPath)
	return nil
}

// GeneratePresignedURL returns a fake URL embedding the object path
func (m *MockReceiptStore) GeneratePresignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	return "https://receipts.test/" + objectPath + "?expires=" + expiry.String(), nil
}
