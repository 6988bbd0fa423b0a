package postgres

import (
	"context"
	"errors"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const notificationColumns = `id, member_id, kind, title, body, loan_id, read, created_at`

// NotificationRepository implements domain.NotificationRepository using PostgreSQL
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Create stores a notification
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (member_id, kind, title, body, loan_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+notificationColumns,
		n.MemberID, string(n.Kind), n.Title, n.Body, int32PtrToPgInt4(n.LoanID),
	)
	return scanNotification(row)
}

// ListByMember retrieves a member's notifications, newest first
func (r *NotificationRepository) ListByMember(ctx context.Context, memberID int32, unreadOnly bool) ([]*domain.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE member_id = $1 AND (NOT $2 OR read = FALSE)
		ORDER BY created_at DESC, id DESC
		LIMIT 200`,
		memberID, unreadOnly,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// MarkRead marks a notification read. Notifications of other members are
// reported as not found.
func (r *NotificationRepository) MarkRead(ctx context.Context, memberID int32, id int32) (*domain.Notification, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE id = $1 AND member_id = $2
		RETURNING `+notificationColumns,
		id, memberID,
	)
	return scanNotification(row)
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var (
		n      domain.Notification
		kind   string
		loanID pgtype.Int4
	)
	if err := row.Scan(&n.ID, &n.MemberID, &kind, &n.Title, &n.Body, &loanID, &n.Read, &n.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotificationNotFound
		}
		return nil, err
	}
	n.Kind = domain.NotificationKind(kind)
	n.LoanID = pgInt4ToInt32Ptr(loanID)
	return &n, nil
}
