package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
)

// ReceiptStore defines the interface for payment receipt object storage
type ReceiptStore interface {
	// Upload stores data under objectPath and returns the stored object path
	Upload(ctx context.Context, objectPath string, data io.Reader, contentType string, size int64) (string, error)
	Delete(ctx context.Context, objectPath string) error
	GeneratePresignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error)
}

// ReceiptObjectPath builds a unique object key for a payment receipt:
// receipts/{memberID}/{paymentID}/{uuid}.jpg
func ReceiptObjectPath(memberID, paymentID int32) string {
	return path.Join("receipts", fmt.Sprintf("%d", memberID), fmt.Sprintf("%d", paymentID), uuid.New().String()+".jpg")
}
