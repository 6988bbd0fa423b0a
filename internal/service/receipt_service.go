package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"
	"time"

	"github.com/dafibh/cooplend/cooplend-backend/internal/domain"
	"github.com/dafibh/cooplend/cooplend-backend/internal/repository/storage"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

const (
	MaxReceiptSize      = 5 * 1024 * 1024 // 5MB
	MinReceiptDimension = 50
	ReceiptMaxWidth     = 1600
	ReceiptJPEGQuality  = 85
	ReceiptURLExpiry    = 15 * time.Minute
)

var (
	ErrReceiptTooLarge      = domain.NewValidationError("receipt", "file too large. Maximum size is 5MB")
	ErrReceiptInvalidFormat = domain.NewValidationError("receipt", "invalid format. Supported: JPEG, PNG")
	ErrReceiptTooSmall      = domain.NewValidationError("receipt", "image too small. Minimum 50x50 pixels")
	ErrReceiptInvalidData   = domain.NewValidationError("receipt", "invalid image data")
	ErrReceiptMissing       = domain.NotFoundError{Entity: "receipt"}
	ErrReceiptStoreDisabled = errors.New("receipt storage not configured")
)

// AllowedReceiptExtensions lists the accepted upload file extensions
var AllowedReceiptExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// ReceiptService attaches proof-of-payment images to pending payments.
// Uploads are normalized to an upright JPEG no wider than ReceiptMaxWidth.
type ReceiptService struct {
	store       storage.ReceiptStore
	paymentRepo domain.PaymentRepository
}

// NewReceiptService creates a new ReceiptService. store may be nil when
// object storage is not configured; uploads then fail with ErrReceiptStoreDisabled.
func NewReceiptService(store storage.ReceiptStore, paymentRepo domain.PaymentRepository) *ReceiptService {
	return &ReceiptService{store: store, paymentRepo: paymentRepo}
}

// IsEnabled indicates whether receipt uploads are supported
func (s *ReceiptService) IsEnabled() bool {
	return s != nil && s.store != nil
}

// ValidateReceipt checks the size, extension and dimensions of an upload
func (s *ReceiptService) ValidateReceipt(data []byte, filename string) error {
	_, err := decodeReceipt(data, filename)
	return err
}

func decodeReceipt(data []byte, filename string) (image.Image, error) {
	if len(data) > MaxReceiptSize {
		return nil, ErrReceiptTooLarge
	}
	if !AllowedReceiptExtensions[strings.ToLower(filepath.Ext(filename))] {
		return nil, ErrReceiptInvalidFormat
	}

	// Phone photos carry EXIF orientation; bake it into the pixels
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, ErrReceiptInvalidData
	}

	bounds := img.Bounds()
	if bounds.Dx() < MinReceiptDimension || bounds.Dy() < MinReceiptDimension {
		return nil, ErrReceiptTooSmall
	}
	return img, nil
}

// AttachReceipt uploads a receipt for one of the member's own pending payments
func (s *ReceiptService) AttachReceipt(ctx context.Context, memberID, paymentID int32, data []byte, filename string) (*domain.Payment, error) {
	if !s.IsEnabled() {
		return nil, ErrReceiptStoreDisabled
	}

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.MemberID != memberID {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.Status != domain.PaymentStatusPending {
		return nil, domain.ErrReceiptNotAllowed
	}

	img, err := decodeReceipt(data, filename)
	if err != nil {
		return nil, err
	}
	if img.Bounds().Dx() > ReceiptMaxWidth {
		img = imaging.Resize(img, ReceiptMaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: ReceiptJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}

	objectPath, err := s.store.Upload(ctx, storage.ReceiptObjectPath(memberID, paymentID), bytes.NewReader(buf.Bytes()), "image/jpeg", int64(buf.Len()))
	if err != nil {
		return nil, err
	}

	updated, err := s.paymentRepo.AttachReceipt(ctx, paymentID, objectPath)
	if err != nil {
		s.deleteObject(ctx, objectPath)
		return nil, err
	}

	if payment.ReceiptPath != nil && *payment.ReceiptPath != objectPath {
		s.deleteObject(ctx, *payment.ReceiptPath)
	}

	log.Info().
		Int32("payment_id", paymentID).
		Int32("member_id", memberID).
		Int("bytes", buf.Len()).
		Msg("Receipt attached")

	return updated, nil
}

// ReceiptURL returns a short-lived download URL for a payment's receipt.
// Members may only read receipts of their own payments.
func (s *ReceiptService) ReceiptURL(ctx context.Context, memberID int32, isAdmin bool, paymentID int32) (string, error) {
	if !s.IsEnabled() {
		return "", ErrReceiptStoreDisabled
	}

	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if !isAdmin && payment.MemberID != memberID {
		return "", domain.ErrPaymentNotFound
	}
	if payment.ReceiptPath == nil {
		return "", ErrReceiptMissing
	}

	return s.store.GeneratePresignedURL(ctx, *payment.ReceiptPath, ReceiptURLExpiry)
}

func (s *ReceiptService) deleteObject(ctx context.Context, objectPath string) {
	if err := s.store.Delete(ctx, objectPath); err != nil {
		log.Warn().Err(err).Str("object_path", objectPath).Msg("Failed to delete receipt object")
	}
}
