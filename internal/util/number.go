package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Receipt number prefixes
const (
	ReceiptPrefixPayment      = "PAY"
	ReceiptPrefixContribution = "CON"
)

// LoanNumber builds the human-facing loan number from the submission time,
// the member id and a random suffix, e.g. LN-20261017143005-0042-9F3A1C2B
func LoanNumber(memberID int32, at time.Time) string {
	return fmt.Sprintf("LN-%s-%04d-%s", at.UTC().Format("20060102150405"), memberID, randomSuffix())
}

// ReceiptNumber builds a unique receipt number from a prefix, the date and a
// random suffix, e.g. PAY-20261017-9F3A1C2B
func ReceiptNumber(prefix string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102"), randomSuffix())
}

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}
