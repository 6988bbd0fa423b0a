package domain

import "context"

// Tx is an opaque transaction handle. Repository implementations assert it
// back to their concrete transaction type.
type Tx interface{}

// TxRunner runs fn inside a single database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}
