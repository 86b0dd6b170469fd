package transactions

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/openrentals/core/internal/database"
	"github.com/openrentals/core/internal/domain"
)

// NumberAllocator issues transaction numbers of the form
// {PREFIX}-{YYYY}-{NNNNN}, with NNNNN a per-(type, year) counter starting at
// 00001. The counter row is the serialization point: the upsert takes the
// row lock, so concurrent allocators are totally ordered and numbers have no
// duplicates.
type NumberAllocator struct {
	log zerolog.Logger
}

// NewNumberAllocator creates a transaction-number allocator.
func NewNumberAllocator(log zerolog.Logger) *NumberAllocator {
	return &NumberAllocator{log: log.With().Str("repo", "transaction_number").Logger()}
}

// NextIn issues the next number for (type, year) inside the caller's
// transaction. The number becomes durable only when that transaction
// commits; a rollback leaves a gap, which is acceptable (gaps also appear
// when transactions are deleted).
func (a *NumberAllocator) NextIn(ctx context.Context, q database.Querier, txType domain.TransactionType, year int) (string, error) {
	var issued int64
	err := sqlx.GetContext(ctx, q, &issued, `
		INSERT INTO transaction_number_sequences (transaction_type, year, next_number)
		VALUES ($1, $2, 2)
		ON CONFLICT (transaction_type, year)
		DO UPDATE SET next_number = transaction_number_sequences.next_number + 1
		RETURNING next_number - 1`,
		txType, year)
	if err != nil {
		return "", &domain.DatabaseError{Op: "transaction_number.next", Err: err}
	}
	return FormatNumber(txType, year, issued), nil
}

// FormatNumber renders one transaction number without touching the counter.
func FormatNumber(txType domain.TransactionType, year int, n int64) string {
	return fmt.Sprintf("%s-%04d-%05d", txType.NumberPrefix(), year, n)
}
