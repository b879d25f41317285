package projection

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/wallet"
)

// WalletRead is the denormalized Wallet read model row.
type WalletRead struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"userId"`
	Balance   float64    `db:"balance" json:"balance"`
	Version   int        `db:"version" json:"version"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

// WalletReadSchema creates the wallet_reads table.
const WalletReadSchema = `
CREATE TABLE IF NOT EXISTS wallet_reads (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	balance NUMERIC NOT NULL,
	version INT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_wallet_reads_user_id ON wallet_reads(user_id) WHERE deleted_at IS NULL;
`

// RegisterWalletHandlers wires the Wallet aggregate's events into e.
func RegisterWalletHandlers(e *Engine) {
	e.Register(wallet.EventCreated, handleWalletCreated)
	e.Register(wallet.EventBalanceChanged, handleWalletBalance(func(p wallet.BalanceChanged) float64 { return p.NewBalance }))
	e.Register(wallet.EventPaymentSuccess, handleWalletPaymentSuccess)
	e.Register(wallet.EventLateReturnApplied, handleWalletLateReturnApplied)
	e.Register(wallet.EventDeleted, handleWalletDeleted)
}

func handleWalletCreated(ctx context.Context, db *sqlx.DB, ev event.Envelope) error {
	var p wallet.Created
	if err := ev.Decode(&p); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "decode WalletCreated")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO wallet_reads (id, user_id, balance, version, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, p.UserID, p.InitialBalance, ev.Version, ev.Timestamp)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "insert wallet_reads")
	}
	return nil
}

func handleWalletBalance(extract func(wallet.BalanceChanged) float64) EventHandler {
	return func(ctx context.Context, db *sqlx.DB, ev event.Envelope) error {
		var p wallet.BalanceChanged
		if err := ev.Decode(&p); err != nil {
			return apperr.Wrap(apperr.KindDatabaseError, err, "decode WalletBalanceChanged")
		}
		query, args := buildVersionGatedUpdate("wallet_reads", ev.AggregateID.String(), ev.Version, map[string]interface{}{
			"balance": extract(p),
		}, "updated_at", ev.Timestamp)
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			return apperr.Wrap(apperr.KindDatabaseError, err, "update wallet_reads balance")
		}
		return nil
	}
}

func handleWalletPaymentSuccess(ctx context.Context, db *sqlx.DB, ev event.Envelope) error {
	var p wallet.PaymentSuccess
	if err := ev.Decode(&p); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "decode WalletPaymentSuccess")
	}
	query, args := buildVersionGatedUpdate("wallet_reads", ev.AggregateID.String(), ev.Version, map[string]interface{}{
		"balance": p.NewBalance,
	}, "updated_at", ev.Timestamp)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "update wallet_reads after payment")
	}
	return nil
}

func handleWalletLateReturnApplied(ctx context.Context, db *sqlx.DB, ev event.Envelope) error {
	var p wallet.LateReturnApplied
	if err := ev.Decode(&p); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "decode WalletLateReturnApplied")
	}
	query, args := buildVersionGatedUpdate("wallet_reads", ev.AggregateID.String(), ev.Version, map[string]interface{}{
		"balance": p.NewBalance,
	}, "updated_at", ev.Timestamp)
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "update wallet_reads after late return")
	}
	return nil
}

func handleWalletDeleted(ctx context.Context, db *sqlx.DB, ev event.Envelope) error {
	var p wallet.Deleted
	if err := ev.Decode(&p); err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "decode WalletDeleted")
	}
	_, err := db.ExecContext(ctx, `
		UPDATE wallet_reads SET deleted_at = $1, version = $2
		WHERE id = $3 AND version < $2
	`, p.DeletedAt, ev.Version, ev.AggregateID)
	if err != nil {
		return apperr.Wrap(apperr.KindDatabaseError, err, "soft-delete wallet_reads")
	}
	return nil
}
