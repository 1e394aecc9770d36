package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// Statements use explicit casts and text projections so the same SQL works
// with both the pgx and the database/sql transaction adapters.
const (
	sqlFindTransferByKey = `SELECT id::TEXT, transfer_type, region, booking_date::TEXT, created_at
FROM transfer WHERE idempotency_key = $1::UUID`

	sqlFindTransferItems = `SELECT account_id::TEXT, amount::TEXT, currency, running_balance::TEXT, coalesce(note, '')
FROM transfer_item WHERE transfer_id = $1::UUID ORDER BY account_id`

	sqlLockAccount = `SELECT balance::TEXT, currency, allow_negative, closed
FROM account WHERE id = $1::UUID FOR UPDATE`

	sqlUpdateBalance = `UPDATE account SET balance = $1::DECIMAL, updated_at = now()
WHERE id = $2::UUID AND closed = false AND currency = $3`

	sqlInsertTransfer = `INSERT INTO transfer (id, idempotency_key, transfer_type, region, booking_date, created_at)
VALUES ($1::UUID, $2::UUID, $3, $4, $5::DATE, $6)`

	sqlInsertTransferItem = `INSERT INTO transfer_item (transfer_id, account_id, amount, currency, running_balance, note)
VALUES ($1::UUID, $2::UUID, $3::DECIMAL, $4, $5::DECIMAL, $6)`

	sqlInsertOutbox = `INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload)
VALUES ($1::UUID, 'transfer', $2::UUID, $3, $4::JSONB)`

	sqlInsertAccount = `INSERT INTO account (id, region, name, balance, currency, allow_negative, metadata)
VALUES ($1::UUID, $2, $3, $4::DECIMAL, $5, $6, $7::JSONB)`

	sqlListAccounts = `SELECT id::TEXT, region, name, balance::TEXT, currency, allow_negative, closed, updated_at
FROM account WHERE region = $1 ORDER BY id OFFSET $2 LIMIT $3`

	sqlAccountBalance = `SELECT balance::TEXT, currency FROM account WHERE id = $1::UUID`

	sqlTotalBalance = `SELECT currency, sum(balance)::TEXT FROM account GROUP BY currency ORDER BY currency`

	sqlCountOutbox = `SELECT count(*) FROM outbox WHERE aggregate_type = 'transfer'`

	sqlCountTransfers = `SELECT count(*) FROM transfer`
)

const eventTransferCreated = "TransferCreated"

// lockedAccount is the authoritative state of an account read under lock.
type lockedAccount struct {
	balance       decimal.Decimal
	currency      string
	allowNegative bool
	closed        bool
}

func findTransferByKey(ctx context.Context, tx txretry.Tx, key uuid.UUID) (*Transfer, error) {
	rows, err := tx.Query(ctx, sqlFindTransferByKey, key.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var id, bookingDate string
	t := &Transfer{IdempotencyKey: key}
	if err := rows.Scan(&id, &t.Type, &t.Region, &bookingDate, &t.CreatedAt); err != nil {
		return nil, err
	}
	rows.Close()

	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse transfer id: %w", err)
	}
	if t.BookingDate, err = parseBookingDate(bookingDate); err != nil {
		return nil, err
	}
	if t.Items, err = findTransferItems(ctx, tx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

func findTransferItems(ctx context.Context, tx txretry.Tx, transferID uuid.UUID) ([]TransferItem, error) {
	rows, err := tx.Query(ctx, sqlFindTransferItems, transferID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TransferItem
	for rows.Next() {
		var accountID, amount, running string
		var item TransferItem
		if err := rows.Scan(&accountID, &amount, &item.Currency, &running, &item.Note); err != nil {
			return nil, err
		}
		if item.AccountID, err = uuid.Parse(accountID); err != nil {
			return nil, fmt.Errorf("parse account id: %w", err)
		}
		if item.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if item.RunningBalance, err = decimal.NewFromString(running); err != nil {
			return nil, fmt.Errorf("parse running balance: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func lockAccount(ctx context.Context, tx txretry.Tx, id uuid.UUID) (*lockedAccount, error) {
	rows, err := tx.Query(ctx, sqlLockAccount, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrNoSuchAccount, id)
	}
	var balance string
	a := &lockedAccount{}
	if err := rows.Scan(&balance, &a.currency, &a.allowNegative, &a.closed); err != nil {
		return nil, err
	}
	if a.balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance of %s: %w", id, err)
	}
	return a, rows.Err()
}

func updateBalance(ctx context.Context, tx txretry.Tx, id uuid.UUID, balance decimal.Decimal, currency string) error {
	n, err := tx.Exec(ctx, sqlUpdateBalance, balance.String(), id.String(), currency)
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("update balance of %s: expected 1 row, got %d", id, n)
	}
	return nil
}

func insertTransfer(ctx context.Context, tx txretry.Tx, t *Transfer) error {
	if _, err := tx.Exec(ctx, sqlInsertTransfer,
		t.ID.String(), t.IdempotencyKey.String(), t.Type, t.Region,
		t.BookingDate.Format(bookingDateLayout), t.CreatedAt); err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	for _, item := range t.Items {
		if _, err := tx.Exec(ctx, sqlInsertTransferItem,
			t.ID.String(), item.AccountID.String(), item.Amount.String(),
			item.Currency, item.RunningBalance.String(), item.Note); err != nil {
			return fmt.Errorf("insert transfer item: %w", err)
		}
	}
	return nil
}

func insertOutboxEvent(ctx context.Context, tx txretry.Tx, t *Transfer) error {
	event := TransferEvent{
		EventID:    uuid.New(),
		TransferID: t.ID,
		Type:       t.Type,
		Items:      t.Items,
		CreatedAt:  t.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal outbox event: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlInsertOutbox, event.EventID.String(), t.ID.String(),
		eventTransferCreated, string(payload)); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func parseBookingDate(s string) (time.Time, error) {
	d, err := time.Parse(bookingDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse booking date %q: %w", s, err)
	}
	return d, nil
}
