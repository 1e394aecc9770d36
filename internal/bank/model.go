package bank

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Domain errors. None of them is transient, so the coordinators return them
// to the caller on the first occurrence.
var (
	ErrBadRequest      = errors.New("bad transfer request")
	ErrUnbalanced      = errors.New("unbalanced transfer")
	ErrNoSuchAccount   = errors.New("no such account")
	ErrNegativeBalance = errors.New("negative balance not allowed")
)

// Transfer types.
const (
	TypeBankTransfer = "BT"
	TypePayment      = "PAY"
)

// DefaultRegion is used when a request or account does not name a region.
const DefaultRegion = "default"

// Account is a single-currency ledger account.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	Region        string          `json:"region"`
	Name          string          `json:"name"`
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	AllowNegative bool            `json:"allow_negative"`
	Closed        bool            `json:"closed"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Money is an amount in a given currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

// Leg is one side of a transfer. Negative amounts debit the account,
// positive amounts credit it.
type Leg struct {
	AccountID uuid.UUID       `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Note      string          `json:"note,omitempty"`
}

// TransferRequest asks for a set of legs to be booked atomically.
// Submitting the same IdempotencyKey twice books the transfer once.
type TransferRequest struct {
	IdempotencyKey uuid.UUID `json:"idempotency_key"`
	Type           string    `json:"type"`
	Region         string    `json:"region"`
	BookingDate    time.Time `json:"booking_date"`
	Legs           []Leg     `json:"legs"`
}

// NewTransferRequest builds a two-leg transfer of amount from one account to
// another with a fresh idempotency key.
func NewTransferRequest(from, to uuid.UUID, amount decimal.Decimal, currency string) TransferRequest {
	return TransferRequest{
		IdempotencyKey: uuid.New(),
		Type:           TypeBankTransfer,
		Region:         DefaultRegion,
		BookingDate:    time.Now().UTC(),
		Legs: []Leg{
			{AccountID: from, Amount: amount.Neg(), Currency: currency, Note: "debit"},
			{AccountID: to, Amount: amount, Currency: currency, Note: "credit"},
		},
	}
}

// Transfer is a booked transfer.
type Transfer struct {
	ID             uuid.UUID      `json:"id"`
	IdempotencyKey uuid.UUID      `json:"idempotency_key"`
	Type           string         `json:"type"`
	Region         string         `json:"region"`
	BookingDate    time.Time      `json:"booking_date"`
	CreatedAt      time.Time      `json:"created_at"`
	Items          []TransferItem `json:"items"`

	// Duplicate is set when the transfer was booked by an earlier request
	// with the same idempotency key.
	Duplicate bool `json:"-"`
}

// TransferItem is one booked leg together with the account balance it was
// applied to.
type TransferItem struct {
	AccountID      uuid.UUID       `json:"account_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	RunningBalance decimal.Decimal `json:"running_balance"`
	Note           string          `json:"note,omitempty"`
}

// TransferEvent is the outbox payload written for every booked transfer.
type TransferEvent struct {
	EventID    uuid.UUID      `json:"event_id"`
	TransferID uuid.UUID      `json:"transfer_id"`
	Type       string         `json:"type"`
	Items      []TransferItem `json:"items"`
	CreatedAt  time.Time      `json:"created_at"`
}

const bookingDateLayout = "2006-01-02"

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

func unbalanced(currency string, sum decimal.Decimal) error {
	return fmt.Errorf("%w: currency [%s], amount sum [%s]", ErrUnbalanced, currency, sum.String())
}
