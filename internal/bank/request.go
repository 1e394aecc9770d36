package bank

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Validate checks the request without touching the database.
func (r TransferRequest) Validate() error {
	_, err := r.Coalesce()
	return err
}

// Coalesce merges legs that refer to the same account and verifies that the
// legs of every currency sum to zero. The returned legs are ordered by
// account ID so concurrent transfers lock accounts in the same order.
// When an account appears more than once, the note of its last leg wins.
func (r TransferRequest) Coalesce() ([]Leg, error) {
	if r.IdempotencyKey == uuid.Nil {
		return nil, fmt.Errorf("%w: missing idempotency key", ErrBadRequest)
	}
	if len(r.Legs) < 2 {
		return nil, fmt.Errorf("%w: must have at least two legs", ErrBadRequest)
	}

	sums := make(map[string]decimal.Decimal)
	byAccount := make(map[uuid.UUID]*Leg)
	for i, leg := range r.Legs {
		if leg.AccountID == uuid.Nil {
			return nil, fmt.Errorf("%w: leg %d has no account", ErrBadRequest, i)
		}
		currency := normalizeCurrency(leg.Currency)
		if len(currency) != 3 {
			return nil, fmt.Errorf("%w: leg %d has invalid currency %q", ErrBadRequest, i, leg.Currency)
		}
		sums[currency] = sums[currency].Add(leg.Amount)

		merged, ok := byAccount[leg.AccountID]
		if !ok {
			byAccount[leg.AccountID] = &Leg{
				AccountID: leg.AccountID,
				Amount:    leg.Amount,
				Currency:  currency,
				Note:      leg.Note,
			}
			continue
		}
		if merged.Currency != currency {
			return nil, fmt.Errorf("%w: account %s used with currencies %s and %s",
				ErrBadRequest, leg.AccountID, merged.Currency, currency)
		}
		merged.Amount = merged.Amount.Add(leg.Amount)
		merged.Note = leg.Note
	}

	currencies := make([]string, 0, len(sums))
	for c := range sums {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		if !sums[c].IsZero() {
			return nil, unbalanced(c, sums[c])
		}
	}

	legs := make([]Leg, 0, len(byAccount))
	for _, leg := range byAccount {
		legs = append(legs, *leg)
	}
	sort.Slice(legs, func(i, j int) bool {
		return legs[i].AccountID.String() < legs[j].AccountID.String()
	})
	return legs, nil
}
