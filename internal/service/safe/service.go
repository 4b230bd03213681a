// Package safe is the cash ledger of a market. Balances are never stored
// authoritatively: every mutation triggers a full chronological replay that
// rewrites BalanceAfter on all entries, so the balance column can always be
// reproduced from the entries alone.
package safe

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/currency"
	"github.com/tinoosan/marketbooks/internal/errs"
	"github.com/tinoosan/marketbooks/internal/meta"
)

// EntryInput is a manual ledger entry as submitted by a user.
type EntryInput struct {
	Type        books.EntryType
	Amount      decimal.Decimal
	Currency    string
	Rate        decimal.Decimal
	Date        time.Time
	Description string
	Metadata    meta.Metadata
}

// LinkedInput is an entry generated by another record (payment, cash sale,
// expense). BaseAmount is the exact value captured by the source and is
// stored as-is, never re-derived from Amount and Rate.
type LinkedInput struct {
	Type        books.EntryType
	Amount      decimal.Decimal
	Currency    string
	Rate        decimal.Decimal
	BaseAmount  decimal.Decimal
	Date        time.Time
	Description string
	PaymentID   uuid.UUID
	SaleID      uuid.UUID
	ExpenseID   uuid.UUID
}

// EntryPatch carries the editable fields of a manual entry. Nil fields are
// left unchanged.
type EntryPatch struct {
	Amount      *decimal.Decimal
	Currency    *string
	Rate        *decimal.Decimal
	Date        *time.Time
	Description *string
	Metadata    meta.Metadata
}

// Report is the safe movement report over a date range.
type Report struct {
	Opening  decimal.Decimal
	Inflows  decimal.Decimal
	Outflows decimal.Decimal
	Closing  decimal.Decimal
	Entries  []books.SafeEntry
}

// Repo reads ledger state. Entries come back ordered by (Date, Seq)
// ascending, the replay order.
type Repo interface {
	Entries(ctx context.Context, marketID uuid.UUID) ([]books.SafeEntry, error)
	Entry(ctx context.Context, marketID, id uuid.UUID) (books.SafeEntry, error)
	Market(ctx context.Context, id uuid.UUID) (books.Market, error)
}

// Writer persists ledger mutations. SaveEntry assigns Seq.
type Writer interface {
	SaveEntry(ctx context.Context, entry books.SafeEntry) (books.SafeEntry, error)
	UpdateEntry(ctx context.Context, entry books.SafeEntry) error
	DeleteEntry(ctx context.Context, marketID, id uuid.UUID) error
	// RewriteBalances updates BalanceAfter on every given entry in one
	// transaction.
	RewriteBalances(ctx context.Context, marketID uuid.UUID, entries []books.SafeEntry) error
}

// Service is the ledger surface.
type Service interface {
	Append(ctx context.Context, marketID uuid.UUID, in EntryInput) (books.SafeEntry, error)
	// AppendLinked records a source-generated entry. Only other services
	// call this; linked entries are immutable through the ledger itself.
	AppendLinked(ctx context.Context, marketID uuid.UUID, in LinkedInput) (books.SafeEntry, error)
	Update(ctx context.Context, marketID, id uuid.UUID, patch EntryPatch) (books.SafeEntry, error)
	Delete(ctx context.Context, marketID, id uuid.UUID) error
	// DeleteLinked removes the entry tied to a source record when that
	// record itself is deleted.
	DeleteLinked(ctx context.Context, marketID, id uuid.UUID) error
	// Balance replays the ledger and returns the closing balance in base
	// currency.
	Balance(ctx context.Context, marketID uuid.UUID) (decimal.Decimal, error)
	// Recalculate replays the ledger and rewrites every BalanceAfter.
	Recalculate(ctx context.Context, marketID uuid.UUID) error
	MovementReport(ctx context.Context, marketID uuid.UUID, from, to time.Time) (Report, error)
}

type service struct {
	repo   Repo
	writer Writer
	locks  *books.MarketLocks
}

func New(repo Repo, writer Writer, locks *books.MarketLocks) Service {
	return &service{repo: repo, writer: writer, locks: locks}
}

// Replay walks entries in (Date, Seq) order and recomputes running
// balances. Opening and inflow entries add their BaseAmount, outflows
// subtract it. Returns the entries with BalanceAfter set and the closing
// balance.
func Replay(entries []books.SafeEntry) ([]books.SafeEntry, decimal.Decimal, error) {
	balance := decimal.MustNew(0, 0)
	out := make([]books.SafeEntry, len(entries))
	for i, e := range entries {
		var err error
		switch e.Type {
		case books.EntryOpening, books.EntryInflow:
			balance, err = balance.Add(e.BaseAmount)
		case books.EntryOutflow:
			balance, err = balance.Sub(e.BaseAmount)
		default:
			err = fmt.Errorf("%w: unknown entry type %q", errs.ErrInvalid, e.Type)
		}
		if err != nil {
			return nil, decimal.MustNew(0, 0), err
		}
		e.BalanceAfter = balance
		out[i] = e
	}
	return out, balance, nil
}

func (s *service) validate(in EntryInput) error {
	switch in.Type {
	case books.EntryOpening, books.EntryInflow, books.EntryOutflow:
	default:
		return fmt.Errorf("%w: entry type %q", errs.ErrInvalid, in.Type)
	}
	if !in.Amount.IsPos() {
		return fmt.Errorf("%w: amount must be positive", errs.ErrInvalid)
	}
	if _, err := currency.ParseCode(in.Currency); err != nil {
		return err
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", errs.ErrInvalid)
	}
	return nil
}

func (s *service) Append(ctx context.Context, marketID uuid.UUID, in EntryInput) (books.SafeEntry, error) {
	if err := s.validate(in); err != nil {
		return books.SafeEntry{}, err
	}
	unlock := s.locks.Lock(marketID)
	defer unlock()

	market, err := s.repo.Market(ctx, marketID)
	if err != nil {
		return books.SafeEntry{}, err
	}
	if in.Type == books.EntryOpening {
		existing, err := s.repo.Entries(ctx, marketID)
		if err != nil {
			return books.SafeEntry{}, err
		}
		for _, e := range existing {
			if e.Type == books.EntryOpening {
				return books.SafeEntry{}, fmt.Errorf("%w: safe already has an opening entry", errs.ErrConflict)
			}
		}
	}
	base, err := currency.New(market.BaseCurrency).ToBase(in.Amount, in.Rate)
	if err != nil {
		return books.SafeEntry{}, err
	}
	entry := books.SafeEntry{
		ID:          uuid.New(),
		MarketID:    marketID,
		Type:        in.Type,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Rate:        in.Rate,
		BaseAmount:  base,
		Date:        in.Date,
		Description: in.Description,
		Metadata:    in.Metadata,
		CreatedAt:   time.Now().UTC(),
	}
	saved, err := s.writer.SaveEntry(ctx, entry)
	if err != nil {
		return books.SafeEntry{}, err
	}
	if err := s.recalculate(ctx, marketID); err != nil {
		return books.SafeEntry{}, err
	}
	return s.repo.Entry(ctx, marketID, saved.ID)
}

func (s *service) AppendLinked(ctx context.Context, marketID uuid.UUID, in LinkedInput) (books.SafeEntry, error) {
	if in.PaymentID == uuid.Nil && in.SaleID == uuid.Nil && in.ExpenseID == uuid.Nil {
		return books.SafeEntry{}, fmt.Errorf("%w: linked entry needs a source record", errs.ErrInvalid)
	}
	unlock := s.locks.Lock(marketID)
	defer unlock()

	entry := books.SafeEntry{
		ID:          uuid.New(),
		MarketID:    marketID,
		Type:        in.Type,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Rate:        in.Rate,
		BaseAmount:  in.BaseAmount,
		Date:        in.Date,
		Description: in.Description,
		PaymentID:   in.PaymentID,
		SaleID:      in.SaleID,
		ExpenseID:   in.ExpenseID,
		CreatedAt:   time.Now().UTC(),
	}
	saved, err := s.writer.SaveEntry(ctx, entry)
	if err != nil {
		return books.SafeEntry{}, err
	}
	if err := s.recalculate(ctx, marketID); err != nil {
		return books.SafeEntry{}, err
	}
	return s.repo.Entry(ctx, marketID, saved.ID)
}

func (s *service) Update(ctx context.Context, marketID, id uuid.UUID, patch EntryPatch) (books.SafeEntry, error) {
	unlock := s.locks.Lock(marketID)
	defer unlock()

	entry, err := s.repo.Entry(ctx, marketID, id)
	if err != nil {
		return books.SafeEntry{}, err
	}
	if entry.SourceLinked() {
		return books.SafeEntry{}, fmt.Errorf("%w: entry is managed by its source record", errs.ErrImmutable)
	}
	if patch.Amount != nil {
		entry.Amount = *patch.Amount
	}
	if patch.Currency != nil {
		if _, err := currency.ParseCode(*patch.Currency); err != nil {
			return books.SafeEntry{}, err
		}
		entry.Currency = *patch.Currency
	}
	if patch.Rate != nil {
		entry.Rate = *patch.Rate
	}
	if patch.Date != nil {
		entry.Date = *patch.Date
	}
	if patch.Description != nil {
		entry.Description = *patch.Description
	}
	if patch.Metadata != nil {
		entry.Metadata = patch.Metadata
	}
	if !entry.Amount.IsPos() {
		return books.SafeEntry{}, fmt.Errorf("%w: amount must be positive", errs.ErrInvalid)
	}
	market, err := s.repo.Market(ctx, marketID)
	if err != nil {
		return books.SafeEntry{}, err
	}
	if entry.BaseAmount, err = currency.New(market.BaseCurrency).ToBase(entry.Amount, entry.Rate); err != nil {
		return books.SafeEntry{}, err
	}
	if err := s.writer.UpdateEntry(ctx, entry); err != nil {
		return books.SafeEntry{}, err
	}
	if err := s.recalculate(ctx, marketID); err != nil {
		return books.SafeEntry{}, err
	}
	return s.repo.Entry(ctx, marketID, id)
}

func (s *service) Delete(ctx context.Context, marketID, id uuid.UUID) error {
	unlock := s.locks.Lock(marketID)
	defer unlock()

	entry, err := s.repo.Entry(ctx, marketID, id)
	if err != nil {
		return err
	}
	if entry.SourceLinked() {
		return fmt.Errorf("%w: entry is managed by its source record", errs.ErrImmutable)
	}
	if err := s.writer.DeleteEntry(ctx, marketID, id); err != nil {
		return err
	}
	return s.recalculate(ctx, marketID)
}

func (s *service) DeleteLinked(ctx context.Context, marketID, id uuid.UUID) error {
	unlock := s.locks.Lock(marketID)
	defer unlock()

	if _, err := s.repo.Entry(ctx, marketID, id); err != nil {
		return err
	}
	if err := s.writer.DeleteEntry(ctx, marketID, id); err != nil {
		return err
	}
	return s.recalculate(ctx, marketID)
}

func (s *service) Balance(ctx context.Context, marketID uuid.UUID) (decimal.Decimal, error) {
	entries, err := s.repo.Entries(ctx, marketID)
	if err != nil {
		return decimal.MustNew(0, 0), err
	}
	_, balance, err := Replay(entries)
	return balance, err
}

func (s *service) Recalculate(ctx context.Context, marketID uuid.UUID) error {
	unlock := s.locks.Lock(marketID)
	defer unlock()
	return s.recalculate(ctx, marketID)
}

// recalculate assumes the market lock is held.
func (s *service) recalculate(ctx context.Context, marketID uuid.UUID) error {
	entries, err := s.repo.Entries(ctx, marketID)
	if err != nil {
		return err
	}
	replayed, _, err := Replay(entries)
	if err != nil {
		return err
	}
	return s.writer.RewriteBalances(ctx, marketID, replayed)
}

func (s *service) MovementReport(ctx context.Context, marketID uuid.UUID, from, to time.Time) (Report, error) {
	entries, err := s.repo.Entries(ctx, marketID)
	if err != nil {
		return Report{}, err
	}
	replayed, _, err := Replay(entries)
	if err != nil {
		return Report{}, err
	}
	zero := decimal.MustNew(0, 0)
	rep := Report{Opening: zero, Inflows: zero, Outflows: zero, Closing: zero}
	for _, e := range replayed {
		if e.Date.Before(from) {
			// opening balance is the running balance strictly before the range
			rep.Opening = e.BalanceAfter
			continue
		}
		if e.Date.After(to) {
			break
		}
		switch e.Type {
		case books.EntryOpening, books.EntryInflow:
			if rep.Inflows, err = rep.Inflows.Add(e.BaseAmount); err != nil {
				return Report{}, err
			}
		case books.EntryOutflow:
			if rep.Outflows, err = rep.Outflows.Add(e.BaseAmount); err != nil {
				return Report{}, err
			}
		}
		rep.Entries = append(rep.Entries, e)
	}
	rep.Closing = rep.Opening
	if rep.Closing, err = rep.Closing.Add(rep.Inflows); err != nil {
		return Report{}, err
	}
	if rep.Closing, err = rep.Closing.Sub(rep.Outflows); err != nil {
		return Report{}, err
	}
	return rep, nil
}
