// Package registry manages the reference records everything else hangs off:
// markets, companies and items.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/currency"
	"github.com/tinoosan/marketbooks/internal/dictionary"
	"github.com/tinoosan/marketbooks/internal/errs"
	"github.com/tinoosan/marketbooks/internal/meta"
	"github.com/tinoosan/marketbooks/internal/slug"
)

// MarketInput creates a market.
type MarketInput struct {
	Name         string
	BaseCurrency string
	Policy       books.Policy
}

// CompanyInput creates a company.
type CompanyInput struct {
	Name     string
	Category books.Category
	Currency string
	Metadata meta.Metadata
}

// CompanyPatch updates a company. Nil fields are left unchanged. Category
// and currency are fixed after creation; both feed historical balances.
type CompanyPatch struct {
	Name     *string
	Metadata meta.Metadata
	Active   *bool
}

// ItemInput creates an item.
type ItemInput struct {
	SupplierID uuid.UUID
	Code       string
	Name       string
	Weight     decimal.Decimal
	Grade      string
}

// ItemPatch updates an item. Weight changes only affect future purchases;
// existing batches keep their landed cost.
type ItemPatch struct {
	Name   *string
	Weight *decimal.Decimal
	Grade  *string
}

// Repo reads reference records.
type Repo interface {
	Market(ctx context.Context, id uuid.UUID) (books.Market, error)
	Markets(ctx context.Context) ([]books.Market, error)
	Company(ctx context.Context, marketID, id uuid.UUID) (books.Company, error)
	Companies(ctx context.Context, marketID uuid.UUID, category books.Category) ([]books.Company, error)
	Item(ctx context.Context, marketID, id uuid.UUID) (books.Item, error)
	Items(ctx context.Context, marketID uuid.UUID) ([]books.Item, error)
	// ItemByCode is the uniqueness probe. errs.ErrNotFound when free.
	ItemByCode(ctx context.Context, marketID uuid.UUID, code string) (books.Item, error)
}

// Writer persists reference records.
type Writer interface {
	SaveMarket(ctx context.Context, m books.Market) (books.Market, error)
	UpdateMarket(ctx context.Context, m books.Market) error
	SaveCompany(ctx context.Context, c books.Company) (books.Company, error)
	UpdateCompany(ctx context.Context, c books.Company) error
	SaveItem(ctx context.Context, it books.Item) (books.Item, error)
	UpdateItem(ctx context.Context, it books.Item) error
}

// Service is the reference-data surface.
type Service interface {
	CreateMarket(ctx context.Context, in MarketInput) (books.Market, error)
	RenameMarket(ctx context.Context, id uuid.UUID, name string) (books.Market, error)
	Market(ctx context.Context, id uuid.UUID) (books.Market, error)
	Markets(ctx context.Context) ([]books.Market, error)

	CreateCompany(ctx context.Context, marketID uuid.UUID, in CompanyInput) (books.Company, error)
	UpdateCompany(ctx context.Context, marketID, id uuid.UUID, patch CompanyPatch) (books.Company, error)
	Company(ctx context.Context, marketID, id uuid.UUID) (books.Company, error)
	Companies(ctx context.Context, marketID uuid.UUID, category books.Category) ([]books.Company, error)

	CreateItem(ctx context.Context, marketID uuid.UUID, in ItemInput) (books.Item, error)
	UpdateItem(ctx context.Context, marketID, id uuid.UUID, patch ItemPatch) (books.Item, error)
	Item(ctx context.Context, marketID, id uuid.UUID) (books.Item, error)
	Items(ctx context.Context, marketID uuid.UUID) ([]books.Item, error)
}

type service struct {
	repo   Repo
	writer Writer
}

func New(repo Repo, writer Writer) Service {
	return &service{repo: repo, writer: writer}
}

func (s *service) CreateMarket(ctx context.Context, in MarketInput) (books.Market, error) {
	if in.Name == "" {
		return books.Market{}, fmt.Errorf("%w: market name is required", errs.ErrInvalid)
	}
	// currency validity is checked once here so every later money
	// construction in this market is safe
	if _, err := currency.ParseCode(in.BaseCurrency); err != nil {
		return books.Market{}, err
	}
	policy := in.Policy
	if policy == "" {
		policy = books.PolicyAverage
	}
	if policy != books.PolicyAverage && policy != books.PolicyFIFO {
		return books.Market{}, fmt.Errorf("%w: costing policy %q", errs.ErrInvalid, policy)
	}
	m := books.Market{
		ID:           uuid.New(),
		Name:         in.Name,
		BaseCurrency: in.BaseCurrency,
		Policy:       policy,
		CreatedAt:    time.Now().UTC(),
	}
	return s.writer.SaveMarket(ctx, m)
}

func (s *service) RenameMarket(ctx context.Context, id uuid.UUID, name string) (books.Market, error) {
	if name == "" {
		return books.Market{}, fmt.Errorf("%w: market name is required", errs.ErrInvalid)
	}
	m, err := s.repo.Market(ctx, id)
	if err != nil {
		return books.Market{}, err
	}
	m.Name = name
	if err := s.writer.UpdateMarket(ctx, m); err != nil {
		return books.Market{}, err
	}
	return m, nil
}

func (s *service) Market(ctx context.Context, id uuid.UUID) (books.Market, error) {
	return s.repo.Market(ctx, id)
}

func (s *service) Markets(ctx context.Context) ([]books.Market, error) {
	return s.repo.Markets(ctx)
}

func (s *service) CreateCompany(ctx context.Context, marketID uuid.UUID, in CompanyInput) (books.Company, error) {
	if _, err := s.repo.Market(ctx, marketID); err != nil {
		return books.Company{}, err
	}
	if in.Name == "" {
		return books.Company{}, fmt.Errorf("%w: company name is required", errs.ErrInvalid)
	}
	if !dictionary.IsCompanyCategory(in.Category) {
		return books.Company{}, fmt.Errorf("%w: company category %q", errs.ErrInvalid, in.Category)
	}
	if _, err := currency.ParseCode(in.Currency); err != nil {
		return books.Company{}, err
	}
	c := books.Company{
		ID:       uuid.New(),
		MarketID: marketID,
		Name:     in.Name,
		Category: in.Category,
		Currency: in.Currency,
		Metadata: in.Metadata,
		Active:   true,
	}
	return s.writer.SaveCompany(ctx, c)
}

func (s *service) UpdateCompany(ctx context.Context, marketID, id uuid.UUID, patch CompanyPatch) (books.Company, error) {
	c, err := s.repo.Company(ctx, marketID, id)
	if err != nil {
		return books.Company{}, err
	}
	if patch.Name != nil {
		if *patch.Name == "" {
			return books.Company{}, fmt.Errorf("%w: company name is required", errs.ErrInvalid)
		}
		c.Name = *patch.Name
	}
	if patch.Metadata != nil {
		c.Metadata = patch.Metadata
	}
	if patch.Active != nil {
		c.Active = *patch.Active
	}
	if err := s.writer.UpdateCompany(ctx, c); err != nil {
		return books.Company{}, err
	}
	return c, nil
}

func (s *service) Company(ctx context.Context, marketID, id uuid.UUID) (books.Company, error) {
	return s.repo.Company(ctx, marketID, id)
}

func (s *service) Companies(ctx context.Context, marketID uuid.UUID, category books.Category) ([]books.Company, error) {
	if category != "" && !dictionary.IsCompanyCategory(category) {
		return nil, fmt.Errorf("%w: company category %q", errs.ErrInvalid, category)
	}
	return s.repo.Companies(ctx, marketID, category)
}

func (s *service) CreateItem(ctx context.Context, marketID uuid.UUID, in ItemInput) (books.Item, error) {
	if _, err := s.repo.Market(ctx, marketID); err != nil {
		return books.Item{}, err
	}
	code := slug.NormalizeCode(in.Code)
	if !slug.IsCode(code) {
		return books.Item{}, fmt.Errorf("%w: item code %q", errs.ErrInvalid, in.Code)
	}
	if in.Name == "" {
		return books.Item{}, fmt.Errorf("%w: item name is required", errs.ErrInvalid)
	}
	if in.Weight.IsNeg() {
		return books.Item{}, fmt.Errorf("%w: item weight must not be negative", errs.ErrInvalid)
	}
	if in.SupplierID != uuid.Nil {
		c, err := s.repo.Company(ctx, marketID, in.SupplierID)
		if err != nil {
			return books.Item{}, err
		}
		if c.Category != books.CategorySupplier {
			return books.Item{}, fmt.Errorf("%w: company %s is not a supplier", errs.ErrUnprocessable, c.Name)
		}
	}
	if _, err := s.repo.ItemByCode(ctx, marketID, code); err == nil {
		return books.Item{}, fmt.Errorf("%w: item %s already exists", errs.ErrConflict, code)
	}
	it := books.Item{
		ID:         uuid.New(),
		MarketID:   marketID,
		SupplierID: in.SupplierID,
		Code:       code,
		Name:       in.Name,
		Weight:     in.Weight,
		Grade:      in.Grade,
	}
	return s.writer.SaveItem(ctx, it)
}

func (s *service) UpdateItem(ctx context.Context, marketID, id uuid.UUID, patch ItemPatch) (books.Item, error) {
	it, err := s.repo.Item(ctx, marketID, id)
	if err != nil {
		return books.Item{}, err
	}
	if patch.Name != nil {
		if *patch.Name == "" {
			return books.Item{}, fmt.Errorf("%w: item name is required", errs.ErrInvalid)
		}
		it.Name = *patch.Name
	}
	if patch.Weight != nil {
		if patch.Weight.IsNeg() {
			return books.Item{}, fmt.Errorf("%w: item weight must not be negative", errs.ErrInvalid)
		}
		it.Weight = *patch.Weight
	}
	if patch.Grade != nil {
		it.Grade = *patch.Grade
	}
	if err := s.writer.UpdateItem(ctx, it); err != nil {
		return books.Item{}, err
	}
	return it, nil
}

func (s *service) Item(ctx context.Context, marketID, id uuid.UUID) (books.Item, error) {
	return s.repo.Item(ctx, marketID, id)
}

func (s *service) Items(ctx context.Context, marketID uuid.UUID) ([]books.Item, error) {
	return s.repo.Items(ctx, marketID)
}
