// Package postgres is the durable store. Plain SQL over pgx; the multi-row
// writes that must be atomic (purchases, allocation saves, policy commits,
// balance rewrites) run in a single transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/marketbooks/internal/books"
	"github.com/tinoosan/marketbooks/internal/errs"
	"github.com/tinoosan/marketbooks/internal/meta"
)

type Store struct {
	pool *pgxpool.Pool
}

// Open connects and pings. The schema is created by the migrations under
// db/migrations; this package only maps entities to rows.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanDec(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.MustNew(0, 0), nil
	}
	return decimal.Parse(s)
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %v", errs.ErrNotFound, what, id)
	}
	return err
}

// markets

const marketCols = `id, name, base_currency, policy, created_at`

func scanMarket(row pgx.Row) (books.Market, error) {
	var m books.Market
	err := row.Scan(&m.ID, &m.Name, &m.BaseCurrency, &m.Policy, &m.CreatedAt)
	return m, err
}

func (s *Store) Market(ctx context.Context, id uuid.UUID) (books.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE id = $1`, id))
	if err != nil {
		return books.Market{}, notFound(err, "market", id)
	}
	return m, nil
}

func (s *Store) Markets(ctx context.Context) ([]books.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []books.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) SaveMarket(ctx context.Context, m books.Market) (books.Market, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, name, base_currency, policy, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Name, m.BaseCurrency, m.Policy, m.CreatedAt)
	return m, err
}

func (s *Store) UpdateMarket(ctx context.Context, m books.Market) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET name = $2, policy = $3 WHERE id = $1`,
		m.ID, m.Name, m.Policy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: market %s", errs.ErrNotFound, m.ID)
	}
	return nil
}

// companies

const companyCols = `id, market_id, name, category, currency, metadata, active`

func scanCompany(row pgx.Row) (books.Company, error) {
	var c books.Company
	var mdBytes []byte
	if err := row.Scan(&c.ID, &c.MarketID, &c.Name, &c.Category, &c.Currency, &mdBytes, &c.Active); err != nil {
		return books.Company{}, err
	}
	c.Metadata = decodeMetadata(mdBytes)
	return c, nil
}

func decodeMetadata(b []byte) meta.Metadata {
	if len(b) == 0 {
		return nil
	}
	var m meta.Metadata
	if err := m.UnmarshalJSON(b); err != nil {
		return nil
	}
	return m
}

func encodeMetadata(m meta.Metadata) []byte {
	b, err := m.MarshalStableJSON()
	if err != nil {
		return nil
	}
	return b
}

func (s *Store) Company(ctx context.Context, marketID, id uuid.UUID) (books.Company, error) {
	c, err := scanCompany(s.pool.QueryRow(ctx,
		`SELECT `+companyCols+` FROM companies WHERE id = $1 AND market_id = $2`, id, marketID))
	if err != nil {
		return books.Company{}, notFound(err, "company", id)
	}
	return c, nil
}

func (s *Store) Companies(ctx context.Context, marketID uuid.UUID, category books.Category) ([]books.Company, error) {
	q := `SELECT ` + companyCols + ` FROM companies WHERE market_id = $1`
	args := []any{marketID}
	if category != "" {
		q += ` AND category = $2`
		args = append(args, category)
	}
	q += ` ORDER BY lower(name)`
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []books.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) SaveCompany(ctx context.Context, c books.Company) (books.Company, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO companies (id, market_id, name, category, currency, metadata, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.MarketID, c.Name, c.Category, c.Currency, encodeMetadata(c.Metadata), c.Active)
	return c, err
}

func (s *Store) UpdateCompany(ctx context.Context, c books.Company) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET name = $2, metadata = $3, active = $4 WHERE id = $1`,
		c.ID, c.Name, encodeMetadata(c.Metadata), c.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: company %s", errs.ErrNotFound, c.ID)
	}
	return nil
}

// items

const itemCols = `id, market_id, supplier_id, code, name, weight, grade`

func scanItem(row pgx.Row) (books.Item, error) {
	var it books.Item
	var supplierID *uuid.UUID
	var weight string
	if err := row.Scan(&it.ID, &it.MarketID, &supplierID, &it.Code, &it.Name, &weight, &it.Grade); err != nil {
		return books.Item{}, err
	}
	if supplierID != nil {
		it.SupplierID = *supplierID
	}
	var err error
	it.Weight, err = scanDec(weight)
	return it, err
}

func nilIfZero(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func (s *Store) Item(ctx context.Context, marketID, id uuid.UUID) (books.Item, error) {
	it, err := scanItem(s.pool.QueryRow(ctx,
		`SELECT `+itemCols+` FROM items WHERE id = $1 AND market_id = $2`, id, marketID))
	if err != nil {
		return books.Item{}, notFound(err, "item", id)
	}
	return it, nil
}

func (s *Store) Items(ctx context.Context, marketID uuid.UUID) ([]books.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemCols+` FROM items WHERE market_id = $1 ORDER BY code`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []books.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) ItemByCode(ctx context.Context, marketID uuid.UUID, code string) (books.Item, error) {
	it, err := scanItem(s.pool.QueryRow(ctx,
		`SELECT `+itemCols+` FROM items WHERE market_id = $1 AND code = $2`, marketID, code))
	if err != nil {
		return books.Item{}, notFound(err, "item", code)
	}
	return it, nil
}

func (s *Store) ItemWeights(ctx context.Context, marketID uuid.UUID, itemIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, weight FROM items WHERE market_id = $1 AND id = ANY($2)`, marketID, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]decimal.Decimal, len(itemIDs))
	for rows.Next() {
		var id uuid.UUID
		var w string
		if err := rows.Scan(&id, &w); err != nil {
			return nil, err
		}
		if out[id], err = scanDec(w); err != nil {
			return nil, err
		}
	}
	return out, rows.Err()
}

func (s *Store) SaveItem(ctx context.Context, it books.Item) (books.Item, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO items (id, market_id, supplier_id, code, name, weight, grade)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		it.ID, it.MarketID, nilIfZero(it.SupplierID), it.Code, it.Name, it.Weight.String(), it.Grade)
	return it, err
}

func (s *Store) UpdateItem(ctx context.Context, it books.Item) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE items SET name = $2, weight = $3, grade = $4 WHERE id = $1`,
		it.ID, it.Name, it.Weight.String(), it.Grade)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %s", errs.ErrNotFound, it.ID)
	}
	return nil
}

// purchases

const containerCols = `id, market_id, number, supplier_id, currency, rate, date,
	exp_supplier_amount, exp_supplier_currency, exp_supplier_rate,
	exp_service_amount, exp_service_currency, exp_service_rate, service_company_id,
	exp_cash_amount, exp_cash_currency, exp_cash_rate,
	notes, created_at`

func scanContainer(row pgx.Row) (books.PurchaseContainer, error) {
	var c books.PurchaseContainer
	var rate, supAmt, supRate, svcAmt, svcRate, cashAmt, cashRate string
	var svcID *uuid.UUID
	err := row.Scan(&c.ID, &c.MarketID, &c.Number, &c.SupplierID, &c.Currency, &rate, &c.Date,
		&supAmt, &c.SupplierExpense.Currency, &supRate,
		&svcAmt, &c.ServiceExpense.Currency, &svcRate, &svcID,
		&cashAmt, &c.CashExpense.Currency, &cashRate,
		&c.Notes, &c.CreatedAt)
	if err != nil {
		return books.PurchaseContainer{}, err
	}
	if svcID != nil {
		c.ServiceCompanyID = *svcID
	}
	for _, p := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&c.Rate, rate},
		{&c.SupplierExpense.Amount, supAmt}, {&c.SupplierExpense.Rate, supRate},
		{&c.ServiceExpense.Amount, svcAmt}, {&c.ServiceExpense.Rate, svcRate},
		{&c.CashExpense.Amount, cashAmt}, {&c.CashExpense.Rate, cashRate},
	} {
		if *p.dst, err = scanDec(p.src); err != nil {
			return books.PurchaseContainer{}, err
		}
	}
	return c, nil
}

func (s *Store) loadLines(ctx context.Context, containerIDs []uuid.UUID) (map[uuid.UUID][]books.PurchaseLine, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, container_id, item_id, quantity, unit_price, total
		 FROM purchase_lines WHERE container_id = ANY($1) ORDER BY seq`, containerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]books.PurchaseLine)
	for rows.Next() {
		var ln books.PurchaseLine
		var qty, price, total string
		if err := rows.Scan(&ln.ID, &ln.ContainerID, &ln.ItemID, &qty, &price, &total); err != nil {
			return nil, err
		}
		if ln.Quantity, err = scanDec(qty); err != nil {
			return nil, err
		}
		if ln.UnitPrice, err = scanDec(price); err != nil {
			return nil, err
		}
		if ln.Total, err = scanDec(total); err != nil {
			return nil, err
		}
		out[ln.ContainerID] = append(out[ln.ContainerID], ln)
	}
	return out, rows.Err()
}

func (s *Store) queryContainers(ctx context.Context, where string, args ...any) ([]books.PurchaseContainer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+containerCols+` FROM purchase_containers WHERE `+where+` ORDER BY date, seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []books.PurchaseContainer
	var ids []uuid.UUID
	for rows.Next() {
		c, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	lines, err := s.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}

func (s *Store) Containers(ctx context.Context, marketID uuid.UUID) ([]books.PurchaseContainer, error) {
	return s.queryContainers(ctx, `market_id = $1`, marketID)
}

func (s *Store) ContainersWithItem(ctx context.Context, marketID, itemID uuid.UUID, before *time.Time) ([]books.PurchaseContainer, error) {
	where := `market_id = $1 AND id IN (SELECT container_id FROM purchase_lines WHERE item_id = $2)`
	args := []any{marketID, itemID}
	if before != nil {
		where += ` AND date < $3`
		args = append(args, *before)
	}
	return s.queryContainers(ctx, where, args...)
}

func (s *Store) ContainersBySupplier(ctx context.Context, marketID, supplierID uuid.UUID) ([]books.PurchaseContainer, error) {
	return s.queryContainers(ctx, `market_id = $1 AND supplier_id = $2`, marketID, supplierID)
}

func (s *Store) ContainersByServiceCompany(ctx context.Context, marketID, companyID uuid.UUID) ([]books.PurchaseContainer, error) {
	return s.queryContainers(ctx, `market_id = $1 AND service_company_id = $2`, marketID, companyID)
}

func (s *Store) ContainerByNumber(ctx context.Context, marketID uuid.UUID, number string) (books.PurchaseContainer, error) {
	out, err := s.queryContainers(ctx, `market_id = $1 AND number = $2`, marketID, number)
	if err != nil {
		return books.PurchaseContainer{}, err
	}
	if len(out) == 0 {
		return books.PurchaseContainer{}, fmt.Errorf("%w: container %s", errs.ErrNotFound, number)
	}
	return out[0], nil
}

func (s *Store) SavePurchase(ctx context.Context, c books.PurchaseContainer, batches []books.Batch) (books.PurchaseContainer, error) {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO purchase_containers (`+containerCols+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			c.ID, c.MarketID, c.Number, c.SupplierID, c.Currency, c.Rate.String(), c.Date,
			c.SupplierExpense.Amount.String(), c.SupplierExpense.Currency, c.SupplierExpense.Rate.String(),
			c.ServiceExpense.Amount.String(), c.ServiceExpense.Currency, c.ServiceExpense.Rate.String(), nilIfZero(c.ServiceCompanyID),
			c.CashExpense.Amount.String(), c.CashExpense.Currency, c.CashExpense.Rate.String(),
			c.Notes, c.CreatedAt)
		if err != nil {
			return err
		}
		for _, ln := range c.Lines {
			if _, err := tx.Exec(ctx,
				`INSERT INTO purchase_lines (id, container_id, item_id, quantity, unit_price, total)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				ln.ID, ln.ContainerID, ln.ItemID, ln.Quantity.String(), ln.UnitPrice.String(), ln.Total.String()); err != nil {
				return err
			}
		}
		for _, b := range batches {
			if err := insertBatch(ctx, tx, b); err != nil {
				return err
			}
		}
		return nil
	})
	return c, err
}

func insertBatch(ctx context.Context, tx pgx.Tx, b books.Batch) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO batches (id, market_id, item_id, purchase_line_id, container_id, purchase_date,
		   original_qty, available_qty, unit_price, cog_per_unit, cost_per_unit, currency, rate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		b.ID, b.MarketID, b.ItemID, b.PurchaseLineID, b.ContainerID, b.PurchaseDate,
		b.OriginalQty.String(), b.AvailableQty.String(), b.UnitPrice.String(),
		b.COGPerUnit.String(), b.CostPerUnit.String(), b.Currency, b.Rate.String())
	return err
}

// sales

const saleCols = `id, seq, market_id, invoice_number, customer_id, supplier_id, date,
	total, paid, settlement, notes, created_at`

func scanSale(row pgx.Row) (books.Sale, error) {
	var sale books.Sale
	var total, paid string
	var supplierID *uuid.UUID
	err := row.Scan(&sale.ID, &sale.Seq, &sale.MarketID, &sale.InvoiceNumber, &sale.CustomerID,
		&supplierID, &sale.Date, &total, &paid, &sale.Settlement, &sale.Notes, &sale.CreatedAt)
	if err != nil {
		return books.Sale{}, err
	}
	if supplierID != nil {
		sale.SupplierID = *supplierID
	}
	if sale.Total, err = scanDec(total); err != nil {
		return books.Sale{}, err
	}
	sale.Paid, err = scanDec(paid)
	return sale, err
}

func (s *Store) loadSaleLines(ctx context.Context, saleIDs []uuid.UUID) (map[uuid.UUID][]books.SaleLine, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sale_id, item_id, quantity, unit_price, total
		 FROM sale_lines WHERE sale_id = ANY($1) ORDER BY seq`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]books.SaleLine)
	for rows.Next() {
		var ln books.SaleLine
		var qty, price, total string
		if err := rows.Scan(&ln.ID, &ln.SaleID, &ln.ItemID, &qty, &price, &total); err != nil {
			return nil, err
		}
		if ln.Quantity, err = scanDec(qty); err != nil {
			return nil, err
		}
		if ln.UnitPrice, err = scanDec(price); err != nil {
			return nil, err
		}
		if ln.Total, err = scanDec(total); err != nil {
			return nil, err
		}
		out[ln.SaleID] = append(out[ln.SaleID], ln)
	}
	return out, rows.Err()
}

func (s *Store) querySales(ctx context.Context, where string, args ...any) ([]books.Sale, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+saleCols+` FROM sales WHERE `+where+` ORDER BY date, seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []books.Sale
	var ids []uuid.UUID
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	lines, err := s.loadSaleLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}

func (s *Store) Sales(ctx context.Context, marketID uuid.UUID) ([]books.Sale, error) {
	return s.querySales(ctx, `market_id = $1`, marketID)
}

func (s *Store) SalesBetween(ctx context.Context, marketID uuid.UUID, from, to time.Time) ([]books.Sale, error) {
	return s.querySales(ctx, `market_id = $1 AND date >= $2 AND date <= $3`, marketID, from, to)
}

func (s *Store) SalesByCustomer(ctx context.Context, marketID, customerID uuid.UUID) ([]books.Sale, error) {
	return s.querySales(ctx, `market_id = $1 AND customer_id = $2`, marketID, customerID)
}

func (s *Store) Sale(ctx context.Context, marketID, id uuid.UUID) (books.Sale, error) {
	out, err := s.querySales(ctx, `market_id = $1 AND id = $2`, marketID, id)
	if err != nil {
		return books.Sale{}, err
	}
	if len(out) == 0 {
		return books.Sale{}, fmt.Errorf("%w: sale %s", errs.ErrNotFound, id)
	}
	return out[0], nil
}

func (s *Store) CountSalesOn(ctx context.Context, marketID uuid.UUID, date time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM sales WHERE market_id = $1 AND date::date = $2::date`, marketID, date).Scan(&n)
	return n, err
}

func (s *Store) SaveSale(ctx context.Context, sale books.Sale) (books.Sale, error) {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO sales (id, market_id, invoice_number, customer_id, supplier_id, date,
			   total, paid, settlement, notes, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING seq`,
			sale.ID, sale.MarketID, sale.InvoiceNumber, sale.CustomerID, nilIfZero(sale.SupplierID),
			sale.Date, sale.Total.String(), sale.Paid.String(), sale.Settlement, sale.Notes, sale.CreatedAt).
			Scan(&sale.Seq)
		if err != nil {
			return err
		}
		for _, ln := range sale.Lines {
			if _, err := tx.Exec(ctx,
				`INSERT INTO sale_lines (id, sale_id, item_id, quantity, unit_price, total)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				ln.ID, ln.SaleID, ln.ItemID, ln.Quantity.String(), ln.UnitPrice.String(), ln.Total.String()); err != nil {
				return err
			}
		}
		return nil
	})
	return sale, err
}

func (s *Store) DeleteSale(ctx context.Context, marketID, id uuid.UUID) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM allocations WHERE sale_line_id IN (SELECT id FROM sale_lines WHERE sale_id = $1)`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM sales WHERE id = $1 AND market_id = $2`, id, marketID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: sale %s", errs.ErrNotFound, id)
		}
		return nil
	})
}

func (s *Store) UpdateSalePaid(ctx context.Context, marketID, saleID uuid.UUID, paid decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sales SET paid = $3 WHERE id = $1 AND market_id = $2`,
		saleID, marketID, paid.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: sale %s", errs.ErrNotFound, saleID)
	}
	return nil
}

// payments

const paymentCols = `id, market_id, company_id, sale_id, direction, amount, currency, rate,
	base_amount, date, loan, notes, created_at`

func scanPayment(row pgx.Row) (books.Payment, error) {
	var p books.Payment
	var saleID *uuid.UUID
	var amount, rate, base string
	err := row.Scan(&p.ID, &p.MarketID, &p.CompanyID, &saleID, &p.Direction,
		&amount, &p.Currency, &rate, &base, &p.Date, &p.Loan, &p.Notes, &p.CreatedAt)
	if err != nil {
		return books.Payment{}, err
	}
	if saleID != nil {
		p.SaleID = *saleID
	}
	if p.Amount, err = scanDec(amount); err != nil {
		return books.Payment{}, err
	}
	if p.Rate, err = scanDec(rate); err != nil {
		return books.Payment{}, err
	}
	p.BaseAmount, err = scanDec(base)
	return p, err
}

func (s *Store) Payment(ctx context.Context, marketID, id uuid.UUID) (books.Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE id = $1 AND market_id = $2`, id, marketID))
	if err != nil {
		return books.Payment{}, notFound(err, "payment", id)
	}
	return p, nil
}

func (s *Store) PaymentsByCompany(ctx context.Context, marketID, companyID uuid.UUID) ([]books.Payment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+paymentCols+` FROM payments WHERE market_id = $1 AND company_id = $2
		 ORDER BY date, created_at`, marketID, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []books.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) SavePayment(ctx context.Context, p books.Payment) (books.Payment, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payments (`+paymentCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		p.ID, p.MarketID, p.CompanyID, nilIfZero(p.SaleID), p.Direction,
		p.Amount.String(), p.Currency, p.Rate.String(), p.BaseAmount.String(),
		p.Date, p.Loan, p.Notes, p.CreatedAt)
	return p, err
}

func (s *Store) DeletePayment(ctx context.Context, marketID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM payments WHERE id = $1 AND market_id = $2`, id, marketID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: payment %s", errs.ErrNotFound, id)
	}
	return nil
}

// expenses and adjustments

func (s *Store) ExpensesBetween(ctx context.Context, marketID uuid.UUID, from, to time.Time) ([]books.GeneralExpense, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, date, description, category, amount, currency, rate, created_at
		 FROM general_expenses WHERE market_id = $1 AND date >= $2 AND date <= $3
		 ORDER BY date`, marketID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []books.GeneralExpense
	for rows.Next() {
		var e books.GeneralExpense
		var amount, rate string
		if err := rows.Scan(&e.ID, &e.MarketID, &e.Date, &e.Description, &e.Category,
			&amount, &e.Currency, &rate, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = scanDec(amount); err != nil {
			return nil, err
		}
		if e.Rate, err = scanDec(rate); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SaveExpense(ctx context.Context, e books.GeneralExpense) (books.GeneralExpense, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO general_expenses (id, market_id, date, description, category, amount, currency, rate, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.MarketID, e.Date, e.Description, e.Category, e.Amount.String(), e.Currency, e.Rate.String(), e.CreatedAt)
	return e, err
}

func (s *Store) Adjustments(ctx context.Context, marketID uuid.UUID) ([]books.InventoryAdjustment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, item_id, type, quantity, date, reason, notes, created_at
		 FROM inventory_adjustments WHERE market_id = $1 ORDER BY date`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []books.InventoryAdjustment
	for rows.Next() {
		var a books.InventoryAdjustment
		var qty string
		if err := rows.Scan(&a.ID, &a.MarketID, &a.ItemID, &a.Type, &qty, &a.Date, &a.Reason, &a.Notes, &a.CreatedAt); err != nil {
			return nil, err
		}
		if a.Quantity, err = scanDec(qty); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SaveAdjustment(ctx context.Context, a books.InventoryAdjustment) (books.InventoryAdjustment, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO inventory_adjustments (id, market_id, item_id, type, quantity, date, reason, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.MarketID, a.ItemID, a.Type, a.Quantity.String(), a.Date, a.Reason, a.Notes, a.CreatedAt)
	return a, err
}

// batches and allocations

const batchCols = `id, seq, market_id, item_id, purchase_line_id, container_id, purchase_date,
	original_qty, available_qty, unit_price, cog_per_unit, cost_per_unit, currency, rate`

func scanBatch(row pgx.Row) (books.Batch, error) {
	var b books.Batch
	var orig, avail, price, cog, cost, rate string
	err := row.Scan(&b.ID, &b.Seq, &b.MarketID, &b.ItemID, &b.PurchaseLineID, &b.ContainerID,
		&b.PurchaseDate, &orig, &avail, &price, &cog, &cost, &b.Currency, &rate)
	if err != nil {
		return books.Batch{}, err
	}
	for _, p := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&b.OriginalQty, orig}, {&b.AvailableQty, avail}, {&b.UnitPrice, price},
		{&b.COGPerUnit, cog}, {&b.CostPerUnit, cost}, {&b.Rate, rate},
	} {
		if *p.dst, err = scanDec(p.src); err != nil {
			return books.Batch{}, err
		}
	}
	return b, nil
}

func (s *Store) queryBatches(ctx context.Context, where string, args ...any) ([]books.Batch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+batchCols+` FROM batches WHERE `+where+` ORDER BY purchase_date, seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []books.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) Batches(ctx context.Context, marketID uuid.UUID) ([]books.Batch, error) {
	return s.queryBatches(ctx, `market_id = $1`, marketID)
}

func (s *Store) BatchesByItem(ctx context.Context, marketID, itemID uuid.UUID) ([]books.Batch, error) {
	return s.queryBatches(ctx, `market_id = $1 AND item_id = $2 AND available_qty > 0`, marketID, itemID)
}

func (s *Store) AllocationsForSale(ctx context.Context, marketID, saleID uuid.UUID) ([]books.Allocation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.sale_line_id, a.batch_id, a.quantity, a.cost_per_unit, a.total_cost
		 FROM allocations a
		 JOIN sale_lines sl ON sl.id = a.sale_line_id
		 JOIN sales s ON s.id = sl.sale_id
		 WHERE s.market_id = $1 AND s.id = $2
		 ORDER BY a.id`, marketID, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []books.Allocation
	for rows.Next() {
		var a books.Allocation
		var qty, cost, total string
		if err := rows.Scan(&a.ID, &a.SaleLineID, &a.BatchID, &qty, &cost, &total); err != nil {
			return nil, err
		}
		if a.Quantity, err = scanDec(qty); err != nil {
			return nil, err
		}
		if a.CostPerUnit, err = scanDec(cost); err != nil {
			return nil, err
		}
		if a.TotalCost, err = scanDec(total); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) SaveAllocations(ctx context.Context, _ uuid.UUID, allocs []books.Allocation, batches []books.Batch) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, a := range allocs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO allocations (id, sale_line_id, batch_id, quantity, cost_per_unit, total_cost)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				a.ID, a.SaleLineID, a.BatchID, a.Quantity.String(), a.CostPerUnit.String(), a.TotalCost.String()); err != nil {
				return err
			}
		}
		for _, b := range batches {
			tag, err := tx.Exec(ctx,
				`UPDATE batches SET available_qty = $2 WHERE id = $1`, b.ID, b.AvailableQty.String())
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: batch %s", errs.ErrNotFound, b.ID)
			}
		}
		return nil
	})
}

func (s *Store) CommitPolicy(ctx context.Context, marketID uuid.UUID, policy books.Policy, batches []books.Batch, allocs []books.Allocation) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM allocations WHERE sale_line_id IN (
			   SELECT sl.id FROM sale_lines sl JOIN sales s ON s.id = sl.sale_id WHERE s.market_id = $1)`,
			marketID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM batches WHERE market_id = $1`, marketID); err != nil {
			return err
		}
		for _, b := range batches {
			b.MarketID = marketID
			if err := insertBatch(ctx, tx, b); err != nil {
				return err
			}
		}
		for _, a := range allocs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO allocations (id, sale_line_id, batch_id, quantity, cost_per_unit, total_cost)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				a.ID, a.SaleLineID, a.BatchID, a.Quantity.String(), a.CostPerUnit.String(), a.TotalCost.String()); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `UPDATE markets SET policy = $2 WHERE id = $1`, marketID, policy)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: market %s", errs.ErrNotFound, marketID)
		}
		return nil
	})
}

// safe ledger

const entryCols = `id, seq, market_id, type, amount, currency, rate, base_amount, date,
	description, payment_id, sale_id, expense_id, balance_after, metadata, created_at`

func scanEntry(row pgx.Row) (books.SafeEntry, error) {
	var e books.SafeEntry
	var amount, rate, base, after string
	var paymentID, saleID, expenseID *uuid.UUID
	var mdBytes []byte
	err := row.Scan(&e.ID, &e.Seq, &e.MarketID, &e.Type, &amount, &e.Currency, &rate, &base,
		&e.Date, &e.Description, &paymentID, &saleID, &expenseID, &after, &mdBytes, &e.CreatedAt)
	if err != nil {
		return books.SafeEntry{}, err
	}
	if paymentID != nil {
		e.PaymentID = *paymentID
	}
	if saleID != nil {
		e.SaleID = *saleID
	}
	if expenseID != nil {
		e.ExpenseID = *expenseID
	}
	e.Metadata = decodeMetadata(mdBytes)
	for _, p := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&e.Amount, amount}, {&e.Rate, rate}, {&e.BaseAmount, base}, {&e.BalanceAfter, after},
	} {
		if *p.dst, err = scanDec(p.src); err != nil {
			return books.SafeEntry{}, err
		}
	}
	return e, nil
}

func (s *Store) Entries(ctx context.Context, marketID uuid.UUID) ([]books.SafeEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryCols+` FROM safe_entries WHERE market_id = $1 ORDER BY date, seq`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []books.SafeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Entry(ctx context.Context, marketID, id uuid.UUID) (books.SafeEntry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx,
		`SELECT `+entryCols+` FROM safe_entries WHERE id = $1 AND market_id = $2`, id, marketID))
	if err != nil {
		return books.SafeEntry{}, notFound(err, "safe entry", id)
	}
	return e, nil
}

func (s *Store) SafeEntryByPayment(ctx context.Context, marketID, paymentID uuid.UUID) (books.SafeEntry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx,
		`SELECT `+entryCols+` FROM safe_entries WHERE market_id = $1 AND payment_id = $2`, marketID, paymentID))
	if err != nil {
		return books.SafeEntry{}, notFound(err, "safe entry for payment", paymentID)
	}
	return e, nil
}

func (s *Store) SaveEntry(ctx context.Context, e books.SafeEntry) (books.SafeEntry, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO safe_entries (id, market_id, type, amount, currency, rate, base_amount, date,
		   description, payment_id, sale_id, expense_id, balance_after, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING seq`,
		e.ID, e.MarketID, e.Type, e.Amount.String(), e.Currency, e.Rate.String(), e.BaseAmount.String(),
		e.Date, e.Description, nilIfZero(e.PaymentID), nilIfZero(e.SaleID), nilIfZero(e.ExpenseID),
		e.BalanceAfter.String(), encodeMetadata(e.Metadata), e.CreatedAt).Scan(&e.Seq)
	return e, err
}

func (s *Store) UpdateEntry(ctx context.Context, e books.SafeEntry) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE safe_entries SET amount = $2, currency = $3, rate = $4, base_amount = $5,
		   date = $6, description = $7, metadata = $8
		 WHERE id = $1`,
		e.ID, e.Amount.String(), e.Currency, e.Rate.String(), e.BaseAmount.String(),
		e.Date, e.Description, encodeMetadata(e.Metadata))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: safe entry %s", errs.ErrNotFound, e.ID)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, marketID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM safe_entries WHERE id = $1 AND market_id = $2`, id, marketID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: safe entry %s", errs.ErrNotFound, id)
	}
	return nil
}

func (s *Store) RewriteBalances(ctx context.Context, marketID uuid.UUID, entries []books.SafeEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, e := range entries {
			tag, err := tx.Exec(ctx,
				`UPDATE safe_entries SET balance_after = $3 WHERE id = $1 AND market_id = $2`,
				e.ID, marketID, e.BalanceAfter.String())
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: safe entry %s", errs.ErrNotFound, e.ID)
			}
		}
		return nil
	})
}
