package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/database"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/domain"
)

// SQLStore implements Store on the products and tracking_records tables.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a history store over db. The schema must already exist.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

type productRow struct {
	ID        string             `db:"id"`
	Platform  string             `db:"platform"`
	URL       string             `db:"url"`
	Name      string             `db:"name"`
	ImageURL  sql.NullString     `db:"image_url"`
	CreatedAt database.Timestamp `db:"created_at"`
}

func (r productRow) product() *domain.Product {
	p := &domain.Product{
		ID:        r.ID,
		Platform:  domain.Platform(r.Platform),
		URL:       r.URL,
		Name:      r.Name,
		CreatedAt: r.CreatedAt.Time,
	}
	if r.ImageURL.Valid {
		img := r.ImageURL.String
		p.ImageURL = &img
	}
	return p
}

type recordRow struct {
	Seq        int64              `db:"seq"`
	Price      string             `db:"price"`
	RecordedAt database.Timestamp `db:"recorded_at"`
	Seller     sql.NullString     `db:"seller"`
	Coupon     sql.NullString     `db:"coupon"`
}

func (r recordRow) record() (domain.TrackingRecord, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return domain.TrackingRecord{}, fmt.Errorf("decode price of record %d: %w", r.Seq, err)
	}

	rec := domain.TrackingRecord{Price: price, Timestamp: r.RecordedAt.Time}
	if r.Seller.Valid {
		rec.Seller = &domain.SellerInfo{}
		if err = json.Unmarshal([]byte(r.Seller.String), rec.Seller); err != nil {
			return domain.TrackingRecord{}, fmt.Errorf("decode seller of record %d: %w", r.Seq, err)
		}
	}
	if r.Coupon.Valid {
		rec.Discount = &domain.Discount{}
		if err = json.Unmarshal([]byte(r.Coupon.String), rec.Discount); err != nil {
			return domain.TrackingRecord{}, fmt.Errorf("decode coupon of record %d: %w", r.Seq, err)
		}
	}
	return rec, nil
}

// CreateProduct inserts product, assigning an id and creation time when unset.
func (s *SQLStore) CreateProduct(ctx context.Context, product *domain.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = s.now().UTC()
	}

	var image sql.NullString
	if product.ImageURL != nil {
		image = sql.NullString{String: *product.ImageURL, Valid: true}
	}

	query := s.db.Rebind(`
		INSERT INTO products (id, platform, url, name, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err := s.db.ExecContext(ctx, query,
		product.ID,
		string(product.Platform),
		product.URL,
		product.Name,
		image,
		database.NewTimestamp(product.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create product %s: %w", product.ID, err)
	}
	return nil
}

// GetProduct retrieves a product by its ID.
func (s *SQLStore) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var row productRow
	query := s.db.Rebind(`SELECT id, platform, url, name, image_url, created_at FROM products WHERE id = ?`)

	if err := s.db.GetContext(ctx, &row, query, productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return row.product(), nil
}

// ListProducts returns every tracked product, oldest first.
func (s *SQLStore) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	var rows []productRow
	query := `SELECT id, platform, url, name, image_url, created_at FROM products ORDER BY created_at, id`

	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	products := make([]*domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, row.product())
	}
	return products, nil
}

// DeleteProduct removes the product and its records in one transaction.
func (s *SQLStore) DeleteProduct(ctx context.Context, productID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM tracking_records WHERE product_id = ?`), productID); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM products WHERE id = ?`), productID)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// AppendRecord adds record to the end of the product's history. The check
// against the latest stored timestamp and the insert share one transaction.
func (s *SQLStore) AppendRecord(ctx context.Context, productID string, record domain.TrackingRecord) error {
	seller, err := encodeOptional(record.Seller)
	if err != nil {
		return fmt.Errorf("encode seller: %w", err)
	}
	coupon, err := encodeOptional(record.Discount)
	if err != nil {
		return fmt.Errorf("encode coupon: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err = tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM products WHERE id = ?`), productID); err != nil {
		return fmt.Errorf("failed to check product: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}

	var last struct {
		Seq        sql.NullInt64                `db:"seq"`
		RecordedAt sql.Null[database.Timestamp] `db:"recorded_at"`
	}
	lastQuery := tx.Rebind(`
		SELECT seq, recorded_at FROM tracking_records
		WHERE product_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`)
	err = tx.GetContext(ctx, &last, lastQuery, productID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read latest record: %w", err)
	}

	if last.RecordedAt.Valid && record.Timestamp.Before(last.RecordedAt.V.Time) {
		return fmt.Errorf("%w: %s at %s, latest %s", ErrOutOfOrder, productID,
			database.FormatTime(record.Timestamp), database.FormatTime(last.RecordedAt.V.Time))
	}

	insert := tx.Rebind(`
		INSERT INTO tracking_records (product_id, seq, price, recorded_at, seller, coupon)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	_, err = tx.ExecContext(ctx, insert,
		productID,
		last.Seq.Int64+1,
		record.Price.String(),
		database.NewTimestamp(record.Timestamp),
		seller,
		coupon,
	)
	if err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

// Records returns the product's history in append order.
func (s *SQLStore) Records(ctx context.Context, productID string) ([]domain.TrackingRecord, error) {
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	var rows []recordRow
	query := s.db.Rebind(`
		SELECT seq, price, recorded_at, seller, coupon
		FROM tracking_records
		WHERE product_id = ?
		ORDER BY seq
	`)
	if err := s.db.SelectContext(ctx, &rows, query, productID); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	records := make([]domain.TrackingRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func encodeOptional[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
