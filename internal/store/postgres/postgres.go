package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"merchledger/internal/domain"
	"merchledger/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the idempotent schema.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) CreateTour(ctx context.Context, tour domain.Tour) (*domain.Tour, error) {
	if tour.ID == "" || tour.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if tour.CreatedAt.IsZero() {
		tour.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tours (id, name, created_at)
		VALUES ($1,$2,$3)
	`, tour.ID, tour.Name, tour.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	created := tour
	return &created, nil
}

func (s *Store) GetTour(ctx context.Context, id string) (*domain.Tour, error) {
	var tour domain.Tour
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at
		FROM tours
		WHERE id = $1
	`, id).Scan(&tour.ID, &tour.Name, &tour.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	tour.CreatedAt = tour.CreatedAt.UTC()
	return &tour, nil
}

func (s *Store) ListTours(ctx context.Context) ([]domain.Tour, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM tours
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tours := make([]domain.Tour, 0, 16)
	for rows.Next() {
		var t domain.Tour
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		tours = append(tours, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tours, nil
}

func (s *Store) CreateShow(ctx context.Context, show domain.Show) (*domain.Show, error) {
	if show.ID == "" || show.Date.IsZero() {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shows (id, tour_id, date, venue, city)
		VALUES ($1,$2,$3,$4,$5)
	`, show.ID, nullIfEmpty(show.TourID), dateUTC(show.Date), show.Venue, show.City)
	if err != nil {
		return nil, mapError(err)
	}
	created := show
	created.Date = dateUTC(show.Date)
	return &created, nil
}

func (s *Store) GetShow(ctx context.Context, id string) (*domain.Show, error) {
	var show domain.Show
	var tourID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tour_id, date, venue, city
		FROM shows
		WHERE id = $1
	`, id).Scan(&show.ID, &tourID, &show.Date, &show.Venue, &show.City)
	if err != nil {
		return nil, mapError(err)
	}
	show.TourID = tourID.String
	show.Date = dateUTC(show.Date)
	return &show, nil
}

func (s *Store) ListShowsByTour(ctx context.Context, tourID string) ([]domain.Show, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tour_id, date, venue, city
		FROM shows
		WHERE tour_id = $1
		ORDER BY date, id
	`, tourID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shows := make([]domain.Show, 0, 32)
	for rows.Next() {
		var show domain.Show
		var tour sql.NullString
		if err := rows.Scan(&show.ID, &tour, &show.Date, &show.Venue, &show.City); err != nil {
			return nil, err
		}
		show.TourID = tour.String
		show.Date = dateUTC(show.Date)
		shows = append(shows, show)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shows, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, size, color)
		VALUES ($1,$2,$3,$4,$5)
	`, product.ID, product.Name, product.Price, product.Size, product.Color)
	if err != nil {
		return nil, mapError(err)
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, size, color
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Price, &p.Size, &p.Color)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, size, color
		FROM products
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Size, &p.Color); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, size, color
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Size, &p.Color); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateShowInventory relies on the (show_id, product_id) unique constraint;
// a concurrent duplicate surfaces as store.ErrConflict.
func (s *Store) CreateShowInventory(ctx context.Context, row domain.ShowInventory) (*domain.ShowInventory, error) {
	if row.ID == "" || row.StartInventory < 0 {
		return nil, store.ErrInvalidInput
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO show_inventories (id, show_id, product_id, start_inventory, end_inventory, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, row.ID, row.ShowID, row.ProductID, row.StartInventory, nullInt(row.EndInventory), row.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	created := row
	return &created, nil
}

const inventoryColumns = `id, show_id, product_id, start_inventory, end_inventory, updated_at`

func (s *Store) GetShowInventory(ctx context.Context, showID string, productID string) (*domain.ShowInventory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM show_inventories
		WHERE show_id = $1 AND product_id = $2
	`, showID, productID)
	return scanInventory(row)
}

func (s *Store) GetShowInventoryByID(ctx context.Context, id string) (*domain.ShowInventory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM show_inventories
		WHERE id = $1
	`, id)
	return scanInventory(row)
}

func (s *Store) ListShowInventory(ctx context.Context, showID string) ([]domain.ShowInventory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+inventoryColumns+`
		FROM show_inventories
		WHERE show_id = $1
		ORDER BY product_id
	`, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inventories := make([]domain.ShowInventory, 0, 32)
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		inventories = append(inventories, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return inventories, nil
}

func (s *Store) UpdateShowInventory(ctx context.Context, row domain.ShowInventory) (*domain.ShowInventory, error) {
	if row.StartInventory < 0 || (row.EndInventory != nil && *row.EndInventory < 0) {
		return nil, store.ErrInvalidInput
	}
	updated := s.db.QueryRowContext(ctx, `
		UPDATE show_inventories
		SET start_inventory = $3, end_inventory = $4, updated_at = now()
		WHERE show_id = $1 AND product_id = $2
		RETURNING `+inventoryColumns+`
	`, row.ShowID, row.ProductID, row.StartInventory, nullInt(row.EndInventory))
	return scanInventory(updated)
}

func (s *Store) DeleteShowInventory(ctx context.Context, showID string, productID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM show_inventories
		WHERE show_id = $1 AND product_id = $2
	`, showID, productID)
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateAdjustment(ctx context.Context, adj domain.Adjustment) (*domain.Adjustment, error) {
	if adj.ID == "" {
		return nil, store.ErrInvalidInput
	}
	if err := adj.Validate(); err != nil {
		return nil, store.ErrInvalidInput
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}
	value, kind := discountColumns(adj.Discount)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO adjustments (id, show_inventory_id, quantity, type, discount_value, discount_type, reason, user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, adj.ID, adj.ShowInventoryID, adj.Quantity, string(adj.Kind), value, kind, adj.Reason, adj.UserID, adj.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	created := adj
	return &created, nil
}

const adjustmentColumns = `a.id, a.show_inventory_id, a.quantity, a.type, a.discount_value, a.discount_type, a.reason, a.user_id, a.created_at`

func (s *Store) GetAdjustment(ctx context.Context, id string) (*domain.Adjustment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+adjustmentColumns+`
		FROM adjustments a
		WHERE a.id = $1
	`, id)
	return scanAdjustment(row)
}

func (s *Store) UpdateAdjustment(ctx context.Context, adj domain.Adjustment) (*domain.Adjustment, error) {
	if err := adj.Validate(); err != nil {
		return nil, store.ErrInvalidInput
	}
	value, kind := discountColumns(adj.Discount)
	row := s.db.QueryRowContext(ctx, `
		UPDATE adjustments a
		SET quantity = $2, type = $3, discount_value = $4, discount_type = $5, reason = $6
		WHERE a.id = $1
		RETURNING `+adjustmentColumns+`
	`, adj.ID, adj.Quantity, string(adj.Kind), value, kind, adj.Reason)
	return scanAdjustment(row)
}

func (s *Store) DeleteAdjustment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM adjustments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListAdjustmentsByInventory(ctx context.Context, showInventoryID string) ([]domain.Adjustment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+adjustmentColumns+`
		FROM adjustments a
		WHERE a.show_inventory_id = $1
		ORDER BY a.created_at, a.id
	`, showInventoryID)
	if err != nil {
		return nil, err
	}
	return collectAdjustments(rows)
}

func (s *Store) ListAdjustmentsByShow(ctx context.Context, showID string) ([]domain.Adjustment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+adjustmentColumns+`
		FROM adjustments a
		JOIN show_inventories si ON si.id = a.show_inventory_id
		WHERE si.show_id = $1
		ORDER BY a.created_at, a.id
	`, showID)
	if err != nil {
		return nil, err
	}
	return collectAdjustments(rows)
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	return mapError(err)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AssignTourRole(ctx context.Context, member domain.TourMember) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tour_members (tour_id, username, role)
		VALUES ($1,$2,$3)
	`, member.TourID, strings.ToLower(strings.TrimSpace(member.Username)), member.Role)
	return mapError(err)
}

func (s *Store) GetTourRole(ctx context.Context, username string, tourID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM tour_members WHERE username = $1 AND tour_id = $2
	`, strings.ToLower(strings.TrimSpace(username)), tourID).Scan(&role)
	if err != nil {
		return "", mapError(err)
	}
	return role, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInventory(row rowScanner) (*domain.ShowInventory, error) {
	var inv domain.ShowInventory
	var end sql.NullInt64
	if err := row.Scan(&inv.ID, &inv.ShowID, &inv.ProductID, &inv.StartInventory, &end, &inv.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	if end.Valid {
		v := int(end.Int64)
		inv.EndInventory = &v
	}
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return &inv, nil
}

func scanAdjustment(row rowScanner) (*domain.Adjustment, error) {
	var adj domain.Adjustment
	var kind string
	var value decimal.NullDecimal
	var discountType sql.NullString
	if err := row.Scan(&adj.ID, &adj.ShowInventoryID, &adj.Quantity, &kind, &value, &discountType, &adj.Reason, &adj.UserID, &adj.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	adj.Kind = domain.AdjustmentKind(kind)
	if value.Valid && discountType.Valid {
		adj.Discount = &domain.Discount{Value: value.Decimal, Type: domain.DiscountType(discountType.String)}
	}
	adj.CreatedAt = adj.CreatedAt.UTC()
	return &adj, nil
}

func collectAdjustments(rows *sql.Rows) ([]domain.Adjustment, error) {
	defer rows.Close()

	adjustments := make([]domain.Adjustment, 0, 16)
	for rows.Next() {
		adj, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, *adj)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return adjustments, nil
}

func discountColumns(d *domain.Discount) (any, any) {
	if d == nil {
		return nil, nil
	}
	return d.Value, string(d.Type)
}

// mapError translates driver errors into store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return store.ErrConflict
		case "23503":
			return store.ErrNotFound
		case "23514", "22P02":
			return store.ErrInvalidInput
		}
	}
	return err
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullInt(val *int) any {
	if val == nil {
		return nil
	}
	return *val
}
