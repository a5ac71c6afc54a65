package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riftvanta/tms062025/internal/errs"
	"github.com/riftvanta/tms062025/internal/model"
	"github.com/riftvanta/tms062025/internal/workflow"
	"github.com/shopspring/decimal"
)

type PostgresStorage struct {
	db *pgxpool.Pool
}

func (store *PostgresStorage) initSchema(ctx context.Context) error {
	const initSchemaQuery = `
	CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'exchange',
		exchange_name TEXT NOT NULL DEFAULT '',
		contact TEXT NOT NULL DEFAULT '',
		commission_incoming NUMERIC NOT NULL DEFAULT 0,
		commission_outgoing NUMERIC NOT NULL DEFAULT 0,
		balance NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS counters (
		key TEXT PRIMARY KEY,
		value INT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		order_id TEXT UNIQUE NOT NULL,
		exchange_id INT NOT NULL REFERENCES users(id),
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'submitted',
		submitted_amount NUMERIC NOT NULL,
		final_amount NUMERIC,
		commission NUMERIC,
		bank_details TEXT NOT NULL DEFAULT '',
		sender_name TEXT NOT NULL DEFAULT '',
		admin_notes TEXT NOT NULL DEFAULT '',
		rejection_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
		approved_at TIMESTAMP,
		rejected_at TIMESTAMP,
		completed_at TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS messages (
		id SERIAL PRIMARY KEY,
		order_id INT NOT NULL REFERENCES orders(id),
		sender_id INT NOT NULL REFERENCES users(id),
		body TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		order_id INT NOT NULL REFERENCES orders(id),
		uploader_id INT NOT NULL REFERENCES users(id),
		filename TEXT NOT NULL,
		original_name TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	);`

	_, err := store.db.Exec(ctx, initSchemaQuery)
	return err
}

func NewPostgresStorage(ctx context.Context, databaseURI string) (*PostgresStorage, error) {
	db, err := pgxpool.New(ctx, databaseURI)
	if err != nil {
		return nil, err
	}

	storage := &PostgresStorage{db: db}

	if err := storage.Ping(ctx); err != nil {
		return nil, err
	}

	if err := storage.initSchema(ctx); err != nil {
		return nil, err
	}

	return storage, nil
}

func (store *PostgresStorage) Ping(ctx context.Context) error {
	return store.db.Ping(ctx)
}

// NextSequence increments the counter behind key and returns the new
// value. The row lock taken by the transaction serializes racing
// allocators for the same month, so every caller observes a distinct
// value with no gaps.
func (store *PostgresStorage) NextSequence(ctx context.Context, key string) (int, error) {
	tx, err := store.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current int
	err = tx.QueryRow(ctx, `SELECT value FROM counters WHERE key = $1 FOR UPDATE`, key).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// First allocation of the month creates the counter at 1.
		if _, err := tx.Exec(ctx, `INSERT INTO counters (key, value) VALUES ($1, 1)`, key); err != nil {
			return 0, fmt.Errorf("create counter: %w", err)
		}
		current = 0
	case err != nil:
		return 0, fmt.Errorf("read counter: %w", err)
	default:
		if _, err := tx.Exec(ctx, `UPDATE counters SET value = value + 1 WHERE key = $1`, key); err != nil {
			return 0, fmt.Errorf("increment counter: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return current + 1, nil
}

func (store *PostgresStorage) CreateUser(ctx context.Context, user model.User, passwordHash string, openingBalance decimal.Decimal) (int, error) {
	const insertUserQuery = `
		INSERT INTO users (username, password_hash, role, exchange_name, contact,
			commission_incoming, commission_outgoing, balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int
	err := store.db.QueryRow(ctx, insertUserQuery,
		user.Username, passwordHash, user.Role, user.ExchangeName, user.Contact,
		user.CommissionIncoming, user.CommissionOutgoing, openingBalance).Scan(&id)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return 0, errs.ErrUsernameAlreadyExists
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}

	return id, nil
}

// EnsureAdmin seeds the administrator account on first start.
func (store *PostgresStorage) EnsureAdmin(ctx context.Context, username, passwordHash string) error {
	const query = `
		INSERT INTO users (username, password_hash, role)
		VALUES ($1, $2, 'admin')
		ON CONFLICT (username) DO NOTHING`

	_, err := store.db.Exec(ctx, query, username, passwordHash)
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	return nil
}

const userColumns = `id, username, role, exchange_name, contact, commission_incoming, commission_outgoing`

func (s *PostgresStorage) GetUserByUsername(ctx context.Context, username string) (model.User, string, error) {
	query := `SELECT ` + userColumns + `, password_hash FROM users WHERE username = $1`

	var user model.User
	var hash string

	err := s.db.QueryRow(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.Role, &user.ExchangeName, &user.Contact,
		&user.CommissionIncoming, &user.CommissionOutgoing, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, "", errs.ErrUserNotFound
		}
		return model.User{}, "", fmt.Errorf("get user by username: %w", err)
	}

	return user, hash, nil
}

func (s *PostgresStorage) GetUserByID(ctx context.Context, id int) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user model.User

	err := s.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Username, &user.Role, &user.ExchangeName, &user.Contact,
		&user.CommissionIncoming, &user.CommissionOutgoing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, errs.ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("get user by id: %w", err)
	}

	return user, nil
}

func (s *PostgresStorage) GetBalance(ctx context.Context, userID int) (model.Balance, error) {
	const query = `SELECT balance FROM users WHERE id = $1`

	var balance model.Balance
	err := s.db.QueryRow(ctx, query, userID).Scan(&balance.Current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Balance{}, errs.ErrUserNotFound
		}
		return model.Balance{}, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}

const orderColumns = `id, order_id, exchange_id, type, status, submitted_amount, final_amount,
	commission, bank_details, sender_name, admin_notes, rejection_reason,
	created_at, updated_at, approved_at, rejected_at, completed_at`

func scanOrder(row pgx.Row) (model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID, &o.OrderID, &o.ExchangeID, &o.Type, &o.Status, &o.SubmittedAmount, &o.FinalAmount,
		&o.Commission, &o.BankDetails, &o.SenderName, &o.AdminNotes, &o.RejectionReason,
		&o.CreatedAt, &o.UpdatedAt, &o.ApprovedAt, &o.RejectedAt, &o.CompletedAt)
	return o, err
}

func (s *PostgresStorage) CreateOrder(ctx context.Context, order model.Order) (model.Order, error) {
	query := `
		INSERT INTO orders (order_id, exchange_id, type, status, submitted_amount, bank_details, sender_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + orderColumns

	row := s.db.QueryRow(ctx, query,
		order.OrderID, order.ExchangeID, order.Type, order.Status,
		order.SubmittedAmount, order.BankDetails, order.SenderName)

	created, err := scanOrder(row)
	if err != nil {
		return model.Order{}, fmt.Errorf("insert order: %w", err)
	}

	return created, nil
}

func (s *PostgresStorage) GetOrderByOrderID(ctx context.Context, orderID string) (model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_id = $1`

	order, err := scanOrder(s.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, errs.ErrOrderNotFound
		}
		return model.Order{}, fmt.Errorf("get order: %w", err)
	}

	return order, nil
}

type OrderFilter struct {
	ExchangeID int // 0 matches all exchanges
	Status     model.OrderStatus
	Type       model.OrderType
}

func (s *PostgresStorage) ListOrders(ctx context.Context, filter OrderFilter) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`

	var conds []string
	var args []interface{}
	if filter.ExchangeID != 0 {
		args = append(args, filter.ExchangeID)
		conds = append(conds, fmt.Sprintf("exchange_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}

	return orders, nil
}

// Settlement is the balance mutation applied together with a transition
// to completed.
type Settlement struct {
	ExchangeID int
	Commission decimal.Decimal
	Delta      decimal.Decimal
}

// ApplyTransition persists a workflow patch as a partial update: only
// the columns the patch names are touched. When settle is non-nil the
// exchange balance change commits in the same transaction, and a debit
// that would take the balance negative rolls the whole transition back.
func (s *PostgresStorage) ApplyTransition(ctx context.Context, orderID string, u workflow.Update, settle *Settlement) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	set := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{u.Status, u.UpdatedAt}
	add := func(column string, v interface{}) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.ApprovedAt != nil {
		add("approved_at", *u.ApprovedAt)
	}
	if u.RejectedAt != nil {
		add("rejected_at", *u.RejectedAt)
	}
	if u.CompletedAt != nil {
		add("completed_at", *u.CompletedAt)
	}
	if u.AdminNotes != nil {
		add("admin_notes", *u.AdminNotes)
	}
	if u.RejectionReason != nil {
		add("rejection_reason", *u.RejectionReason)
	}
	if settle != nil {
		add("commission", settle.Commission)
	}

	args = append(args, orderID)
	query := fmt.Sprintf("UPDATE orders SET %s WHERE order_id = $%d", strings.Join(set, ", "), len(args))

	cmdTag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return errs.ErrOrderNotFound
	}

	if settle != nil {
		var balance decimal.Decimal
		err = tx.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1 FOR UPDATE`, settle.ExchangeID).Scan(&balance)
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}

		next := balance.Add(settle.Delta)
		if next.IsNegative() {
			return errs.ErrInsufficientFunds
		}

		_, err = tx.Exec(ctx, `UPDATE users SET balance = $1 WHERE id = $2`, next, settle.ExchangeID)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *PostgresStorage) SetFinalAmount(ctx context.Context, orderID string, amount decimal.Decimal, now time.Time) error {
	const query = `UPDATE orders SET final_amount = $1, updated_at = $2 WHERE order_id = $3`

	cmdTag, err := s.db.Exec(ctx, query, amount, now, orderID)
	if err != nil {
		return fmt.Errorf("set final amount: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return errs.ErrOrderNotFound
	}

	return nil
}

func (s *PostgresStorage) AddMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	const query = `
		INSERT INTO messages (order_id, sender_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.db.QueryRow(ctx, query, msg.OrderID, msg.SenderID, msg.Body).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}

	return msg, nil
}

func (s *PostgresStorage) GetMessages(ctx context.Context, orderID int) ([]model.Message, error) {
	const query = `
		SELECT m.id, m.order_id, m.sender_id, u.username, m.body, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.order_id = $1
		ORDER BY m.created_at ASC`

	rows, err := s.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var list []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.OrderID, &m.SenderID, &m.Sender, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		list = append(list, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return list, nil
}

func (s *PostgresStorage) AddAttachment(ctx context.Context, att model.Attachment) error {
	const query = `
		INSERT INTO attachments (id, order_id, uploader_id, filename, original_name, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.Exec(ctx, query,
		att.ID, att.OrderID, att.UploaderID, att.Filename, att.OriginalName, att.SizeBytes)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetAttachment(ctx context.Context, id string) (model.Attachment, error) {
	const query = `
		SELECT id, order_id, uploader_id, filename, original_name, size_bytes, created_at
		FROM attachments WHERE id = $1`

	var att model.Attachment
	err := s.db.QueryRow(ctx, query, id).Scan(
		&att.ID, &att.OrderID, &att.UploaderID, &att.Filename, &att.OriginalName, &att.SizeBytes, &att.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Attachment{}, errs.ErrOrderNotFound
		}
		return model.Attachment{}, fmt.Errorf("get attachment: %w", err)
	}

	return att, nil
}

func (s *PostgresStorage) ListAttachments(ctx context.Context, orderID int) ([]model.Attachment, error) {
	const query = `
		SELECT id, order_id, uploader_id, filename, original_name, size_bytes, created_at
		FROM attachments WHERE order_id = $1
		ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var list []model.Attachment
	for rows.Next() {
		var att model.Attachment
		if err := rows.Scan(&att.ID, &att.OrderID, &att.UploaderID, &att.Filename, &att.OriginalName, &att.SizeBytes, &att.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		list = append(list, att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return list, nil
}

// GetOrdersSubmittedSince feeds the admin notifier.
func (s *PostgresStorage) GetOrdersSubmittedSince(ctx context.Context, since time.Time) ([]model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = 'submitted' AND created_at > $1 ORDER BY created_at ASC`

	rows, err := s.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("get submitted orders: %w", err)
	}
	defer rows.Close()

	var list []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submitted order: %w", err)
		}
		list = append(list, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return list, nil
}
