package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	loadSessionQuery = `
		SELECT payload FROM purchase_sessions
		WHERE session_id = $1 AND expires_at > NOW()`

	createSessionQuery = `
		INSERT INTO purchase_sessions (session_id, site_id, state, submit_number, payload, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)`

	updateSessionQuery = `
		UPDATE purchase_sessions
		SET state = $2, submit_number = $3, payload = $4, updated_at = $5
		WHERE session_id = $1`

	insertAttemptQuery = `
		INSERT INTO purchase_attempts (transaction_id, session_id, item_id, biller_name, state, routing_code, amount, is_cross_sale, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (transaction_id) DO NOTHING`

	listAttemptsQuery = `
		SELECT transaction_id, item_id, biller_name, state, routing_code, amount, is_cross_sale, created_at
		FROM purchase_attempts
		WHERE session_id = $1
		ORDER BY created_at, transaction_id`
)

// Attempt is one row of the append-only attempt ledger
type Attempt struct {
	CreatedAt     time.Time
	Amount        decimal.Decimal
	TransactionID string
	ItemID        string
	BillerName    string
	State         domain.TransactionState
	RoutingCode   string
	IsCrossSale   bool
}

// SessionStore persists purchase aggregates as JSONB documents and mirrors
// every transaction attempt into purchase_attempts
type SessionStore struct {
	db     ports.DBPort
	logger *zap.Logger
}

// NewSessionStore creates a new PostgreSQL session store
func NewSessionStore(db ports.DBPort, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		db:     db,
		logger: logger,
	}
}

// Create stores a freshly initialized purchase that expires after ttl
func (s *SessionStore) Create(ctx context.Context, purchase *domain.PurchaseProcess, ttl time.Duration) error {
	payload, err := json.Marshal(purchase)
	if err != nil {
		return fmt.Errorf("marshal purchase: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.GetDB().Exec(ctx, createSessionQuery,
		purchase.SessionID,
		purchase.SiteID,
		string(purchase.State),
		purchase.GatewaySubmitNumber,
		payload,
		now,
		now.Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("insert purchase session: %w", err)
	}
	return nil
}

// Load returns the purchase stored under sessionID
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*domain.PurchaseProcess, error) {
	var payload []byte
	err := s.db.GetDB().QueryRow(ctx, loadSessionQuery, sessionID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPurchaseNotFound.WithDetail("session_id", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load purchase session: %w", err)
	}

	var purchase domain.PurchaseProcess
	if err := json.Unmarshal(payload, &purchase); err != nil {
		return nil, fmt.Errorf("unmarshal purchase session %s: %w", sessionID, err)
	}
	if purchase.BillerSubmits == nil {
		purchase.BillerSubmits = make(map[string]int)
	}
	return &purchase, nil
}

// Update writes the aggregate and appends attempts not yet in the ledger,
// both in one transaction
func (s *SessionStore) Update(ctx context.Context, purchase *domain.PurchaseProcess) error {
	payload, err := json.Marshal(purchase)
	if err != nil {
		return fmt.Errorf("marshal purchase: %w", err)
	}

	updatedAt := purchase.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	return s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateSessionQuery,
			purchase.SessionID,
			string(purchase.State),
			purchase.GatewaySubmitNumber,
			payload,
			updatedAt,
		)
		if err != nil {
			return fmt.Errorf("update purchase session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrPurchaseNotFound.WithDetail("session_id", purchase.SessionID)
		}

		for _, item := range purchase.Items {
			for _, t := range item.Transactions {
				if err := insertAttempt(ctx, tx, purchase.SessionID, item, t); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func insertAttempt(ctx context.Context, tx pgx.Tx, sessionID string, item *domain.InitializedItem, t *domain.Transaction) error {
	amount, err := decimalToNumeric(item.ChargeInfo.InitialAmount)
	if err != nil {
		return fmt.Errorf("convert amount for %s: %w", t.ID, err)
	}

	_, err = tx.Exec(ctx, insertAttemptQuery,
		t.ID,
		sessionID,
		item.ID,
		t.BillerName,
		string(t.State),
		nullText(t.RoutingCode),
		amount,
		item.IsCrossSale,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt %s: %w", t.ID, err)
	}
	return nil
}

// Attempts lists the ledger rows of a session in attempt order
func (s *SessionStore) Attempts(ctx context.Context, sessionID string) ([]Attempt, error) {
	rows, err := s.db.GetDB().Query(ctx, listAttemptsQuery, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var (
			a           Attempt
			state       string
			routingCode pgtype.Text
			amount      pgtype.Numeric
		)
		if err := rows.Scan(&a.TransactionID, &a.ItemID, &a.BillerName, &state, &routingCode, &amount, &a.IsCrossSale, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.State = domain.TransactionState(state)
		a.RoutingCode = routingCode.String
		if a.Amount, err = pgNumericToDecimal(amount); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// PurgeExpired deletes sessions past their expiry and returns how many were removed
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.GetDB().Exec(ctx, `DELETE FROM purchase_sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("Purged expired purchase sessions", zap.Int64("count", n))
	}
	return tag.RowsAffected(), nil
}
