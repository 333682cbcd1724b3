package records

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/common"
	"github.com/dmitrijs2005/tiergate/internal/dbx"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"github.com/dmitrijs2005/tiergate/internal/tier"
	"github.com/jackc/pgx/v5/pgconn"
)

const selectColumns = `id, user_number, is_early_adopter, has_account, locked_tier, current_tier,
		referral_code, referred_by, referral_credited, referral_count, profile_complete,
		weekly_engagement, identity_id, installed_at, last_active_at, account_linked_at`

// PostgresStore implements Store over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresStore struct {
	db dbx.DBTX
}

// NewPostgresStore constructs a store bound to the given DBTX.
func NewPostgresStore(db dbx.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.UserRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM user_records WHERE id = $1`

	u, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classify(err)
	}
	return u, nil
}

// MergeWrite upserts the given columns. Columns are emitted in a stable
// order so the statement text only depends on the set of fields.
func (s *PostgresStore) MergeWrite(ctx context.Context, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, string(f))
	}
	slices.Sort(names)

	args := make([]any, 0, len(names)+1)
	args = append(args, id)
	placeholders := make([]string, 0, len(names))
	updates := make([]string, 0, len(names))
	for i, name := range names {
		v, err := encodeValue(Field(name), fields[Field(name)])
		if err != nil {
			return err
		}
		args = append(args, v)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", name, name))
	}

	query := fmt.Sprintf(
		`INSERT INTO user_records (id, %s) VALUES ($1, %s) ON CONFLICT (id) DO UPDATE SET %s`,
		strings.Join(names, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return classify(err)
	}
	return nil
}

func (s *PostgresStore) IncrementCounter(ctx context.Context, counterID string) (uint64, error) {
	query :=
		`INSERT INTO counters (id, value) VALUES ($1, 1)
		 ON CONFLICT (id) DO UPDATE SET value = counters.value + 1
		 RETURNING value`

	var value int64
	if err := s.db.QueryRowContext(ctx, query, counterID).Scan(&value); err != nil {
		return 0, classify(err)
	}
	return uint64(value), nil
}

func (s *PostgresStore) ReadCounter(ctx context.Context, counterID string) (uint64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM counters WHERE id = $1`, counterID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classify(err)
	}
	return uint64(value), nil
}

func (s *PostgresStore) WriteCounter(ctx context.Context, counterID string, value uint64) error {
	query :=
		`INSERT INTO counters (id, value) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET value = GREATEST(counters.value, EXCLUDED.value)`

	if _, err := s.db.ExecContext(ctx, query, counterID, int64(value)); err != nil {
		return classify(err)
	}
	return nil
}

func (s *PostgresStore) IncrementReferralCount(ctx context.Context, id string) (uint32, error) {
	query :=
		`UPDATE user_records SET referral_count = referral_count + 1
		 WHERE id = $1
		 RETURNING referral_count`

	var count int64
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		return 0, classify(err)
	}
	return uint32(count), nil
}

func (s *PostgresStore) QueryByField(ctx context.Context, field Field, value any) ([]*models.UserRecord, error) {
	if !field.Queryable() {
		return nil, fmt.Errorf("field %q is not queryable", field)
	}
	v, err := encodeValue(field, value)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + selectColumns + ` FROM user_records WHERE ` + string(field) + ` = $1`
	return s.queryRecords(ctx, query, v)
}

func (s *PostgresStore) ListStale(ctx context.Context, before time.Time, limit int) ([]*models.UserRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM user_records
		 WHERE has_account = FALSE AND last_active_at < $1
		 ORDER BY last_active_at
		 LIMIT $2`
	return s.queryRecords(ctx, query, before, limit)
}

// Delete removes the record together with its tier history.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	del := func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tier_changes WHERE user_id = $1`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM user_records WHERE id = $1`, id)
		return err
	}

	var err error
	if b, ok := s.db.(dbx.TxBeginner); ok {
		err = dbx.WithTx(ctx, b, nil, del)
	} else {
		err = del(ctx, s.db)
	}
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *PostgresStore) queryRecords(ctx context.Context, query string, args ...any) ([]*models.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []*models.UserRecord
	for rows.Next() {
		u, err := scanRecord(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.UserRecord, error) {
	var (
		u                         models.UserRecord
		userNumber, referralCount int64
		locked, current           int64
		engagement                []byte
		linkedAt                  sql.NullTime
	)
	err := row.Scan(&u.ID, &userNumber, &u.IsEarlyAdopter, &u.HasAccount, &locked, &current,
		&u.ReferralCode, &u.ReferredBy, &u.ReferralCredited, &referralCount, &u.ProfileComplete,
		&engagement, &u.IdentityID, &u.InstalledAt, &u.LastActiveAt, &linkedAt)
	if err != nil {
		return nil, err
	}

	u.UserNumber = uint64(userNumber)
	u.ReferralCount = uint32(referralCount)
	if u.LockedTier, err = tier.Parse(locked); err != nil {
		return nil, fmt.Errorf("record %s: locked tier: %w", u.ID, err)
	}
	if u.CurrentTier, err = tier.Parse(current); err != nil {
		return nil, fmt.Errorf("record %s: current tier: %w", u.ID, err)
	}
	if len(engagement) > 0 {
		u.WeeklyEngagement = models.Engagement(engagement)
	}
	if linkedAt.Valid {
		t := linkedAt.Time
		u.AccountLinkedAt = &t
	}
	return &u, nil
}

// encodeValue converts a field value to its column representation.
func encodeValue(field Field, v any) (any, error) {
	switch field {
	case FieldUserNumber:
		n, ok := v.(uint64)
		if !ok {
			break
		}
		return int64(n), nil
	case FieldLockedTier, FieldCurrentTier:
		t, ok := v.(tier.Tier)
		if !ok {
			break
		}
		if !t.Valid() {
			return nil, fmt.Errorf("field %q: invalid tier %d", field, t)
		}
		return int64(t), nil
	case FieldWeeklyEngagement:
		e, ok := v.(models.Engagement)
		if !ok {
			break
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		return []byte(e), nil
	case FieldAccountLinkedAt:
		t, ok := v.(*time.Time)
		if !ok {
			break
		}
		if t == nil {
			return nil, nil
		}
		return *t, nil
	case FieldIsEarlyAdopter, FieldHasAccount, FieldProfileComplete, FieldReferralCredited:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case FieldReferralCode, FieldReferredBy, FieldIdentityID:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case FieldInstalledAt, FieldLastActiveAt:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	default:
		return nil, fmt.Errorf("unknown field %q", field)
	}
	return nil, fmt.Errorf("field %q: unexpected type %T", field, v)
}

// classify maps driver errors onto the store's error contract.
func classify(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return common.ErrRecordNotFound
	case isUnavailable(err):
		return fmt.Errorf("%w: %w", common.ErrRemoteUnavailable, err)
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
