package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"habitpulse/internal/types"
)

// UserRepository reads users for fan-out and maintains their device tokens.
// User lifecycle (registration, roles) is owned by the auth service.
type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, role, active, fcm_tokens, fcm_token, created_at`

func scanUser(row pgx.Row) (*types.User, error) {
	var (
		u      types.User
		legacy *string
	)
	if err := row.Scan(&u.ID, &u.Role, &u.Active, &u.FCMTokens, &legacy, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.FCMToken = derefString(legacy)
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load user", err)
	}
	return u, nil
}

// ListActiveByRoles returns active users whose role is in roles, ordered by
// creation so fan-out order is stable between runs.
func (r *UserRepository) ListActiveByRoles(ctx context.Context, roles []string) ([]*types.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE active = true AND role = ANY($1)
		 ORDER BY created_at, id`,
		roles,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list users", err)
	}
	defer rows.Close()

	out := make([]*types.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate users", err)
	}
	return out, nil
}

// AddDeviceToken appends token to the user's token list unless present.
func (r *UserRepository) AddDeviceToken(ctx context.Context, userID, token string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET fcm_tokens = CASE WHEN $2 = ANY(fcm_tokens) THEN fcm_tokens
		                       ELSE array_append(fcm_tokens, $2) END
		 WHERE id = $1`,
		userID,
		token,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to register device token", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// RemoveDeviceToken drops token from the list and clears the legacy field
// when it holds the same value.
func (r *UserRepository) RemoveDeviceToken(ctx context.Context, userID, token string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET fcm_tokens = array_remove(fcm_tokens, $2),
		     fcm_token = NULLIF(fcm_token, $2)
		 WHERE id = $1`,
		userID,
		token,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to remove device token", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// PurgeDeviceTokens removes tokens the push transport reported as
// unregistered, across all users. Returns the number of users touched.
func (r *UserRepository) PurgeDeviceTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET fcm_tokens = ARRAY(
		       SELECT t FROM unnest(fcm_tokens) WITH ORDINALITY AS u(t, i)
		       WHERE t <> ALL($1) ORDER BY i),
		     fcm_token = CASE WHEN fcm_token = ANY($1) THEN NULL ELSE fcm_token END
		 WHERE fcm_tokens && $1 OR fcm_token = ANY($1)`,
		tokens,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to purge device tokens", err)
	}
	return tag.RowsAffected(), nil
}
