package pg

import (
	"context"
	"database/sql"

	"coursebase.org/internal/auth"
)

// OAuth connections -----------------------------------------------------

type connectionStore struct{ db *sql.DB }

const connectionColumns = `
	id, user_id, provider, provider_user_id,
	coalesce(email, ''), coalesce(name, ''), coalesce(avatar_url, ''),
	coalesce(access_token, ''), coalesce(refresh_token, ''),
	token_expires_at, created_at, updated_at`

func scanConnection(row *sql.Row) (*auth.OAuthConnection, error) {
	var c auth.OAuthConnection
	err := row.Scan(
		&c.ID, &c.UserID, &c.Provider, &c.ProviderUserID,
		&c.Email, &c.Name, &c.AvatarURL,
		&c.AccessToken, &c.RefreshToken,
		&c.TokenExpiresAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &c, nil
}

func (s *connectionStore) Create(ctx context.Context, conn *auth.OAuthConnection) error {
	_, err := s.db.ExecContext(ctx, `
		insert into oauth_connections (
			id, user_id, provider, provider_user_id,
			email, name, avatar_url,
			access_token, refresh_token, token_expires_at,
			created_at, updated_at
		) values ($1, $2, $3, $4, nullif($5, ''), nullif($6, ''), nullif($7, ''),
			nullif($8, ''), nullif($9, ''), $10, $11, $12)
	`, conn.ID, conn.UserID, conn.Provider, conn.ProviderUserID,
		conn.Email, conn.Name, conn.AvatarURL,
		conn.AccessToken, conn.RefreshToken, conn.TokenExpiresAt,
		conn.CreatedAt, conn.UpdatedAt)
	return mapWriteError(err)
}

func (s *connectionStore) FindByProviderIdentity(ctx context.Context, provider auth.Provider, providerUserID string) (*auth.OAuthConnection, error) {
	return scanConnection(s.db.QueryRowContext(ctx, `
		select `+connectionColumns+`
		from oauth_connections where provider = $1 and provider_user_id = $2
	`, provider, providerUserID))
}

func (s *connectionStore) FindByUserAndProvider(ctx context.Context, userID string, provider auth.Provider) (*auth.OAuthConnection, error) {
	return scanConnection(s.db.QueryRowContext(ctx, `
		select `+connectionColumns+`
		from oauth_connections where user_id = $1 and provider = $2
	`, userID, provider))
}

func (s *connectionStore) ListByUser(ctx context.Context, userID string) ([]*auth.OAuthConnection, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+connectionColumns+`
		from oauth_connections where user_id = $1 order by provider
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*auth.OAuthConnection
	for rows.Next() {
		var c auth.OAuthConnection
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Provider, &c.ProviderUserID,
			&c.Email, &c.Name, &c.AvatarURL,
			&c.AccessToken, &c.RefreshToken,
			&c.TokenExpiresAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &c)
	}
	return result, rows.Err()
}

func (s *connectionStore) Update(ctx context.Context, conn *auth.OAuthConnection) error {
	res, err := s.db.ExecContext(ctx, `
		update oauth_connections set
			email = nullif($2, ''), name = nullif($3, ''), avatar_url = nullif($4, ''),
			access_token = nullif($5, ''), refresh_token = nullif($6, ''),
			token_expires_at = $7, updated_at = $8
		where id = $1
	`, conn.ID, conn.Email, conn.Name, conn.AvatarURL,
		conn.AccessToken, conn.RefreshToken, conn.TokenExpiresAt, conn.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *connectionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from oauth_connections where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Refresh tokens --------------------------------------------------------

type refreshStore struct{ db *sql.DB }

func (s *refreshStore) Create(ctx context.Context, tok *auth.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, user_id, token_hash, expires_at, created_at, revoked)
		values ($1, $2, $3, $4, $5, $6)
	`, tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt, tok.Revoked)
	return mapWriteError(err)
}

func (s *refreshStore) Find(ctx context.Context, id string) (*auth.RefreshToken, error) {
	var t auth.RefreshToken
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, expires_at, created_at, revoked
		from refresh_tokens where id = $1
	`, id).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt, &t.Revoked)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return &t, nil
}

func (s *refreshStore) MarkRevoked(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked = true where id = $1
	`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *refreshStore) MarkRevokedByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set revoked = true where user_id = $1
	`, userID)
	return err
}
