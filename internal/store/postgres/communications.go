package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/mouneyrac/moodle-local-hub/internal/model"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
)

const communicationTable = "hub_communication"

// ResolveCommunication returns the communication bound to the given token.
func (s *Store) ResolveCommunication(ctx context.Context, token string) (*model.Communication, error) {
	query, args, err := builder.
		Select("id", "token", "siteid", "remoteurl").
		From(communicationTable).
		Where(sq.Eq{"token": token}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build communication query: %w", err)
	}

	var comm model.Communication
	if err := pgxscan.Get(ctx, s.q, &comm, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve communication: %w", err)
	}
	return &comm, nil
}

// UpsertCommunication inserts the binding, or rebinds the token when it
// already exists. At most one communication per token.
func (s *Store) UpsertCommunication(ctx context.Context, comm *model.Communication) error {
	query, args, err := builder.Insert(communicationTable).
		Columns("token", "siteid", "remoteurl").
		Values(comm.Token, comm.SiteID, comm.RemoteURL).
		Suffix("ON CONFLICT (token) DO UPDATE SET siteid = excluded.siteid, remoteurl = excluded.remoteurl RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build communication upsert: %w", err)
	}
	if err := s.q.QueryRow(ctx, query, args...).Scan(&comm.ID); err != nil {
		return fmt.Errorf("failed to upsert communication: %w", err)
	}
	return nil
}

// DeleteCommunication revokes the token's binding.
func (s *Store) DeleteCommunication(ctx context.Context, token string) error {
	query, args, err := builder.Delete(communicationTable).Where(sq.Eq{"token": token}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build communication delete: %w", err)
	}
	if _, err := s.q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete communication: %w", err)
	}
	return nil
}
