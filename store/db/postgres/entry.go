package postgres

import (
	"context"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/yapper/store"
)

const uniqueViolation = "23505"

const entryColumns = `id, owner_id, display_id, content, normalized_content, embedding, created_ts, updated_ts`

func vectorArg(v []float32) any {
	if v == nil {
		return nil
	}
	return pgvector.NewVector(v)
}

func (d *DB) CreateEntry(ctx context.Context, create *store.Entry) (*store.Entry, error) {
	// display_id = max(count, highest display_id) + 1, computed in the same statement.
	stmt := `
		INSERT INTO entry (` + entryColumns + `)
		SELECT $1, $2, GREATEST(COUNT(*), COALESCE(MAX(display_id), 0)) + 1, $3, $4::text, $5::vector, $6::bigint, $7::bigint
		FROM entry
		WHERE owner_id = $2
		RETURNING display_id
	`
	err := d.db.QueryRowContext(ctx, stmt,
		create.ID,
		create.OwnerID,
		create.Content,
		create.NormalizedContent,
		vectorArg(create.Embedding),
		create.CreatedTs,
		create.UpdatedTs,
	).Scan(&create.DisplayID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == "entry_owner_display_id_key" {
			return nil, store.ErrDisplayIDConflict
		}
		return nil, errors.Wrap(err, "failed to create entry")
	}
	return create, nil
}

func (d *DB) ListEntries(ctx context.Context, find *store.FindEntry) ([]*store.Entry, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.OwnerID; v != nil {
		where, args = append(where, "owner_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.HasEmbedding; v != nil {
		if *v {
			where = append(where, "embedding IS NOT NULL")
		} else {
			where = append(where, "embedding IS NULL")
		}
	}

	query := `SELECT ` + entryColumns + ` FROM entry WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_ts DESC, display_id DESC`
	if find.Limit != nil {
		query, args = query+" LIMIT "+placeholder(len(args)+1), append(args, *find.Limit)
		if find.Offset != nil {
			query, args = query+" OFFSET "+placeholder(len(args)+1), append(args, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list entries")
	}
	defer rows.Close()

	list := []*store.Entry{}
	for rows.Next() {
		var entry store.Entry
		var normalized *string
		var vector *pgvector.Vector
		if err := rows.Scan(
			&entry.ID,
			&entry.OwnerID,
			&entry.DisplayID,
			&entry.Content,
			&normalized,
			&vector,
			&entry.CreatedTs,
			&entry.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan entry")
		}
		entry.NormalizedContent = normalized
		if vector != nil {
			entry.Embedding = vector.Slice()
		}
		list = append(list, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateEntry(ctx context.Context, update *store.UpdateEntry) error {
	set, args := []string{"updated_ts = " + placeholder(1)}, []any{update.UpdatedTs}

	if v := update.Content; v != nil {
		set, args = append(set, "content = "+placeholder(len(args)+1)), append(args, *v)
	}
	if update.ClearNormalizedContent {
		set = append(set, "normalized_content = NULL")
	} else if v := update.NormalizedContent; v != nil {
		set, args = append(set, "normalized_content = "+placeholder(len(args)+1)), append(args, *v)
	}
	if update.ClearEmbedding {
		set = append(set, "embedding = NULL")
	}

	stmt := `UPDATE entry SET ` + strings.Join(set, ", ") +
		` WHERE id = ` + placeholder(len(args)+1) + ` AND owner_id = ` + placeholder(len(args)+2)
	args = append(args, update.ID, update.OwnerID)
	if v := update.ExpectedContent; v != nil {
		stmt, args = stmt+" AND content = "+placeholder(len(args)+1), append(args, *v)
	}

	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update entry")
	}
	if update.ExpectedContent != nil {
		return expectOneRowOr(result, store.ErrEntryChanged)
	}
	return expectOneRow(result)
}

func (d *DB) DeleteEntry(ctx context.Context, delete *store.DeleteEntry) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM entry WHERE id = $1 AND owner_id = $2`, delete.ID, delete.OwnerID)
	if err != nil {
		return errors.Wrap(err, "failed to delete entry")
	}
	return expectOneRow(result)
}

func (d *DB) NextDisplayID(ctx context.Context, ownerID string) (int32, error) {
	var next int32
	err := d.db.QueryRowContext(ctx,
		`SELECT GREATEST(COUNT(*), COALESCE(MAX(display_id), 0)) + 1 FROM entry WHERE owner_id = $1`,
		ownerID,
	).Scan(&next)
	if err != nil {
		return 0, errors.Wrap(err, "failed to compute next display id")
	}
	return next, nil
}

func (d *DB) UpdateEntryEmbedding(ctx context.Context, update *store.UpdateEntryEmbedding) error {
	stmt := `UPDATE entry SET embedding = $1, updated_ts = $2 WHERE id = $3`
	args := []any{pgvector.NewVector(update.Embedding), update.UpdatedTs, update.ID}
	if v := update.NormalizedContent; v != nil {
		stmt, args = stmt+" AND embedding IS NULL AND normalized_content = $4", append(args, *v)
	}

	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update entry embedding")
	}
	if update.NormalizedContent != nil {
		return expectOneRowOr(result, store.ErrEntryChanged)
	}
	return expectOneRow(result)
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func expectOneRow(result rowsAffected) error {
	return expectOneRowOr(result, store.ErrEntryNotFound)
}

// expectOneRowOr reports errNone when the statement matched no row.
func expectOneRowOr(result rowsAffected, errNone error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errNone
	}
	return nil
}
