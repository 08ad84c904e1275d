package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hrygo/yapper/store"
)

const entryColumns = `id, owner_id, display_id, content, normalized_content, embedding, created_ts, updated_ts`

func isDisplayIDConflict(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) &&
		sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE &&
		strings.Contains(sqliteErr.Error(), "display_id")
}

func (d *DB) CreateEntry(ctx context.Context, create *store.Entry) (*store.Entry, error) {
	stmt := `
		INSERT INTO entry (` + entryColumns + `)
		SELECT ?, ?, MAX(COUNT(*), COALESCE(MAX(display_id), 0)) + 1, ?, ?, ?, ?, ?
		FROM entry
		WHERE owner_id = ?
		RETURNING display_id
	`
	err := d.db.QueryRowContext(ctx, stmt,
		create.ID,
		create.OwnerID,
		create.Content,
		create.NormalizedContent,
		encodeVector(create.Embedding),
		create.CreatedTs,
		create.UpdatedTs,
		create.OwnerID,
	).Scan(&create.DisplayID)
	if err != nil {
		if isDisplayIDConflict(err) {
			return nil, store.ErrDisplayIDConflict
		}
		return nil, errors.Wrap(err, "failed to create entry")
	}
	return create, nil
}

func (d *DB) ListEntries(ctx context.Context, find *store.FindEntry) ([]*store.Entry, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.OwnerID; v != nil {
		where, args = append(where, "owner_id = ?"), append(args, *v)
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
		query, args = query+" LIMIT ?", append(args, *find.Limit)
		if find.Offset != nil {
			query, args = query+" OFFSET ?", append(args, *find.Offset)
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
		var blob []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.OwnerID,
			&entry.DisplayID,
			&entry.Content,
			&normalized,
			&blob,
			&entry.CreatedTs,
			&entry.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan entry")
		}
		entry.NormalizedContent = normalized
		if entry.Embedding, err = decodeVector(blob); err != nil {
			return nil, errors.Wrapf(err, "entry %s", entry.ID)
		}
		list = append(list, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

func (d *DB) UpdateEntry(ctx context.Context, update *store.UpdateEntry) error {
	set, args := []string{"updated_ts = ?"}, []any{update.UpdatedTs}

	if v := update.Content; v != nil {
		set, args = append(set, "content = ?"), append(args, *v)
	}
	if update.ClearNormalizedContent {
		set = append(set, "normalized_content = NULL")
	} else if v := update.NormalizedContent; v != nil {
		set, args = append(set, "normalized_content = ?"), append(args, *v)
	}
	if update.ClearEmbedding {
		set = append(set, "embedding = NULL")
	}

	stmt := `UPDATE entry SET ` + strings.Join(set, ", ") + ` WHERE id = ? AND owner_id = ?`
	args = append(args, update.ID, update.OwnerID)
	if v := update.ExpectedContent; v != nil {
		stmt, args = stmt+" AND content = ?", append(args, *v)
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
	result, err := d.db.ExecContext(ctx, `DELETE FROM entry WHERE id = ? AND owner_id = ?`, delete.ID, delete.OwnerID)
	if err != nil {
		return errors.Wrap(err, "failed to delete entry")
	}
	return expectOneRow(result)
}

func (d *DB) NextDisplayID(ctx context.Context, ownerID string) (int32, error) {
	var next int32
	err := d.db.QueryRowContext(ctx,
		`SELECT MAX(COUNT(*), COALESCE(MAX(display_id), 0)) + 1 FROM entry WHERE owner_id = ?`,
		ownerID,
	).Scan(&next)
	if err != nil {
		return 0, errors.Wrap(err, "failed to compute next display id")
	}
	return next, nil
}

func (d *DB) UpdateEntryEmbedding(ctx context.Context, update *store.UpdateEntryEmbedding) error {
	stmt := `UPDATE entry SET embedding = ?, updated_ts = ? WHERE id = ?`
	args := []any{encodeVector(update.Embedding), update.UpdatedTs, update.ID}
	if v := update.NormalizedContent; v != nil {
		stmt, args = stmt+" AND embedding IS NULL AND normalized_content = ?", append(args, *v)
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
