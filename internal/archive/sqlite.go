package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gridnews/pkg/contract"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS archive_index (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	doc        TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQLiteStore 将整份索引文档存为单行；Save 在单个事务内整体替换。
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite 打开（必要时创建）数据库文件。
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, contract.NewInputError("archive.path", path, "empty sqlite path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (contract.ArchiveIndex, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM archive_index WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return contract.ArchiveIndex{}, nil
	}
	if err != nil {
		return contract.ArchiveIndex{}, fmt.Errorf("load archive row: %w", err)
	}
	return decodeIndex(strings.NewReader(doc))
}

func (s *SQLiteStore) Save(ctx context.Context, idx contract.ArchiveIndex) error {
	b, err := encodeIndex(idx)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO archive_index (id, doc, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		string(b), s.now().UTC().Format(time.RFC3339))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("write archive row: %w", err)
	}
	return tx.Commit()
}

// Close 关闭数据库连接。
func (s *SQLiteStore) Close() error { return s.db.Close() }
