package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)
)

// StoreConfig configures the SQLite-backed metadata store.
type StoreConfig struct {
	// CacheSizeMB is the SQLite page cache size in megabytes (default: 64).
	CacheSizeMB int
}

// DefaultStoreConfig returns sensible defaults for the metadata store.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{CacheSizeMB: 64}
}

// SQLiteStore implements MetadataStore over a local SQLite database.
// It is the per-tier backing store for project/file/chunk metadata that
// sits alongside the content-addressed snapshot files (see contentstore.go).
type SQLiteStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

var _ MetadataStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if necessary) a metadata store at path
// using the default cache size.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithConfig(path, DefaultStoreConfig())
}

// NewSQLiteStoreWithConfig opens a metadata store with a custom cache size.
func NewSQLiteStoreWithConfig(path string, cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.CacheSizeMB <= 0 {
		cfg.CacheSizeMB = DefaultStoreConfig().CacheSizeMB
	}

	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cfg.CacheSizeMB*1024),
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		root_path TEXT NOT NULL,
		project_type TEXT,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		file_count INTEGER NOT NULL DEFAULT 0,
		indexed_at INTEGER,
		version TEXT
	);

	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		path TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		mod_time INTEGER,
		content_hash TEXT,
		language TEXT,
		content_type TEXT,
		indexed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_files_project ON files(project_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_files_project_path ON files(project_id, path);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		file_id TEXT NOT NULL,
		file_path TEXT,
		content TEXT,
		raw_content TEXT,
		context TEXT,
		content_type TEXT,
		language TEXT,
		start_line INTEGER,
		end_line INTEGER,
		metadata_json TEXT,
		created_at INTEGER,
		updated_at INTEGER,
		embedding BLOB,
		embedding_model TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);

	CREATE TABLE IF NOT EXISTS symbols (
		chunk_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT,
		start_line INTEGER,
		end_line INTEGER,
		signature TEXT,
		doc_comment TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_symbols_chunk ON symbols(chunk_id);
	CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);

	CREATE TABLE IF NOT EXISTS kv_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS index_checkpoint (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		stage TEXT NOT NULL,
		total INTEGER NOT NULL,
		embedded_count INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		embedder_model TEXT
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (2);
	`
	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the underlying database handle for tooling that needs direct access.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// --- Project operations ---

func (s *SQLiteStore) SaveProject(ctx context.Context, project *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, root_path, project_type, chunk_count, file_count, indexed_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, root_path=excluded.root_path, project_type=excluded.project_type,
			chunk_count=excluded.chunk_count, file_count=excluded.file_count,
			indexed_at=excluded.indexed_at, version=excluded.version
	`, project.ID, project.Name, project.RootPath, project.ProjectType,
		project.ChunkCount, project.FileCount, timeToUnix(project.IndexedAt), project.Version)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, root_path, project_type, chunk_count, file_count, indexed_at, version
		FROM projects WHERE id = ?
	`, id)

	var p Project
	var indexedAt int64
	if err := row.Scan(&p.ID, &p.Name, &p.RootPath, &p.ProjectType, &p.ChunkCount, &p.FileCount, &indexedAt, &p.Version); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	p.IndexedAt = unixToTime(indexedAt)
	return &p, nil
}

func (s *SQLiteStore) UpdateProjectStats(ctx context.Context, id string, fileCount, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET file_count = ?, chunk_count = ? WHERE id = ?
	`, fileCount, chunkCount, id)
	if err != nil {
		return fmt.Errorf("failed to update project stats: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RefreshProjectStats(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fileCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE project_id = ?`, id).Scan(&fileCount); err != nil {
		return fmt.Errorf("failed to count files: %w", err)
	}

	var chunkCount int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks WHERE file_id IN (SELECT id FROM files WHERE project_id = ?)
	`, id).Scan(&chunkCount); err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET file_count = ?, chunk_count = ?, indexed_at = ? WHERE id = ?
	`, fileCount, chunkCount, timeToUnix(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to refresh project stats: %w", err)
	}
	return nil
}

// --- File operations ---

func (s *SQLiteStore) SaveFiles(ctx context.Context, files []*File) error {
	if len(files) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files (id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id=excluded.project_id, path=excluded.path, size=excluded.size,
			mod_time=excluded.mod_time, content_hash=excluded.content_hash,
			language=excluded.language, content_type=excluded.content_type, indexed_at=excluded.indexed_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare file upsert: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, f.ID, f.ProjectID, f.Path, f.Size,
			timeToUnix(f.ModTime), f.ContentHash, f.Language, f.ContentType, timeToUnix(f.IndexedAt)); err != nil {
			return fmt.Errorf("failed to save file %s: %w", f.Path, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) scanFile(row interface{ Scan(...any) error }) (*File, error) {
	var f File
	var modTime, indexedAt int64
	if err := row.Scan(&f.ID, &f.ProjectID, &f.Path, &f.Size, &modTime, &f.ContentHash, &f.Language, &f.ContentType, &indexedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	f.ModTime = unixToTime(modTime)
	f.IndexedAt = unixToTime(indexedAt)
	return &f, nil
}

const fileColumns = `id, project_id, path, size, mod_time, content_hash, language, content_type, indexed_at`

func (s *SQLiteStore) GetFileByPath(ctx context.Context, projectID, path string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE project_id = ? AND path = ?`, projectID, path)
	f, err := s.scanFile(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get file by path: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) GetChangedFiles(ctx context.Context, projectID string, since time.Time) ([]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE project_id = ? AND mod_time > ? ORDER BY path
	`, projectID, timeToUnix(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query changed files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := s.scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) ListFiles(ctx context.Context, projectID string, cursor string, limit int) ([]*File, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	offset, err := decodeListCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+fileColumns+` FROM files WHERE project_id = ? ORDER BY path LIMIT ? OFFSET ?
	`, projectID, limit+1, offset)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := s.scanFile(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(files) > limit {
		files = files[:limit]
		nextCursor = encodeListCursor(offset + limit)
	}
	return files, nextCursor, nil
}

func (s *SQLiteStore) GetFilePathsByProject(ctx context.Context, projectID string) ([]string, error) {
	return s.ListFilePathsUnder(ctx, projectID, "")
}

func (s *SQLiteStore) GetFilesForReconciliation(ctx context.Context, projectID string) (map[string]*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*File)
	for rows.Next() {
		f, err := s.scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		result[f.Path] = f
	}
	return result, rows.Err()
}

func (s *SQLiteStore) ListFilePathsUnder(ctx context.Context, projectID, dirPrefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dirPrefix = strings.TrimSuffix(dirPrefix, "/")

	var rows *sql.Rows
	var err error
	if dirPrefix == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT path FROM files WHERE project_id = ?`, projectID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT path FROM files WHERE project_id = ? AND (path = ? OR path LIKE ?)
		`, projectID, dirPrefix, dirPrefix+"/%")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list file paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteChunksByFileTx(ctx, tx, fileID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteFilesByProject(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM files WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("failed to query project files: %w", err)
	}
	var fileIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan file id: %w", err)
		}
		fileIDs = append(fileIDs, id)
	}
	rows.Close()

	for _, id := range fileIDs {
		if err := deleteChunksByFileTx(ctx, tx, id); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE project_id = ?`, projectID); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}
	return tx.Commit()
}

func deleteChunksByFileTx(ctx context.Context, tx *sql.Tx, fileID string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM chunks WHERE file_id = ?`, fileID)
	if err != nil {
		return fmt.Errorf("failed to query chunks for file: %w", err)
	}
	var chunkIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan chunk id: %w", err)
		}
		chunkIDs = append(chunkIDs, id)
	}
	rows.Close()

	if len(chunkIDs) > 0 {
		placeholders, args := inClause(chunkIDs)
		if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE chunk_id IN (`+placeholders+`)`, args...); err != nil {
			return fmt.Errorf("failed to delete symbols: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// --- Chunk operations ---

func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, file_id, file_path, content, raw_content, context, content_type,
			language, start_line, end_line, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_id=excluded.file_id, file_path=excluded.file_path, content=excluded.content,
			raw_content=excluded.raw_content, context=excluded.context, content_type=excluded.content_type,
			language=excluded.language, start_line=excluded.start_line, end_line=excluded.end_line,
			metadata_json=excluded.metadata_json, updated_at=excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk upsert: %w", err)
	}
	defer chunkStmt.Close()

	deleteSymbolsStmt, err := tx.PrepareContext(ctx, `DELETE FROM symbols WHERE chunk_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare symbol delete: %w", err)
	}
	defer deleteSymbolsStmt.Close()

	insertSymbolStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols (chunk_id, name, type, start_line, end_line, signature, doc_comment)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare symbol insert: %w", err)
	}
	defer insertSymbolStmt.Close()

	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk metadata: %w", err)
		}

		createdAt, updatedAt := c.CreatedAt, c.UpdatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if updatedAt.IsZero() {
			updatedAt = createdAt
		}

		if _, err := chunkStmt.ExecContext(ctx, c.ID, c.FileID, c.FilePath, c.Content, c.RawContent, c.Context,
			string(c.ContentType), c.Language, c.StartLine, c.EndLine,
			string(metaJSON), timeToUnix(createdAt), timeToUnix(updatedAt)); err != nil {
			return fmt.Errorf("failed to save chunk %s: %w", c.ID, err)
		}

		if _, err := deleteSymbolsStmt.ExecContext(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to clear symbols for chunk %s: %w", c.ID, err)
		}
		for _, sym := range c.Symbols {
			if _, err := insertSymbolStmt.ExecContext(ctx, c.ID, sym.Name, string(sym.Type),
				sym.StartLine, sym.EndLine, sym.Signature, sym.DocComment); err != nil {
				return fmt.Errorf("failed to save symbol %s: %w", sym.Name, err)
			}
		}
	}

	return tx.Commit()
}

const chunkColumns = `id, file_id, file_path, content, raw_content, context, content_type,
	language, start_line, end_line, metadata_json, created_at, updated_at`

func (s *SQLiteStore) scanChunk(row interface{ Scan(...any) error }) (*Chunk, error) {
	var c Chunk
	var contentType, metaJSON string
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.FileID, &c.FilePath, &c.Content, &c.RawContent, &c.Context, &contentType,
		&c.Language, &c.StartLine, &c.EndLine, &metaJSON, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.ContentType = ContentType(contentType)
	c.CreatedAt = unixToTime(createdAt)
	c.UpdatedAt = unixToTime(updatedAt)
	if metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &c.Metadata)
	}
	return &c, nil
}

func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := s.scanChunk(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	if c != nil {
		c.Symbols, err = s.symbolsForChunk(ctx, id)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]*Chunk, 0)
	for rows.Next() {
		c, err := s.scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) GetChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE file_id = ? ORDER BY start_line`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks by file: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := s.scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStore) symbolsForChunk(ctx context.Context, chunkID string) ([]*Symbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, start_line, end_line, signature, doc_comment FROM symbols WHERE chunk_id = ?
	`, chunkID)
	if err != nil {
		return nil, fmt.Errorf("failed to get symbols: %w", err)
	}
	defer rows.Close()

	var symbols []*Symbol
	for rows.Next() {
		var sym Symbol
		var symType string
		if err := rows.Scan(&sym.Name, &symType, &sym.StartLine, &sym.EndLine, &sym.Signature, &sym.DocComment); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		sym.Type = SymbolType(symType)
		symbols = append(symbols, &sym)
	}
	return symbols, rows.Err()
}

func (s *SQLiteStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders, args := inClause(ids)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE chunk_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete symbols: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteChunksByFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteChunksByFileTx(ctx, tx, fileID); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Symbol operations ---

func (s *SQLiteStore) SearchSymbols(ctx context.Context, name string, limit int) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, type, start_line, end_line, signature, doc_comment
		FROM symbols WHERE name LIKE ? LIMIT ?
	`, "%"+name+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search symbols: %w", err)
	}
	defer rows.Close()

	var symbols []*Symbol
	for rows.Next() {
		var sym Symbol
		var symType string
		if err := rows.Scan(&sym.Name, &symType, &sym.StartLine, &sym.EndLine, &sym.Signature, &sym.DocComment); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		sym.Type = SymbolType(symType)
		symbols = append(symbols, &sym)
	}
	return symbols, rows.Err()
}

// --- State operations ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state: %w", err)
	}
	return value, nil
}

func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set state: %w", err)
	}
	return nil
}

// --- Embedding operations ---

func (s *SQLiteStore) SaveChunkEmbeddings(ctx context.Context, chunkIDs []string, embeddings [][]float32, model string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if len(chunkIDs) != len(embeddings) {
		return fmt.Errorf("chunk ids and embeddings length mismatch: %d vs %d", len(chunkIDs), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE chunks SET embedding = ?, embedding_model = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare embedding update: %w", err)
	}
	defer stmt.Close()

	for i, id := range chunkIDs {
		if _, err := stmt.ExecContext(ctx, embeddingToBytes(embeddings[i]), model, id); err != nil {
			return fmt.Errorf("failed to save embedding for %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetAllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM chunks WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("failed to get embeddings: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]float32)
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		if emb := bytesToEmbedding(raw); emb != nil {
			result[id] = emb
		}
	}
	return result, rows.Err()
}

// GetEmbedding returns a single chunk's stored embedding, or nil if the
// chunk is untracked or has none. Used to pull a reused chunk's vector by
// ID rather than scanning every embedding via GetAllEmbeddings.
func (s *SQLiteStore) GetEmbedding(ctx context.Context, chunkID string) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT embedding FROM chunks WHERE id = ?`, chunkID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding for %s: %w", chunkID, err)
	}
	return bytesToEmbedding(raw), nil
}

func (s *SQLiteStore) GetEmbeddingStats(ctx context.Context) (withEmbedding, withoutEmbedding int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL`).Scan(&withEmbedding); err != nil {
		return 0, 0, fmt.Errorf("failed to count embedded chunks: %w", err)
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE embedding IS NULL`).Scan(&withoutEmbedding); err != nil {
		return 0, 0, fmt.Errorf("failed to count unembedded chunks: %w", err)
	}
	return withEmbedding, withoutEmbedding, nil
}

// embeddingToBytes serializes a float32 vector as little-endian bytes for BLOB storage.
func embeddingToBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToEmbedding deserializes a little-endian float32 vector from a BLOB.
func bytesToEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// --- Checkpoint operations ---

func (s *SQLiteStore) SaveIndexCheckpoint(ctx context.Context, stage string, total, embeddedCount int, embedderModel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_checkpoint (id, stage, total, embedded_count, timestamp, embedder_model)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage=excluded.stage, total=excluded.total, embedded_count=excluded.embedded_count,
			timestamp=excluded.timestamp, embedder_model=excluded.embedder_model
	`, stage, total, embeddedCount, timeToUnix(time.Now()), embedderModel)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadIndexCheckpoint(ctx context.Context) (*IndexCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var cp IndexCheckpoint
	var ts int64
	err := s.db.QueryRowContext(ctx, `
		SELECT stage, total, embedded_count, timestamp, embedder_model FROM index_checkpoint WHERE id = 1
	`).Scan(&cp.Stage, &cp.Total, &cp.EmbeddedCount, &ts, &cp.EmbedderModel)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp.Stage == "complete" {
		return nil, nil
	}
	cp.Timestamp = unixToTime(ts)
	return &cp, nil
}

func (s *SQLiteStore) ClearIndexCheckpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM index_checkpoint WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}

// --- helpers ---

func timeToUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func unixToTime(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

// encodeListCursor/decodeListCursor implement opaque pagination cursors for
// ListFiles: base64("offset:<n>"). Keeping the scheme opaque lets the caller
// treat the cursor as a token without depending on the encoding.
func encodeListCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("offset:%d", offset)))
}

func decodeListCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[0] != "offset" {
		return 0, fmt.Errorf("invalid cursor format")
	}
	offset, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid cursor offset: %w", err)
	}
	if offset < 0 {
		return 0, fmt.Errorf("cursor offset must be non-negative")
	}
	return offset, nil
}
