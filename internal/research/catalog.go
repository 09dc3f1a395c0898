package research

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/landppt/landppt/internal/models"
)

// Catalog indexes saved research reports in a local SQLite database so
// they can be searched by topic without scanning Markdown files.
type Catalog struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewCatalog opens (or creates) the catalog database inside the reports
// directory.
func NewCatalog(reportsDir string, logger zerolog.Logger) (*Catalog, error) {
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports directory: %w", err)
	}
	dbPath := filepath.Join(reportsDir, "catalog.db")

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}

	c := &Catalog{
		db:     db,
		logger: logger.With().Str("component", "research_catalog").Logger(),
	}

	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog database: %w", err)
	}

	c.logger.Info().Str("path", dbPath).Msg("research catalog initialized")
	return c, nil
}

func (c *Catalog) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS reports (
			filename TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			size_bytes INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reports_topic ON reports(topic);
		CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Close closes the catalog database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Index records a saved report.
func (c *Catalog) Index(ctx context.Context, filename string, report *models.ResearchReport, sizeBytes int64) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO reports (filename, topic, language, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			topic = excluded.topic,
			language = excluded.language,
			size_bytes = excluded.size_bytes,
			created_at = excluded.created_at
	`, filename, report.Topic, report.Language, sizeBytes, report.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("index report: %w", err)
	}
	return nil
}

// Search returns indexed reports whose topic contains the query, newest
// first. An empty query matches everything.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]models.SavedReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT filename, topic, size_bytes, created_at
		FROM reports
		WHERE topic LIKE '%' || ? || '%'
		ORDER BY created_at DESC
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search reports: %w", err)
	}
	defer rows.Close()

	var reports []models.SavedReport
	for rows.Next() {
		var r models.SavedReport
		var createdAt string
		if err := rows.Scan(&r.Filename, &r.Topic, &r.SizeBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.CreatedAt = t
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// Remove drops a report from the index.
func (c *Catalog) Remove(ctx context.Context, filename string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM reports WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("remove report from index: %w", err)
	}
	return nil
}
