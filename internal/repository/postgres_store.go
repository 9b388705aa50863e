package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PostgresStore реализация LinkStore поверх таблиц links и clicks
type PostgresStore struct {
	db *PostgresDB
}

func NewPostgresStore(db *PostgresDB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, link *models.Link) error {
	query := `
		INSERT INTO links (id, short_code, original_url, password_hash, description,
			expiration_date, created_at, clicks, is_active, is_custom)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.Pool.Exec(ctx, query,
		link.ID,
		link.ShortCode,
		link.OriginalURL,
		link.PasswordHash,
		link.Description,
		link.ExpirationDate,
		link.CreatedAt,
		link.Clicks,
		link.IsActive,
		link.IsCustom,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	query := `
		SELECT id, short_code, original_url, password_hash, description,
			expiration_date, created_at, clicks, is_active, is_custom
		FROM links
		WHERE short_code = $1
	`

	link := &models.Link{}
	err := s.db.Pool.QueryRow(ctx, query, code).Scan(
		&link.ID,
		&link.ShortCode,
		&link.OriginalURL,
		&link.PasswordHash,
		&link.Description,
		&link.ExpirationDate,
		&link.CreatedAt,
		&link.Clicks,
		&link.IsActive,
		&link.IsCustom,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return link, nil
}

func (s *PostgresStore) RecordClick(ctx context.Context, code string, click *models.Click) error {
	return pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE links SET clicks = clicks + 1 WHERE short_code = $1 AND is_active`, code)
		if err != nil {
			return fmt.Errorf("failed to increment clicks: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM links WHERE short_code = $1)`, code).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check link: %w", err)
			}
			if exists {
				return ErrLinkInactive
			}
			return ErrLinkNotFound
		}

		query := `
			INSERT INTO clicks (short_code, clicked_at, ip_address, visitor_hash,
				user_agent, referrer, device, browser, country)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`
		err = tx.QueryRow(ctx, query,
			code,
			click.ClickedAt,
			click.IPAddress,
			click.VisitorHash,
			click.UserAgent,
			click.Referer,
			click.Device,
			click.Browser,
			click.Country,
		).Scan(&click.ID)
		if err != nil {
			return fmt.Errorf("failed to record click: %w", err)
		}

		click.ShortCode = code
		return nil
	})
}

func (s *PostgresStore) SetClickCountry(ctx context.Context, code string, clickID int64, country string) error {
	tag, err := s.db.Pool.Exec(ctx,
		`UPDATE clicks SET country = $1 WHERE id = $2 AND short_code = $3`,
		country, clickID, code,
	)
	if err != nil {
		return fmt.Errorf("failed to set click country: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (s *PostgresStore) GetAnalytics(ctx context.Context, code string, now time.Time) (*models.ClickSummary, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM links WHERE short_code = $1)`, code).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check link: %w", err)
	}
	if !exists {
		return nil, ErrLinkNotFound
	}

	w := windowsAt(now)
	query := `
		SELECT
			COUNT(*),
			COUNT(DISTINCT NULLIF(visitor_hash, '')),
			COUNT(*) FILTER (WHERE clicked_at >= $2),
			COUNT(*) FILTER (WHERE clicked_at >= $3),
			COUNT(*) FILTER (WHERE clicked_at >= $4)
		FROM clicks
		WHERE short_code = $1
	`

	summary := &models.ClickSummary{}
	err = s.db.Pool.QueryRow(ctx, query, code, w.day, w.week, w.month).Scan(
		&summary.TotalClicks,
		&summary.UniqueClicks,
		&summary.ClicksToday,
		&summary.ClicksThisWeek,
		&summary.ClicksThisMonth,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get click totals: %w", err)
	}

	if summary.Referrers, err = s.countBy(ctx, code, "referrer"); err != nil {
		return nil, err
	}
	if summary.Countries, err = s.countBy(ctx, code, "country"); err != nil {
		return nil, err
	}
	if summary.Devices, err = s.countBy(ctx, code, "device"); err != nil {
		return nil, err
	}
	if summary.Browsers, err = s.countBy(ctx, code, "browser"); err != nil {
		return nil, err
	}

	if summary.RecentClicks, err = s.recentClicks(ctx, code, RecentClicksLimit); err != nil {
		return nil, err
	}

	return summary, nil
}

func (s *PostgresStore) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := s.db.Pool.Exec(ctx, `UPDATE links SET is_active = $1 WHERE short_code = $2`, active, code)
	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// countBy группирует клики по одной из фиксированных колонок
func (s *PostgresStore) countBy(ctx context.Context, code, column string) (map[string]int64, error) {
	query := fmt.Sprintf(`
		SELECT %[1]s, COUNT(*)
		FROM clicks
		WHERE short_code = $1 AND %[1]s <> ''
		GROUP BY %[1]s
	`, column)

	rows, err := s.db.Pool.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("failed to count clicks by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		counts[key] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}

	return counts, nil
}

func (s *PostgresStore) recentClicks(ctx context.Context, code string, limit int) ([]models.Click, error) {
	query := `
		SELECT id, short_code, clicked_at, ip_address, user_agent, referrer, device, browser, country
		FROM clicks
		WHERE short_code = $1
		ORDER BY clicked_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.db.Pool.Query(ctx, query, code, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent clicks: %w", err)
	}
	defer rows.Close()

	clicks := make([]models.Click, 0, limit)
	for rows.Next() {
		var c models.Click
		if err := rows.Scan(
			&c.ID,
			&c.ShortCode,
			&c.ClickedAt,
			&c.IPAddress,
			&c.UserAgent,
			&c.Referer,
			&c.Device,
			&c.Browser,
			&c.Country,
		); err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		clicks = append(clicks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clicks: %w", err)
	}

	return clicks, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
