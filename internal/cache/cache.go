package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"ytdl-inline-bot/internal/state"
)

// FileName — имя файла кэша в CACHE_DIR
const FileName = "yt_search_cache.db"

const (
	urlKeyLen    = 5
	urlKeyMaxLen = 10
)

// Record — одна строка результатов поиска
type Record struct {
	YtID        string
	Thumb       string
	Title       string
	Body        string
	Duration    string
	Views       string
	UploadDate  string
	ChannelName string
	ChannelID   string
}

// Cache — KeyCache поверх sqlite: результаты поиска по ключу и сохранённые URL.
// Запись сериализуется мьютексом, чтение идёт параллельно.
type Cache struct {
	db  *sql.DB
	wmu sync.Mutex
	log *logrus.Entry
}

// Open — открыть/создать файл кэша. clean удаляет старый файл,
// битый файл удаляется и создаётся заново.
func Open(dir string, clean bool, log *logrus.Entry) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	file := filepath.Join(dir, FileName)
	if clean {
		removeDBFiles(file)
	}

	db, err := openDB(file)
	if err != nil {
		log.WithError(err).Warn("[cache] unreadable cache file, recreating")
		removeDBFiles(file)
		if db, err = openDB(file); err != nil {
			return nil, fmt.Errorf("open cache %s: %w", file, err)
		}
	}
	return &Cache{db: db, log: log}, nil
}

// NewWithDB — кэш поверх готового соединения (схема уже есть)
func NewWithDB(db *sql.DB, log *logrus.Entry) *Cache {
	return &Cache{db: db, log: log}
}

func openDB(file string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", file)
	if err != nil {
		return nil, err
	}
	// одно соединение: pragma и схема применяются к нему же
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	if err := initTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func initTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS url_cache (
		key TEXT NOT NULL PRIMARY KEY,
		url TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS search_results (
		cache_key TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		yt_id TEXT NOT NULL,
		thumb TEXT,
		title TEXT,
		body TEXT,
		duration TEXT,
		views TEXT,
		upload_date TEXT,
		chnl_name TEXT,
		chnl_id TEXT,
		PRIMARY KEY(cache_key, ordinal),
		UNIQUE(cache_key, yt_id)
	);
	`)
	return err
}

func removeDBFiles(file string) {
	for _, f := range []string{file, file + "-wal", file + "-shm"} {
		_ = os.Remove(f)
	}
}

// SaveURL — ключ для url; повторный вызов с тем же url возвращает тот же ключ
func (c *Cache) SaveURL(ctx context.Context, url string) (string, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	var key string
	err := c.db.QueryRowContext(ctx, `SELECT key FROM url_cache WHERE url = ?`, url).Scan(&key)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup url: %w", err)
	}

	key, err = c.mintKey(ctx)
	if err != nil {
		return "", err
	}
	if _, err := c.db.ExecContext(ctx, `INSERT INTO url_cache(key, url) VALUES(?, ?)`, key, url); err != nil {
		return "", fmt.Errorf("save url: %w", err)
	}
	return key, nil
}

// mintKey — свободный ключ; при коллизиях ключ удлиняется
func (c *Cache) mintKey(ctx context.Context) (string, error) {
	for n := urlKeyLen; n <= urlKeyMaxLen; n++ {
		for attempt := 0; attempt < 3; attempt++ {
			key := state.GenerateToken(n)
			var one int
			err := c.db.QueryRowContext(ctx, `SELECT 1 FROM url_cache WHERE key = ?`, key).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return key, nil
			}
			if err != nil {
				return "", fmt.Errorf("check key: %w", err)
			}
		}
	}
	return "", errors.New("no free url key")
}

// GetURL — url по ключу
func (c *Cache) GetURL(ctx context.Context, key string) (string, bool, error) {
	var url string
	err := c.db.QueryRowContext(ctx, `SELECT url FROM url_cache WHERE key = ?`, key).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get url: %w", err)
	}
	return url, true, nil
}

// SetResults — сохранить результаты под ключом.
// Повторная запись под тот же ключ игнорируется, дубли yt_id внутри набора пропускаются.
func (c *Cache) SetResults(ctx context.Context, key string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var existing int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_results WHERE cache_key = ?`, key,
	).Scan(&existing); err != nil {
		return fmt.Errorf("count results: %w", err)
	}
	// выдача под ключом пишется один раз, total после этого не меняется
	if existing > 0 {
		c.log.WithField("key", key).Debug("[cache] results already stored")
		return nil
	}
	var next int64

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO search_results
		(cache_key, ordinal, yt_id, thumb, title, body, duration, views, upload_date, chnl_name, chnl_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		res, err := stmt.ExecContext(ctx, key, next, r.YtID, r.Thumb, r.Title, r.Body,
			r.Duration, r.Views, r.UploadDate, r.ChannelName, r.ChannelID)
		if err != nil {
			return fmt.Errorf("insert %s: %w", r.YtID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			next++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const recordColumns = `yt_id, thumb, title, body, duration, views, upload_date, chnl_name, chnl_id`

func scanRecord(s interface{ Scan(...any) error }) (Record, error) {
	var r Record
	var thumb, title, body, duration, views, date, name, id sql.NullString
	if err := s.Scan(&r.YtID, &thumb, &title, &body, &duration, &views, &date, &name, &id); err != nil {
		return r, err
	}
	r.Thumb, r.Title, r.Body = thumb.String, title.String, body.String
	r.Duration, r.Views, r.UploadDate = duration.String, views.String, date.String
	r.ChannelName, r.ChannelID = name.String, id.String
	return r, nil
}

// GetResults — все результаты по ключу в порядке вставки; ok=false если ключа нет
func (c *Cache) GetResults(ctx context.Context, key string) ([]Record, bool, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM search_results WHERE cache_key = ? ORDER BY ordinal`, key)
	if err != nil {
		return nil, false, fmt.Errorf("get results: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, len(out) > 0, nil
}

// GetPage — число результатов и запись с индексом index (с нуля).
// ok=false при неизвестном ключе или индексе вне диапазона.
func (c *Cache) GetPage(ctx context.Context, key string, index int) (int, Record, bool, error) {
	var total int
	if err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_results WHERE cache_key = ?`, key,
	).Scan(&total); err != nil {
		return 0, Record{}, false, fmt.Errorf("count results: %w", err)
	}
	if index < 0 || index >= total {
		return total, Record{}, false, nil
	}

	row := c.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM search_results WHERE cache_key = ? ORDER BY ordinal LIMIT 1 OFFSET ?`,
		key, index)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return total, Record{}, false, nil
	}
	if err != nil {
		return 0, Record{}, false, fmt.Errorf("get page: %w", err)
	}
	return total, r, true, nil
}

func (c *Cache) Close() error { return c.db.Close() }
