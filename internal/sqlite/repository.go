package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/daslan/birdwatch/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	post_id           TEXT PRIMARY KEY,
	author_id         TEXT NOT NULL,
	text              TEXT NOT NULL,
	username          TEXT NOT NULL,
	media             TEXT NOT NULL DEFAULT '[]',
	hashtags          TEXT NOT NULL DEFAULT '',
	profile_image_url TEXT NOT NULL DEFAULT '',
	retweet_count     INTEGER NOT NULL DEFAULT 0,
	like_count        INTEGER NOT NULL DEFAULT 0,
	reply_count       INTEGER NOT NULL DEFAULT 0,
	quote_count       INTEGER NOT NULL DEFAULT 0,
	has_video         INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts (created_at DESC);

CREATE TABLE IF NOT EXISTS authors (
	author_id         TEXT PRIMARY KEY,
	username          TEXT NOT NULL,
	profile_image_url TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_authors_username ON authors (username);
`

// Repository implements domain.PostRepository and domain.AuthorRepository
// using SQLite. Timestamps are stored as unix milliseconds.
type Repository struct {
	db *sql.DB
}

// NewRepository opens the SQLite database at the given path, verifies the
// connection, and ensures the schema exists. The caller should call Close
// when the repository is no longer needed.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent ingestion.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// CreatePost inserts a new post. The primary key on post_id makes concurrent
// ingestion of the same post from two sources safe: the losing insert
// reports domain.ErrDuplicatePost instead of writing a second row.
func (r *Repository) CreatePost(ctx context.Context, post *domain.Post) error {
	media, err := json.Marshal(post.Media)
	if err != nil {
		return fmt.Errorf("marshal media: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO posts (
			post_id, author_id, text, username, media, hashtags,
			profile_image_url, retweet_count, like_count, reply_count,
			quote_count, has_video, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (post_id) DO NOTHING`,
		post.PostID,
		post.AuthorID,
		post.Text,
		post.Username,
		string(media),
		post.Hashtags,
		post.ProfileImageURL,
		post.RetweetCount,
		post.LikeCount,
		post.ReplyCount,
		post.QuoteCount,
		boolToInt(post.HasVideo),
		post.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrDuplicatePost
	}
	return nil
}

// FindByPostID retrieves a post by its source identifier. Returns nil, nil
// when no such post exists.
func (r *Repository) FindByPostID(ctx context.Context, postID string) (*domain.Post, error) {
	row := r.db.QueryRowContext(ctx, selectPost+` WHERE post_id = ?`, postID)
	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query post %s: %w", postID, err)
	}
	return post, nil
}

// ListRecent retrieves up to limit posts ordered by creation time descending.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		selectPost+` ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent posts (limit=%d): %w", limit, err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// LatestCreatedAt returns the creation time of the most recent stored post.
func (r *Repository) LatestCreatedAt(ctx context.Context) (time.Time, error) {
	var millis sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM posts`,
	).Scan(&millis)
	if err != nil {
		return time.Time{}, fmt.Errorf("query latest created_at: %w", err)
	}
	if !millis.Valid {
		return time.Time{}, nil
	}
	return time.UnixMilli(millis.Int64).UTC(), nil
}

// FindByID retrieves an author by source identifier.
func (r *Repository) FindByID(ctx context.Context, authorID string) (*domain.Author, error) {
	return r.findAuthor(ctx, `author_id`, authorID)
}

// FindByUsername retrieves an author by username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*domain.Author, error) {
	return r.findAuthor(ctx, `username`, username)
}

func (r *Repository) findAuthor(ctx context.Context, column, value string) (*domain.Author, error) {
	var a domain.Author
	err := r.db.QueryRowContext(ctx,
		`SELECT author_id, username, profile_image_url FROM authors WHERE `+column+` = ?`,
		value,
	).Scan(&a.AuthorID, &a.Username, &a.ProfileImageURL)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAuthorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query author by %s: %w", column, err)
	}
	return &a, nil
}

// CreateAuthors inserts the given authors, skipping existing author_ids.
func (r *Repository) CreateAuthors(ctx context.Context, authors []domain.Author) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range authors {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO authors (author_id, username, profile_image_url)
			VALUES (?, ?, ?)
			ON CONFLICT (author_id) DO NOTHING`,
			a.AuthorID, a.Username, a.ProfileImageURL,
		)
		if err != nil {
			return fmt.Errorf("insert author %s: %w", a.AuthorID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const selectPost = `
	SELECT post_id, author_id, text, username, media, hashtags,
	       profile_image_url, retweet_count, like_count, reply_count,
	       quote_count, has_video, created_at
	FROM posts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*domain.Post, error) {
	var (
		p         domain.Post
		mediaJSON string
		hasVideo  int
		millis    int64
	)
	err := row.Scan(
		&p.PostID,
		&p.AuthorID,
		&p.Text,
		&p.Username,
		&mediaJSON,
		&p.Hashtags,
		&p.ProfileImageURL,
		&p.RetweetCount,
		&p.LikeCount,
		&p.ReplyCount,
		&p.QuoteCount,
		&hasVideo,
		&millis,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(mediaJSON), &p.Media); err != nil {
		return nil, fmt.Errorf("unmarshal media: %w", err)
	}
	p.HasVideo = hasVideo != 0
	p.CreatedAt = time.UnixMilli(millis).UTC()
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
