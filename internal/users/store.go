// Package users はユーザーのモデルと永続化を提供します。
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateUsername はユーザー名の一意制約違反を表します。
	ErrDuplicateUsername = errors.New("users: username already exists")
	// ErrNotFound は対象ユーザーが存在しないことを表します。
	ErrNotFound = errors.New("users: user not found")
)

// User はシステムのユーザーを表します。
// パスワードハッシュはJSONに一切含めません。
type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	CreatedAt    string `json:"-"`
}

// Store はユーザーテーブルへのアクセスをまとめた構造体です。
type Store struct {
	db *sql.DB
}

// NewStore はユーザーストアを作成します。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create はハッシュ済みパスワードで新規ユーザーを登録します。
// 一意制約違反は ErrDuplicateUsername に変換します。
// INSERTは単文なので失敗時に部分的な行が残ることはありません。
func (s *Store) Create(ctx context.Context, username, passwordHash string) (User, error) {
	user := User{
		Username:     username,
		PasswordHash: passwordHash,
	}

	err := s.db.QueryRowContext(ctx,
		"INSERT INTO users (username, password_hash) VALUES (?, ?) RETURNING id",
		username, passwordHash,
	).Scan(&user.ID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return User{}, ErrDuplicateUsername
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// GetByID はIDでユーザーを取得します。存在しない場合は ErrNotFound を返します。
func (s *Store) GetByID(ctx context.Context, id int64) (User, error) {
	var user User
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash FROM users WHERE id = ?", id)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("select user by id: %w", err)
	}
	return user, nil
}

// GetByUsername はユーザー名でユーザーを取得します。
// ログイン検証用にパスワードハッシュを含めて返します。
func (s *Store) GetByUsername(ctx context.Context, username string) (User, error) {
	var user User
	row := s.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash FROM users WHERE username = ?", username)
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("select user by username: %w", err)
	}
	return user, nil
}
