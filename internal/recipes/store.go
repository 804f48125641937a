// Package recipes はレシピのモデル・永続化・HTTPハンドラーを提供します。
package recipes

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/yourusername/recipe-box/internal/users"
)

// Recipe はユーザーが所有するレシピを表します。
// 所有者はAPIレスポンス用に公開表現をネストして返します。
type Recipe struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	Instructions      string     `json:"instructions"`
	MinutesToComplete *int64     `json:"minutes_to_complete"`
	UserID            int64      `json:"-"`
	Owner             users.User `json:"user"`
}

// NewRecipe はレシピ作成の入力です。
type NewRecipe struct {
	Title             string
	Instructions      string
	MinutesToComplete *int64
	UserID            int64
}

// ValidationError は格納層の制約違反を表します。
// メッセージはそのままクライアントへの422応答に使用します。
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Store はレシピテーブルへのアクセスをまとめた構造体です。
type Store struct {
	db *sql.DB
}

// NewStore はレシピストアを作成します。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListByOwner は指定ユーザーが所有するレシピを挿入順で返します。
// 所有者情報は明示的なJOINで取得します。
func (s *Store) ListByOwner(ctx context.Context, userID int64) ([]Recipe, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.title, r.instructions, r.minutes_to_complete, r.user_id, u.username
		FROM recipes r
		JOIN users u ON u.id = r.user_id
		WHERE r.user_id = ?
		ORDER BY r.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select recipes: %w", err)
	}
	defer rows.Close()

	list := []Recipe{}
	for rows.Next() {
		var recipe Recipe
		var minutes sql.NullInt64
		if err := rows.Scan(&recipe.ID, &recipe.Title, &recipe.Instructions,
			&minutes, &recipe.UserID, &recipe.Owner.Username); err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		if minutes.Valid {
			recipe.MinutesToComplete = &minutes.Int64
		}
		recipe.Owner.ID = recipe.UserID
		list = append(list, recipe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipes: %w", err)
	}

	return list, nil
}

// Create は新規レシピを登録します。
// NOT NULL / CHECK 制約違反は ValidationError に変換して返します。
// INSERTは単文なので失敗時に部分的な行が残ることはありません。
func (s *Store) Create(ctx context.Context, input NewRecipe) (Recipe, error) {
	recipe := Recipe{
		Title:             input.Title,
		Instructions:      input.Instructions,
		MinutesToComplete: input.MinutesToComplete,
		UserID:            input.UserID,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO recipes (title, instructions, minutes_to_complete, user_id)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		nullableString(input.Title), nullableString(input.Instructions),
		input.MinutesToComplete, input.UserID,
	).Scan(&recipe.ID)
	if err != nil {
		msg := err.Error()
		// 外部キー違反は所有者の不在なので、検証エラーとは区別する
		if strings.Contains(msg, "FOREIGN KEY constraint failed") {
			return Recipe{}, users.ErrNotFound
		}
		if strings.Contains(msg, "constraint failed") {
			return Recipe{}, &ValidationError{msg: msg}
		}
		return Recipe{}, fmt.Errorf("insert recipe: %w", err)
	}

	return recipe, nil
}

// nullableString は空文字をNULLとして渡し、NOT NULL制約に検証を委ねます。
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
