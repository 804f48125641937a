// Package database はSQLiteへの接続とスキーマのマイグレーションを提供します。
package database

import (
	"database/sql"

	_ "modernc.org/sqlite" // SQLiteドライバ（CGo不要）
)

// New はデータベース接続プールを作成します。
// 外部キー制約はレシピの所有者検証に必要なため常に有効化します。
func New(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSourceName+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate はスキーマを作成するSQLを実行します。
func Migrate(db *sql.DB) error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS recipes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL CHECK(length(title) > 0),
		instructions TEXT NOT NULL CHECK(length(instructions) > 0),
		minutes_to_complete INTEGER,
		user_id INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(sqlStmt)
	return err
}
