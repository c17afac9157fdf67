package loader

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schemaSQL string

// dsnParams は WAL・ビジー待ち・BEGIN IMMEDIATE を有効にします。
// BEGIN IMMEDIATE により書き込みトランザクションは開始時点で直列化されます。
const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"

// OpenDatabase はマッピング用 SQLite データベースを開きます。
// 書き込みは 1 接続に直列化し、ディレクトリが無ければ作成します。
func OpenDatabase(path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sqlx.Open("sqlite3", "file:"+path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// InitDatabase はデータベーススキーマを適用します。何度実行しても結果は変わりません。
func InitDatabase(db *sqlx.DB, log logrus.FieldLogger) error {
	log.Info("Applying database schema...")
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema.sql: %w", err)
	}
	log.Info("Schema applied successfully.")
	return nil
}
