package store

import (
	"encoding/hex"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/dsm-network/dsm/internal/crypto"
)

// blobRow is the single table this package needs: one content-addressed row.
type blobRow struct {
	Hash string `gorm:"primarykey"` // hex-encoded BLAKE3 hash
	Data []byte `gorm:"not null"`
}

func (blobRow) TableName() string { return "blobs" }

// SQLite is a Store persisted via gorm + the sqlite driver (spec.md §6's
// blob store).
type SQLite struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if necessary) a SQLite-backed Store at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&blobRow{}); err != nil {
		return nil, fmt.Errorf("store: migrate sqlite %s: %w", path, err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Put(hash [crypto.Size]byte, data []byte) error {
	if err := validateKey(hash, data); err != nil {
		return err
	}
	row := blobRow{Hash: hex.EncodeToString(hash[:]), Data: append([]byte(nil), data...)}
	// Content-addressed: an existing row for this hash already holds
	// identical bytes, so writing it again is a harmless no-op.
	if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("store: put %s: %w", row.Hash, err)
	}
	return nil
}

func (s *SQLite) Get(hash [crypto.Size]byte) ([]byte, error) {
	var row blobRow
	err := s.db.First(&row, "hash = ?", hex.EncodeToString(hash[:])).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get: %w", err)
	}
	return row.Data, nil
}

func (s *SQLite) Has(hash [crypto.Size]byte) bool {
	var count int64
	s.db.Model(&blobRow{}).Where("hash = ?", hex.EncodeToString(hash[:])).Count(&count)
	return count > 0
}
