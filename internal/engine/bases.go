// Package engine - physical base connection pool
package engine

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aethra/gridbase/internal/models"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// BaseManager hands out one gorm handle per physical base and keeps
// them pooled. The platform database itself backs the default base.
type BaseManager struct {
	meta          *gorm.DB
	platform      *gorm.DB
	handles       map[uuid.UUID]*gorm.DB
	mu            sync.RWMutex
	encryptionKey []byte
}

// NewBaseManager creates a base connection manager. platform is the
// handle data tables of default bases live on.
func NewBaseManager(meta *gorm.DB, platform *gorm.DB, encryptionKey string) *BaseManager {
	key := make([]byte, 32)
	copy(key, []byte(encryptionKey))

	return &BaseManager{
		meta:          meta,
		platform:      platform,
		handles:       make(map[uuid.UUID]*gorm.DB),
		encryptionKey: key,
	}
}

// ForModel returns the handle serving a model's rows. Models without a
// base, and default bases, live on the platform database.
func (bm *BaseManager) ForModel(ctx context.Context, model *models.Model) (*gorm.DB, error) {
	if model.BaseID == nil {
		return bm.platform, nil
	}
	return bm.Get(ctx, *model.BaseID)
}

// Get retrieves or creates the handle for a base.
func (bm *BaseManager) Get(ctx context.Context, baseID uuid.UUID) (*gorm.DB, error) {
	bm.mu.RLock()
	if h, exists := bm.handles[baseID]; exists {
		bm.mu.RUnlock()
		return h, nil
	}
	bm.mu.RUnlock()

	var base models.Base
	if err := bm.meta.First(&base, "id = ?", baseID).Error; err != nil {
		return nil, fmt.Errorf("base not found: %w", err)
	}

	if base.IsDefault {
		return bm.platform, nil
	}

	h, err := bm.open(ctx, &base)
	if err != nil {
		return nil, err
	}

	bm.mu.Lock()
	bm.handles[baseID] = h
	bm.mu.Unlock()

	return h, nil
}

// open dials a base. Postgres and mysql go through their database/sql
// drivers so driver-specific errors keep their concrete types.
func (bm *BaseManager) open(ctx context.Context, base *models.Base) (*gorm.DB, error) {
	password, err := bm.decrypt(base.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt base password: %w", err)
	}

	var dialector gorm.Dialector
	switch base.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			base.Host, base.Port, base.Username, password, base.Database, base.SSLMode)
		sqlDB, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open base connection: %w", err)
		}
		configurePool(sqlDB)
		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to ping base: %w", err)
		}
		dialector = gormpostgres.New(gormpostgres.Config{Conn: sqlDB})

	case "mysql":
		sqlDB, err := sql.Open("mysql", mysqlDSN(base, password))
		if err != nil {
			return nil, fmt.Errorf("failed to open base connection: %w", err)
		}
		configurePool(sqlDB)
		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to ping base: %w", err)
		}
		dialector = gormmysql.New(gormmysql.Config{Conn: sqlDB})

	case "sqlite":
		dialector = sqlite.Open(base.Database)

	default:
		return nil, fmt.Errorf("unsupported base driver: %s", base.Driver)
	}

	h, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach base: %w", err)
	}
	return h, nil
}

// mysqlDSN builds the mysql DSN. ANSI_QUOTES makes the server accept
// the double-quoted identifiers the engine emits for every dialect.
func mysqlDSN(base *models.Base, password string) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&sql_mode=%%27ANSI_QUOTES%%27",
		base.Username, password, base.Host, base.Port, base.Database)
}

func configurePool(db *sql.DB) {
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
}

// TestBase dials a base configuration without caching the handle.
func (bm *BaseManager) TestBase(ctx context.Context, base *models.Base) error {
	h, err := bm.open(ctx, base)
	if err != nil {
		return err
	}
	sqlDB, err := h.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return sqlDB.PingContext(ctx)
}

// Close drops the handle for one base.
func (bm *BaseManager) Close(baseID uuid.UUID) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if h, exists := bm.handles[baseID]; exists {
		delete(bm.handles, baseID)
		if sqlDB, err := h.DB(); err == nil {
			return sqlDB.Close()
		}
	}
	return nil
}

// CloseAll closes every pooled base handle.
func (bm *BaseManager) CloseAll() {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	for id, h := range bm.handles {
		if sqlDB, err := h.DB(); err == nil {
			sqlDB.Close()
		}
		delete(bm.handles, id)
	}
}

// Encrypt encrypts a base credential using AES-GCM.
func (bm *BaseManager) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(bm.encryptionKey)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := aesGCM.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base credential using AES-GCM.
func (bm *BaseManager) decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(bm.encryptionKey)
	if err != nil {
		return "", err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := aesGCM.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := aesGCM.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

// SaveBase persists a base configuration with its password encrypted.
func (bm *BaseManager) SaveBase(base *models.Base, password string) error {
	if password != "" {
		encrypted, err := bm.Encrypt(password)
		if err != nil {
			return fmt.Errorf("failed to encrypt password: %w", err)
		}
		base.Password = encrypted
	}
	return bm.meta.Save(base).Error
}
