// Package gormstore provides a UserBackend backed by a relational database
// through GORM. SQLite and Postgres constructors are included; any GORM
// dialector works through Open.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wardenauth/warden"
)

// userRow is the persisted shape of a user. Metadata is serialized to a
// JSON text column so the schema stays portable across SQLite and Postgres.
// Email is a pointer so absent emails store as NULL: uniqueness applies only
// among users that have one.
type userRow struct {
	ID                string  `gorm:"primaryKey"`
	Username          string  `gorm:"uniqueIndex;not null"`
	PasswordHash      string  `gorm:"not null"`
	Role              string  `gorm:"not null;default:regular"`
	Email             *string `gorm:"uniqueIndex"`
	ProfilePictureURL string
	IsActive          bool `gorm:"not null;default:true"`
	Balance           int64
	Metadata          string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (userRow) TableName() string { return "warden_users" }

func nullableEmail(email string) *string {
	if email == "" {
		return nil
	}
	return &email
}

func toRow(u *warden.User) (*userRow, error) {
	meta := "{}"
	if len(u.Metadata) > 0 {
		raw, err := json.Marshal(u.Metadata)
		if err != nil {
			return nil, fmt.Errorf("gormstore: encode metadata: %w", err)
		}
		meta = string(raw)
	}
	return &userRow{
		ID:                u.ID,
		Username:          u.Username,
		PasswordHash:      u.PasswordHash,
		Role:              string(u.Role),
		Email:             nullableEmail(u.Email),
		ProfilePictureURL: u.ProfilePictureURL,
		IsActive:          u.IsActive,
		Balance:           u.Balance,
		Metadata:          meta,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}, nil
}

func fromRow(r *userRow) (*warden.User, error) {
	meta := map[string]string{}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("gormstore: decode metadata for %q: %w", r.Username, err)
		}
	}
	email := ""
	if r.Email != nil {
		email = *r.Email
	}
	return &warden.User{
		ID:                r.ID,
		Username:          r.Username,
		PasswordHash:      r.PasswordHash,
		Role:              warden.Role(r.Role),
		Email:             email,
		ProfilePictureURL: r.ProfilePictureURL,
		IsActive:          r.IsActive,
		Balance:           r.Balance,
		Metadata:          meta,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}, nil
}

// Backend implements warden.UserBackend on a *gorm.DB.
type Backend struct {
	db *gorm.DB
}

// Open connects through the given dialector and migrates the users table.
// TranslateError is enabled so duplicate-key violations surface as
// gorm.ErrDuplicatedKey on every supported driver.
func Open(dialector gorm.Dialector) (*Backend, error) {
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}
	if err := db.AutoMigrate(&userRow{}); err != nil {
		return nil, fmt.Errorf("gormstore: migrate: %w", err)
	}
	return &Backend{db: db}, nil
}

// NewSQLite opens a SQLite database at path. Use ":memory:" for tests.
func NewSQLite(path string) (*Backend, error) {
	return Open(sqlite.Open(path))
}

// NewPostgres opens a Postgres database from a DSN.
func NewPostgres(dsn string) (*Backend, error) {
	return Open(postgres.Open(dsn))
}

func (b *Backend) CreateUser(ctx context.Context, user warden.UserCreate, passwordHash string) (*warden.User, error) {
	now := time.Now().UTC()
	record := &warden.User{
		ID:           uuid.NewString(),
		Username:     user.Username,
		PasswordHash: passwordHash,
		Role:         user.Role,
		Email:        user.Email,
		IsActive:     true,
		Metadata:     map[string]string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	row, err := toRow(record)
	if err != nil {
		return nil, err
	}
	if err := b.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Decide which column collided so the caller gets the right
			// sentinel.
			var n int64
			b.db.WithContext(ctx).Model(&userRow{}).Where("username = ?", user.Username).Count(&n)
			if n > 0 {
				return nil, warden.ErrUsernameTaken
			}
			return nil, warden.ErrEmailTaken
		}
		return nil, err
	}
	return record, nil
}

func (b *Backend) findBy(ctx context.Context, column, value string) (*warden.User, error) {
	var row userRow
	err := b.db.WithContext(ctx).Where(column+" = ?", value).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, warden.ErrUserNotFound
		}
		return nil, err
	}
	return fromRow(&row)
}

func (b *Backend) GetUserByUsername(ctx context.Context, username string) (*warden.User, error) {
	return b.findBy(ctx, "username", username)
}

func (b *Backend) GetUserByID(ctx context.Context, id string) (*warden.User, error) {
	return b.findBy(ctx, "id", id)
}

func (b *Backend) GetUserByEmail(ctx context.Context, email string) (*warden.User, error) {
	return b.findBy(ctx, "email", email)
}

func (b *Backend) updateColumns(ctx context.Context, username string, columns map[string]any) error {
	columns["updated_at"] = time.Now().UTC()
	result := b.db.WithContext(ctx).Model(&userRow{}).Where("username = ?", username).Updates(columns)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return warden.ErrEmailTaken
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return warden.ErrUserNotFound
	}
	return nil
}

func (b *Backend) UpdateUser(ctx context.Context, username string, update warden.UserUpdate) (*warden.User, error) {
	columns := map[string]any{}
	if update.Email != nil {
		columns["email"] = nullableEmail(*update.Email)
	}
	if update.ProfilePictureURL != nil {
		columns["profile_picture_url"] = *update.ProfilePictureURL
	}
	if update.IsActive != nil {
		columns["is_active"] = *update.IsActive
	}
	if update.Metadata != nil {
		raw, err := json.Marshal(update.Metadata)
		if err != nil {
			return nil, fmt.Errorf("gormstore: encode metadata: %w", err)
		}
		columns["metadata"] = string(raw)
	}
	if len(columns) > 0 {
		if err := b.updateColumns(ctx, username, columns); err != nil {
			return nil, err
		}
	}
	return b.GetUserByUsername(ctx, username)
}

func (b *Backend) UpdateUserPassword(ctx context.Context, username, passwordHash string) error {
	return b.updateColumns(ctx, username, map[string]any{"password_hash": passwordHash})
}

func (b *Backend) UpdateUserRole(ctx context.Context, username string, role warden.Role) error {
	return b.updateColumns(ctx, username, map[string]any{"role": string(role)})
}

func (b *Backend) UpdateUserMetadata(ctx context.Context, username string, metadata map[string]string) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("gormstore: encode metadata: %w", err)
	}
	return b.updateColumns(ctx, username, map[string]any{"metadata": string(raw)})
}

func (b *Backend) UpdateUserBalance(ctx context.Context, username string, delta int64) error {
	result := b.db.WithContext(ctx).Model(&userRow{}).
		Where("username = ?", username).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return warden.ErrUserNotFound
	}
	return nil
}

func (b *Backend) DeleteUser(ctx context.Context, username string) error {
	result := b.db.WithContext(ctx).Where("username = ?", username).Delete(&userRow{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return warden.ErrUserNotFound
	}
	return nil
}

func (b *Backend) listRows(ctx context.Context, tx *gorm.DB, skip, limit int) ([]*warden.User, error) {
	if skip < 0 {
		skip = 0
	}
	var rows []userRow
	tx = tx.Order("created_at, id").Offset(skip)
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]*warden.User, len(rows))
	for i := range rows {
		u, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		users[i] = u
	}
	return users, nil
}

func (b *Backend) ListUsers(ctx context.Context, skip, limit int) ([]*warden.User, error) {
	return b.listRows(ctx, b.db.WithContext(ctx).Model(&userRow{}), skip, limit)
}

func (b *Backend) SearchUsers(ctx context.Context, query string, skip, limit int) ([]*warden.User, error) {
	pattern := "%" + query + "%"
	tx := b.db.WithContext(ctx).Model(&userRow{}).
		Where("username LIKE ? OR email LIKE ?", pattern, pattern)
	return b.listRows(ctx, tx, skip, limit)
}

func (b *Backend) countWhere(ctx context.Context, column, value string) (bool, error) {
	var n int64
	err := b.db.WithContext(ctx).Model(&userRow{}).Where(column+" = ?", value).Count(&n).Error
	return n > 0, err
}

func (b *Backend) IsUsernameTaken(ctx context.Context, username string) (bool, error) {
	return b.countWhere(ctx, "username", username)
}

func (b *Backend) IsEmailTaken(ctx context.Context, email string) (bool, error) {
	return b.countWhere(ctx, "email", email)
}

func (b *Backend) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := b.db.WithContext(ctx).Model(&userRow{}).Count(&n).Error
	return n, err
}

func (b *Backend) HealthCheck(ctx context.Context) error {
	db, err := b.db.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (b *Backend) Close() error {
	db, err := b.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
