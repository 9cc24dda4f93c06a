// Package gormrepo provides the SQLite-backed sessions.Repo used in
// production. Rows are append-only apart from activity touches, token
// rotation, and the single transition to closed.
package gormrepo

import (
	"context"
	"time"

	ierrors "github.com/nauthd/nauth/internal/errors"
	"github.com/nauthd/nauth/sessions"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sessionRecord is the storage shape; the domain model stays free of ORM tags.
type sessionRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	SessionID     string `gorm:"uniqueIndex;not null"`
	UserID        string `gorm:"index"`
	UserEmail     string `gorm:"index"`
	DeviceAddress string `gorm:"index:idx_device"`
	DeviceName    string `gorm:"index:idx_device"`
	DeviceInfo    string

	AccessToken  string
	RefreshToken string

	CreatedAt  time.Time
	LastActive time.Time
	ExpiresAt  time.Time

	Active       bool `gorm:"index"`
	ClosedAt     *time.Time
	ClosedReason string

	ForceLoggedBy      string
	ForceLoggedAt      *time.Time
	ForceLogoutMessage string
}

func (sessionRecord) TableName() string { return "user_sessions" }

type Repo struct {
	db *gorm.DB
}

// New opens (or creates) the SQLite database at path and migrates the
// session table.
func New(path string) (*Repo, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, ierrors.Wrapf(err, "[gormrepo.New] open %q", path)
	}
	if err := db.AutoMigrate(&sessionRecord{}); err != nil {
		return nil, ierrors.Wrapf(err, "[gormrepo.New] migrate")
	}
	return &Repo{db: db}, nil
}

var _ sessions.Repo = (*Repo)(nil)

func (r *Repo) Create(ctx context.Context, session *sessions.Session) error {
	rec := toRecord(session)
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if ierrors.Is(err, gorm.ErrDuplicatedKey) {
			return ierrors.Wrapf(ierrors.ErrStorageConflict, "[Repo.Create] session %s", session.SessionID)
		}
		return ierrors.Wrapf(err, "[Repo.Create]")
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, sessionID string) (*sessions.Session, error) {
	var rec sessionRecord
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&rec).Error
	if err != nil {
		if ierrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ierrors.ErrSessionNotFound
		}
		return nil, ierrors.Wrapf(err, "[Repo.Get]")
	}
	return fromRecord(&rec), nil
}

func (r *Repo) ActiveForUser(ctx context.Context, userEmail string, now time.Time) ([]*sessions.Session, error) {
	var recs []sessionRecord
	err := r.db.WithContext(ctx).
		Where("user_email = ? AND active = ? AND expires_at > ?", userEmail, true, now).
		Order("created_at").
		Find(&recs).Error
	if err != nil {
		return nil, ierrors.Wrapf(err, "[Repo.ActiveForUser]")
	}
	out := make([]*sessions.Session, 0, len(recs))
	for i := range recs {
		out = append(out, fromRecord(&recs[i]))
	}
	return out, nil
}

func (r *Repo) Touch(ctx context.Context, sessionID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("session_id = ? AND active = ?", sessionID, true).
		Update("last_active", at).Error
	return ierrors.Wrapf(err, "[Repo.Touch]")
}

func (r *Repo) UpdateTokens(ctx context.Context, sessionID, accessToken, refreshToken string) error {
	err := r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
		}).Error
	return ierrors.Wrapf(err, "[Repo.UpdateTokens]")
}

func (r *Repo) Close(ctx context.Context, sessionID string, closure sessions.Closure) (bool, error) {
	res := r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("session_id = ? AND active = ?", sessionID, true).
		Updates(closureColumns(closure))
	if res.Error != nil {
		return false, ierrors.Wrapf(res.Error, "[Repo.Close]")
	}
	return res.RowsAffected > 0, nil
}

func (r *Repo) CloseDevice(ctx context.Context, device sessions.DeviceKey, closure sessions.Closure) (int, error) {
	res := r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("device_address = ? AND device_name = ? AND active = ?", device.Address, device.Name, true).
		Updates(closureColumns(closure))
	if res.Error != nil {
		return 0, ierrors.Wrapf(res.Error, "[Repo.CloseDevice]")
	}
	return int(res.RowsAffected), nil
}

// closureColumns builds the single write that flips a row inactive. The
// active guard in the callers' WHERE clause keeps the transition write-once.
func closureColumns(closure sessions.Closure) map[string]interface{} {
	cols := map[string]interface{}{
		"active":        false,
		"closed_at":     closure.At,
		"closed_reason": string(closure.Reason),
	}
	if closure.Reason == sessions.ClosedReasonForceLogout {
		cols["force_logged_by"] = closure.By
		cols["force_logged_at"] = closure.At
		cols["force_logout_message"] = closure.Message
	}
	return cols
}

func toRecord(s *sessions.Session) *sessionRecord {
	return &sessionRecord{
		SessionID:          s.SessionID,
		UserID:             s.UserID,
		UserEmail:          s.UserEmail,
		DeviceAddress:      s.Device.Address,
		DeviceName:         s.Device.Name,
		DeviceInfo:         s.Device.Info,
		AccessToken:        s.AccessToken,
		RefreshToken:       s.RefreshToken,
		CreatedAt:          s.CreatedAt,
		LastActive:         s.LastActive,
		ExpiresAt:          s.ExpiresAt,
		Active:             s.Active,
		ClosedAt:           s.ClosedAt,
		ClosedReason:       string(s.ClosedReason),
		ForceLoggedBy:      s.ForceLoggedBy,
		ForceLoggedAt:      s.ForceLoggedAt,
		ForceLogoutMessage: s.ForceLogoutMessage,
	}
}

func fromRecord(rec *sessionRecord) *sessions.Session {
	return &sessions.Session{
		SessionID: rec.SessionID,
		UserID:    rec.UserID,
		UserEmail: rec.UserEmail,
		Device: sessions.DeviceIdentity{
			Address: rec.DeviceAddress,
			Name:    rec.DeviceName,
			Info:    rec.DeviceInfo,
		},
		AccessToken:        rec.AccessToken,
		RefreshToken:       rec.RefreshToken,
		CreatedAt:          rec.CreatedAt,
		LastActive:         rec.LastActive,
		ExpiresAt:          rec.ExpiresAt,
		Active:             rec.Active,
		ClosedAt:           rec.ClosedAt,
		ClosedReason:       sessions.ClosedReason(rec.ClosedReason),
		ForceLoggedBy:      rec.ForceLoggedBy,
		ForceLoggedAt:      rec.ForceLoggedAt,
		ForceLogoutMessage: rec.ForceLogoutMessage,
	}
}
