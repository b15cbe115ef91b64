// pkg/database/profile.go
package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"CredentialDesk/pkg/apperr"
	"CredentialDesk/pkg/model"
)

type ProfileDB struct {
	db *gorm.DB
}

func (p *Postgres) Profile() *ProfileDB {
	return &ProfileDB{db: p.db}
}

func (p *ProfileDB) Save(ctx context.Context, profile *model.Profile) error {
	return p.db.WithContext(ctx).Save(profile).Error
}

func (p *ProfileDB) GetByID(ctx context.Context, profileID string) (*model.Profile, error) {
	var profile model.Profile
	err := p.db.WithContext(ctx).First(&profile, "id = ?", profileID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("get profile", "用户不存在")
		}
		return nil, fmt.Errorf("获取用户信息失败: %w", err)
	}
	return &profile, nil
}

// NotifiableByRole 返回指定角色中开启邮件通知的用户
func (p *ProfileDB) NotifiableByRole(ctx context.Context, role model.Role) ([]*model.Profile, error) {
	var profiles []*model.Profile
	err := p.db.WithContext(ctx).
		Where("role = ? AND email_notifications = ?", role, true).
		Order("created_at ASC").
		Find(&profiles).Error
	if err != nil {
		return nil, fmt.Errorf("查询通知对象失败: %w", err)
	}
	return profiles, nil
}
