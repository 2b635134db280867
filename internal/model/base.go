package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel 内容与选课等配置类数据，自增主键
type BaseModel struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// UUIDBase 追踪记录使用 UUID，便于跨实例写入和对外暴露尝试 ID
type UUIDBase struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (b *UUIDBase) BeforeCreate(*gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// TenantScope 租户与机构标识，由网关透传，引擎只做过滤不做校验
type TenantScope struct {
	TenantID       string `json:"tenantId"`
	OrganizationID string `json:"organizationId"`
}

// Tenant 嵌入到所有业务表，保证每条记录都带有租户列
type Tenant struct {
	TenantID       string `gorm:"size:64;index" json:"tenantId"`
	OrganizationID string `gorm:"size:64;index" json:"organizationId"`
}

func (t Tenant) Scope() TenantScope {
	return TenantScope{TenantID: t.TenantID, OrganizationID: t.OrganizationID}
}

func (s TenantScope) Columns() Tenant {
	return Tenant{TenantID: s.TenantID, OrganizationID: s.OrganizationID}
}
