// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 用户角色常量。患者管理自己的用药数据；医护人员与管理员
// 以只读方式查看患者数据（服务端逐请求校验）。
const (
	RolePatient  = "PATIENT"
	RoleProvider = "PROVIDER"
	RoleAdmin    = "ADMIN"
)

// User 对应于数据库中的 'users' 表。
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"`
	Role      string    `gorm:"type:varchar(20);not null;default:'PATIENT'" json:"role"`
	Email     string    `gorm:"type:varchar(255)" json:"email"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}
