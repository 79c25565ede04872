package model

// User 员工 — 对应 users
type User struct {
	UserID         string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	Names          string `gorm:"type:varchar(100);not null"                     json:"names"`
	Surnames       string `gorm:"type:varchar(100);not null;default:''"          json:"surnames"`
	DocumentNumber string `gorm:"type:varchar(30);not null"                      json:"document_number"`
	IsActive       bool   `gorm:"not null;default:true"                          json:"is_active"`
	SoftDeleteModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }
