package models

import (
	"gorm.io/gorm"
)

type Item struct {
	gorm.Model
	Name     string `gorm:"uniqueIndex;not null"`
	ImageURL string `gorm:"not null"`
	Grade    string `gorm:"not null"` // common / rare / epic
	Weight   int    `gorm:"not null"` // Вес для взвешенного случайного выбора, > 0
}

// UserItem — предмет, полученный пользователем из гачи.
type UserItem struct {
	gorm.Model
	UserID uint `gorm:"index;not null"`
	ItemID uint `gorm:"index;not null"`
	Item   Item `gorm:"foreignKey:ItemID"`
}
