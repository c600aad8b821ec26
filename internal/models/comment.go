package models

import (
	"gorm.io/gorm"
)

// RestaurantComment — отзыв сотрудника о заведении, привязан к компании.
type RestaurantComment struct {
	gorm.Model
	CompanyID      uint   `gorm:"index;not null"`
	UserID         uint   `gorm:"index;not null"`
	User           User   `gorm:"foreignKey:UserID"`
	PlaceID        string `gorm:"index;not null"`
	RestaurantName string `gorm:"not null"`
	Rating         int    `gorm:"not null"` // От 1 до 5
	Content        string `gorm:"not null"`
}
