package models

import (
	"gorm.io/gorm"
)

type Company struct {
	gorm.Model
	Name      string  `gorm:"uniqueIndex;not null"` // Название компании
	Address   string  `gorm:"not null"`             // Адрес офиса
	Latitude  float64 `gorm:"not null"`
	Longitude float64 `gorm:"not null"`
}

type User struct {
	gorm.Model
	CompanyID      uint    `gorm:"index;not null"` // Пользователь принадлежит ровно одной компании
	Company        Company `gorm:"foreignKey:CompanyID"`
	Email          string  `gorm:"uniqueIndex;not null"`
	Nickname       string  `gorm:"not null"`
	PasswordHash   string  `gorm:"not null"`
	TicketCount    int     `gorm:"not null;default:0"` // Билеты для гачи, начисляются за состоявшиеся обеды
	EquippedItemID *uint   `gorm:"index"`              // Надетый косметический предмет (nil — ничего не надето)
}
