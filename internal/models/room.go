package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Статусы комнаты. Комната видна и доступна для вступления только в статусе
// waiting при deleted=false и departure_time в будущем.
const (
	RoomStatusWaiting  = "waiting"  // Набор участников открыт
	RoomStatusDeparted = "departed" // Отплыли: на момент отправления было >= 2 участников
	RoomStatusFinished = "finished" // Не состоялась: отменена создателем или < 2 участников
)

// Причины выхода участника из комнаты.
const (
	ExitTypeSailed = "sailed" // Комната отплыла вместе с участником
	ExitTypeCancel = "cancel" // Участник вышел сам, создатель отменил комнату или рейс не состоялся
)

type Room struct {
	gorm.Model
	CompanyID         uint      `gorm:"index;not null"` // Комната видна только внутри своей компании
	CreatorID         uint      `gorm:"index;not null"`
	Creator           User      `gorm:"foreignKey:CreatorID"`
	RestaurantName    string    `gorm:"not null"`
	RestaurantAddress string    `gorm:"not null"`
	Latitude          float64   `gorm:"not null"`
	Longitude         float64   `gorm:"not null"`
	PlaceID           string    `gorm:"index"` // Идентификатор заведения во внешнем картографическом API
	MaxParticipants   int       `gorm:"not null"` // Фиксируется при создании, от 2 до 10
	DepartureTime     time.Time `gorm:"index;not null"`
	Status            string    `gorm:"index;not null;default:'waiting'"`
	Deleted           bool      `gorm:"index;not null;default:false"` // Комнаты не удаляются физически — история нужна рейтингу
}

// Title возвращает отображаемый заголовок комнаты для клиента.
func (r *Room) Title() string {
	return fmt.Sprintf("%s 출항해요", r.RestaurantName)
}

type Participant struct {
	gorm.Model
	RoomID   uint       `gorm:"index;not null"`
	Room     Room       `gorm:"foreignKey:RoomID"`
	UserID   uint       `gorm:"index;not null"`
	User     User       `gorm:"foreignKey:UserID"`
	JoinedAt time.Time  `gorm:"not null"`
	LeftAt   *time.Time // Время выхода из комнаты (nil — активный участник)
	ExitType string     // sailed или cancel, заполняется вместе с LeftAt
}
