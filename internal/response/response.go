package response

import "time"

// SuccessResponse представляет успешный ответ API
type SuccessResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Операция успешно выполнена"`
}

// ErrorResponse представляет ответ с ошибкой API
type ErrorResponse struct {
	Success bool `json:"success" example:"false"`

	// Код ошибки для программной обработки
	// example: VALIDATION_ERROR
	Code string `json:"code"`

	// Человекочитаемое сообщение об ошибке
	// example: Ошибка валидации данных
	Message string `json:"message"`

	// Дополнительные детали об ошибке (опционально)
	Details string `json:"details,omitempty"`
}

// TokenResponse представляет ответ с токенами авторизации
type TokenResponse struct {
	// JWT токен для доступа к защищенным эндпоинтам
	AccessToken string `json:"access_token"`

	// JWT токен для обновления access токена
	RefreshToken string `json:"refresh_token"`
}

// RoomParticipant — участник комнаты в ответе списка.
type RoomParticipant struct {
	UserID   uint   `json:"user_id"`
	Nickname string `json:"nickname"`
	ImageURL string `json:"image_url,omitempty"` // Изображение надетого косметического предмета
}

// RoomItem — одна комната в ответе списка комнат.
type RoomItem struct {
	RoomID              uint              `json:"room_id"`
	Title               string            `json:"title"`
	RestaurantName      string            `json:"restaurant_name"`
	RestaurantAddress   string            `json:"restaurant_address"`
	Latitude            float64           `json:"latitude"`
	Longitude           float64           `json:"longitude"`
	PlaceID             string            `json:"place_id,omitempty"`
	MaxParticipants     int               `json:"max_participants"`
	CurrentParticipants int               `json:"current_participants"`
	DepartureTime       time.Time         `json:"departure_time"`
	Status              string            `json:"status"`
	CreatorID           uint              `json:"creator_id"`
	CreatorNickname     string            `json:"creator_nickname"`
	IsParticipant       bool              `json:"is_participant"` // Состоит ли текущий пользователь в комнате
	Participants        []RoomParticipant `json:"participants"`
	CreatedAt           time.Time         `json:"created_at"`
}

// RoomListResponse — ответ на запрос списка комнат.
type RoomListResponse struct {
	Success    bool       `json:"success"`
	TotalCount int        `json:"total_count"`
	Rooms      []RoomItem `json:"rooms"`
}

// RoomResponse — ответ с данными одной комнаты (после создания).
type RoomResponse struct {
	Success bool     `json:"success"`
	Room    RoomItem `json:"room"`
}
