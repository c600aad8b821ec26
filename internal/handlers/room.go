package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"lunchsail/internal/models"
	"lunchsail/internal/response"
	"lunchsail/internal/storage"
	"lunchsail/internal/tasks"
	"lunchsail/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ошибки бизнес-правил жизненного цикла комнаты. Возвращаются из транзакций
// и транслируются в HTTP-ответы в одном месте.
var (
	errRoomNotFound  = errors.New("комната не найдена")
	errRoomExpired   = errors.New("комната уже отправилась")
	errAlreadyJoined = errors.New("пользователь уже состоит в комнате")
	errRoomFull      = errors.New("комната заполнена")
	errNotInRoom     = errors.New("активное участие не найдено")
	errNotCreator    = errors.New("действие доступно только создателю")
)

func roomErrorResponse(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errRoomNotFound):
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "ROOM_NOT_FOUND",
			Message: "Комната не найдена",
		})
	case errors.Is(err, errRoomExpired):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "ROOM_EXPIRED",
			Message: "Комната уже отправилась",
		})
	case errors.Is(err, errAlreadyJoined):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "ALREADY_JOINED",
			Message: "Вы уже состоите в этой комнате",
		})
	case errors.Is(err, errRoomFull):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "ROOM_FULL",
			Message: "В комнате нет свободных мест",
		})
	case errors.Is(err, errNotInRoom):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "NOT_IN_ROOM",
			Message: "Вы не состоите в этой комнате",
		})
	case errors.Is(err, errNotCreator):
		c.JSON(http.StatusForbidden, response.ErrorResponse{
			Code:    "NOT_ROOM_CREATOR",
			Message: "Отменить комнату может только её создатель",
		})
	default:
		zap.L().Error("Ошибка операции с комнатой", zap.Error(err))
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Внутренняя ошибка сервера",
		})
	}
}

type CreateRoomRequest struct {
	RestaurantName    string  `json:"restaurant_name" binding:"required"`
	RestaurantAddress string  `json:"restaurant_address" binding:"required"`
	Latitude          float64 `json:"latitude" binding:"required"`
	Longitude         float64 `json:"longitude" binding:"required"`
	PlaceID           string  `json:"place_id"`
	MaxParticipants   int     `json:"max_participants" binding:"required"`
	DepartureTime     string  `json:"departure_time" binding:"required"` // RFC3339
}

// CreateRoomHandler создаёт комнату и добавляет создателя первым участником
// @Summary		Создание комнаты
// @Description	Создаёт комнату обеда; создатель автоматически становится первым участником
// @Tags			rooms
// @Accept			json
// @Produce		json
// @Param			room	body		CreateRoomRequest	true	"Данные комнаты"
// @Security		BearerAuth
// @Success		201	{object}	response.RoomResponse	"Созданная комната"
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/rooms [post]
func CreateRoomHandler(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	if req.MaxParticipants < 2 || req.MaxParticipants > 10 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Число участников должно быть от 2 до 10",
		})
		return
	}

	departure, err := time.Parse(time.RFC3339, req.DepartureTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Неверный формат времени отправления, ожидается RFC3339",
			Details: err.Error(),
		})
		return
	}
	// Все сравнения времени — в UTC, клиент присылает смещение в самом значении.
	departure = departure.UTC()
	now := time.Now().UTC()
	if !departure.After(now) {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Время отправления должно быть в будущем",
		})
		return
	}

	userID := c.GetUint("userID")
	companyID := c.GetUint("companyID")

	room := models.Room{
		CompanyID:         companyID,
		CreatorID:         userID,
		RestaurantName:    req.RestaurantName,
		RestaurantAddress: req.RestaurantAddress,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		PlaceID:           req.PlaceID,
		MaxParticipants:   req.MaxParticipants,
		DepartureTime:     departure,
		Status:            models.RoomStatusWaiting,
		Deleted:           false,
	}

	// Комната и участие создателя записываются в одной транзакции.
	err = storage.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		creatorEntry := models.Participant{
			RoomID:   room.ID,
			UserID:   userID,
			JoinedAt: now,
		}
		return tx.Create(&creatorEntry).Error
	})
	if err != nil {
		roomErrorResponse(c, err)
		return
	}

	ws.NotifyRoomRefresh(companyID)

	var creator models.User
	storage.DB.First(&creator, userID)

	c.JSON(http.StatusCreated, response.RoomResponse{
		Success: true,
		Room: response.RoomItem{
			RoomID:              room.ID,
			Title:               room.Title(),
			RestaurantName:      room.RestaurantName,
			RestaurantAddress:   room.RestaurantAddress,
			Latitude:            room.Latitude,
			Longitude:           room.Longitude,
			PlaceID:             room.PlaceID,
			MaxParticipants:     room.MaxParticipants,
			CurrentParticipants: 1,
			DepartureTime:       room.DepartureTime,
			Status:              room.Status,
			CreatorID:           userID,
			CreatorNickname:     creator.Nickname,
			IsParticipant:       true,
			Participants: []response.RoomParticipant{
				{UserID: userID, Nickname: creator.Nickname},
			},
			CreatedAt: room.CreatedAt,
		},
	})
}

// ListRoomsHandler возвращает открытые комнаты компании
// @Summary		Список комнат
// @Description	Возвращает все открытые комнаты компании с составом участников; перед выборкой закрывает просроченные комнаты
// @Tags			rooms
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	response.RoomListResponse	"Список комнат"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/rooms [get]
func ListRoomsHandler(c *gin.Context) {
	// Сначала закрываем просроченные комнаты, чтобы список не содержал
	// комнат с прошедшим временем отправления.
	if err := tasks.SweepExpiredRooms(); err != nil {
		roomErrorResponse(c, err)
		return
	}

	userID := c.GetUint("userID")
	companyID := c.GetUint("companyID")

	var rooms []models.Room
	if err := storage.DB.
		Preload("Creator").
		Where("company_id = ? AND status = ? AND deleted = ?", companyID, models.RoomStatusWaiting, false).
		Order("created_at DESC").
		Find(&rooms).Error; err != nil {
		roomErrorResponse(c, err)
		return
	}

	if len(rooms) == 0 {
		c.JSON(http.StatusOK, response.RoomListResponse{
			Success:    true,
			TotalCount: 0,
			Rooms:      []response.RoomItem{},
		})
		return
	}

	roomIDs := make([]uint, 0, len(rooms))
	for _, room := range rooms {
		roomIDs = append(roomIDs, room.ID)
	}

	var participants []models.Participant
	if err := storage.DB.
		Preload("User").
		Where("room_id IN ? AND left_at IS NULL", roomIDs).
		Order("joined_at ASC").
		Find(&participants).Error; err != nil {
		roomErrorResponse(c, err)
		return
	}

	// Подтягиваем изображения надетых предметов участников одним запросом.
	var itemIDs []uint
	for _, p := range participants {
		if p.User.EquippedItemID != nil {
			itemIDs = append(itemIDs, *p.User.EquippedItemID)
		}
	}
	imageByItem := make(map[uint]string)
	if len(itemIDs) > 0 {
		var items []models.Item
		if err := storage.DB.Where("id IN ?", itemIDs).Find(&items).Error; err == nil {
			for _, item := range items {
				imageByItem[item.ID] = item.ImageURL
			}
		}
	}

	participantsByRoom := make(map[uint][]response.RoomParticipant)
	isParticipant := make(map[uint]bool)
	for _, p := range participants {
		entry := response.RoomParticipant{
			UserID:   p.UserID,
			Nickname: p.User.Nickname,
		}
		if p.User.EquippedItemID != nil {
			entry.ImageURL = imageByItem[*p.User.EquippedItemID]
		}
		participantsByRoom[p.RoomID] = append(participantsByRoom[p.RoomID], entry)
		if p.UserID == userID {
			isParticipant[p.RoomID] = true
		}
	}

	items := make([]response.RoomItem, 0, len(rooms))
	for _, room := range rooms {
		roster := participantsByRoom[room.ID]
		if roster == nil {
			roster = []response.RoomParticipant{}
		}
		items = append(items, response.RoomItem{
			RoomID:              room.ID,
			Title:               room.Title(),
			RestaurantName:      room.RestaurantName,
			RestaurantAddress:   room.RestaurantAddress,
			Latitude:            room.Latitude,
			Longitude:           room.Longitude,
			PlaceID:             room.PlaceID,
			MaxParticipants:     room.MaxParticipants,
			CurrentParticipants: len(roster),
			DepartureTime:       room.DepartureTime,
			Status:              room.Status,
			CreatorID:           room.CreatorID,
			CreatorNickname:     room.Creator.Nickname,
			IsParticipant:       isParticipant[room.ID],
			Participants:        roster,
			CreatedAt:           room.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, response.RoomListResponse{
		Success:    true,
		TotalCount: len(items),
		Rooms:      items,
	})
}

// JoinRoomHandler добавляет пользователя в комнату
// @Summary		Вступление в комнату
// @Description	Добавляет пользователя в комнату; проверка мест и вставка выполняются в одной транзакции с блокировкой строки комнаты
// @Tags			rooms
// @Accept			json
// @Produce		json
// @Param			id	path		string	true	"ID комнаты"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse	"Успешное вступление"
// @Failure		400	{object}	response.ErrorResponse	"ROOM_EXPIRED, ALREADY_JOINED, ROOM_FULL"
// @Failure		404	{object}	response.ErrorResponse	"Комната не найдена (ROOM_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/rooms/{id}/join [post]
func JoinRoomHandler(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Неверный идентификатор комнаты",
		})
		return
	}

	userID := c.GetUint("userID")
	companyID := c.GetUint("companyID")
	now := time.Now().UTC()

	err = storage.DB.Transaction(func(tx *gorm.DB) error {
		// SELECT ... FOR UPDATE: параллельные вступления в одну комнату
		// сериализуются, и лимит мест не может быть превышен.
		var room models.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND company_id = ? AND deleted = ?", roomID, companyID, false).
			First(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errRoomNotFound
			}
			return err
		}

		if !room.DepartureTime.After(now) {
			return errRoomExpired
		}

		var existing models.Participant
		if err := tx.Where("room_id = ? AND user_id = ? AND left_at IS NULL", room.ID, userID).
			First(&existing).Error; err == nil {
			return errAlreadyJoined
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var count int64
		if err := tx.Model(&models.Participant{}).
			Where("room_id = ? AND left_at IS NULL", room.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(room.MaxParticipants) {
			return errRoomFull
		}

		entry := models.Participant{
			RoomID:   room.ID,
			UserID:   userID,
			JoinedAt: now,
		}
		return tx.Create(&entry).Error
	})
	if err != nil {
		roomErrorResponse(c, err)
		return
	}

	ws.NotifyRoomRefresh(companyID)

	c.JSON(http.StatusOK, response.SuccessResponse{
		Success: true,
		Message: "Вы присоединились к комнате",
	})
}

// LeaveRoomHandler выводит пользователя из комнаты
// @Summary		Выход из комнаты
// @Description	Закрывает активное участие пользователя в комнате; сама комната при этом не закрывается
// @Tags			rooms
// @Accept			json
// @Produce		json
// @Param			id	path		string	true	"ID комнаты"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse	"Успешный выход"
// @Failure		400	{object}	response.ErrorResponse	"Активное участие не найдено (NOT_IN_ROOM)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/rooms/{id}/leave [post]
func LeaveRoomHandler(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Неверный идентификатор комнаты",
		})
		return
	}

	userID := c.GetUint("userID")
	companyID := c.GetUint("companyID")
	now := time.Now().UTC()

	result := storage.DB.Model(&models.Participant{}).
		Where("room_id = ? AND user_id = ? AND left_at IS NULL", roomID, userID).
		Updates(map[string]interface{}{"left_at": now, "exit_type": models.ExitTypeCancel})
	if result.Error != nil {
		roomErrorResponse(c, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		roomErrorResponse(c, errNotInRoom)
		return
	}

	ws.NotifyRoomRefresh(companyID)

	c.JSON(http.StatusOK, response.SuccessResponse{
		Success: true,
		Message: "Вы вышли из комнаты",
	})
}

// DeleteRoomHandler отменяет комнату (только создатель)
// @Summary		Отмена комнаты
// @Description	Создатель отменяет комнату: комната закрывается, все активные участия завершаются
// @Tags			rooms
// @Accept			json
// @Produce		json
// @Param			id	path		string	true	"ID комнаты"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse	"Комната отменена"
// @Failure		403	{object}	response.ErrorResponse	"Не создатель комнаты (NOT_ROOM_CREATOR)"
// @Failure		404	{object}	response.ErrorResponse	"Комната не найдена (ROOM_NOT_FOUND)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/rooms/{id} [delete]
func DeleteRoomHandler(c *gin.Context) {
	roomID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Неверный идентификатор комнаты",
		})
		return
	}

	userID := c.GetUint("userID")
	companyID := c.GetUint("companyID")
	now := time.Now().UTC()

	// Комната и все активные участия закрываются в одной транзакции.
	err = storage.DB.Transaction(func(tx *gorm.DB) error {
		var room models.Room
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND company_id = ? AND deleted = ?", roomID, companyID, false).
			First(&room).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errRoomNotFound
			}
			return err
		}

		if room.CreatorID != userID {
			return errNotCreator
		}

		if err := tx.Model(&models.Room{}).Where("id = ?", room.ID).
			Updates(map[string]interface{}{"status": models.RoomStatusFinished, "deleted": true}).Error; err != nil {
			return err
		}

		return tx.Model(&models.Participant{}).
			Where("room_id = ? AND left_at IS NULL", room.ID).
			Updates(map[string]interface{}{"left_at": now, "exit_type": models.ExitTypeCancel}).Error
	})
	if err != nil {
		roomErrorResponse(c, err)
		return
	}

	ws.NotifyRoomRefresh(companyID)

	c.JSON(http.StatusOK, response.SuccessResponse{
		Success: true,
		Message: "Комната отменена",
	})
}
