package handlers

import (
	"errors"
	"math/rand"
	"net/http"
	"strconv"

	"lunchsail/internal/models"
	"lunchsail/internal/response"
	"lunchsail/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errNoTickets  = errors.New("нет билетов")
	errGachaEmpty = errors.New("пул предметов пуст")
)

type ItemPayload struct {
	ItemID   uint   `json:"item_id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
	Grade    string `json:"grade"`
}

type DrawResponse struct {
	Success     bool        `json:"success"`
	TicketCount int         `json:"ticket_count"` // Остаток билетов после розыгрыша
	Item        ItemPayload `json:"item"`
}

// pickWeighted выбирает предмет случайно, пропорционально весам.
func pickWeighted(items []models.Item) models.Item {
	total := 0
	for _, item := range items {
		if item.Weight > 0 {
			total += item.Weight
		}
	}
	if total <= 0 {
		return items[0]
	}
	r := rand.Intn(total)
	for _, item := range items {
		if item.Weight <= 0 {
			continue
		}
		if r < item.Weight {
			return item
		}
		r -= item.Weight
	}
	return items[len(items)-1]
}

// DrawItemHandler разыгрывает предмет за билет
// @Summary		Розыгрыш гачи
// @Description	Списывает один билет и выдаёт случайный предмет с учётом весов
// @Tags			gacha
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	DrawResponse	"Выпавший предмет"
// @Failure		400	{object}	response.ErrorResponse	"Нет билетов (NO_TICKETS)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR, GACHA_EMPTY)"
// @Router			/api/gacha/draw [post]
func DrawItemHandler(c *gin.Context) {
	userID := c.GetUint("userID")

	var drawn models.Item
	var ticketsLeft int
	err := storage.DB.Transaction(func(tx *gorm.DB) error {
		// Блокировка строки пользователя защищает остаток билетов
		// от параллельных розыгрышей.
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, userID).Error; err != nil {
			return err
		}
		if user.TicketCount < 1 {
			return errNoTickets
		}

		var items []models.Item
		if err := tx.Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return errGachaEmpty
		}
		drawn = pickWeighted(items)

		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).
			UpdateColumn("ticket_count", gorm.Expr("ticket_count - ?", 1)).Error; err != nil {
			return err
		}
		ticketsLeft = user.TicketCount - 1

		return tx.Create(&models.UserItem{UserID: user.ID, ItemID: drawn.ID}).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, errNoTickets):
			c.JSON(http.StatusBadRequest, response.ErrorResponse{
				Code:    "NO_TICKETS",
				Message: "Недостаточно билетов для розыгрыша",
			})
		case errors.Is(err, errGachaEmpty):
			c.JSON(http.StatusInternalServerError, response.ErrorResponse{
				Code:    "GACHA_EMPTY",
				Message: "Пул предметов гачи пуст",
			})
		default:
			zap.L().Error("Ошибка розыгрыша гачи", zap.Error(err))
			c.JSON(http.StatusInternalServerError, response.ErrorResponse{
				Code:    "DB_ERROR",
				Message: "Внутренняя ошибка сервера",
			})
		}
		return
	}

	c.JSON(http.StatusOK, DrawResponse{
		Success:     true,
		TicketCount: ticketsLeft,
		Item: ItemPayload{
			ItemID:   drawn.ID,
			Name:     drawn.Name,
			ImageURL: drawn.ImageURL,
			Grade:    drawn.Grade,
		},
	})
}

// EquipItemHandler надевает косметический предмет
// @Summary		Надеть предмет
// @Description	Делает предмет из инвентаря пользователя надетым
// @Tags			gacha
// @Accept			json
// @Produce		json
// @Param			id	path		string	true	"ID предмета"
// @Security		BearerAuth
// @Success		200	{object}	response.SuccessResponse	"Предмет надет"
// @Failure		400	{object}	response.ErrorResponse	"Предмет не принадлежит пользователю (ITEM_NOT_OWNED)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/items/{id}/equip [post]
func EquipItemHandler(c *gin.Context) {
	itemID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Неверный идентификатор предмета",
		})
		return
	}

	userID := c.GetUint("userID")

	var owned models.UserItem
	if err := storage.DB.Where("user_id = ? AND item_id = ?", userID, itemID).
		First(&owned).Error; err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "ITEM_NOT_OWNED",
			Message: "Предмет не найден в инвентаре",
		})
		return
	}

	if err := storage.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("equipped_item_id", owned.ItemID).Error; err != nil {
		zap.L().Error("Ошибка надевания предмета", zap.Error(err))
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Внутренняя ошибка сервера",
		})
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse{
		Success: true,
		Message: "Предмет надет",
	})
}

type InventoryItem struct {
	ItemPayload
	Equipped bool `json:"equipped"`
}

type InventoryResponse struct {
	Success     bool            `json:"success"`
	TicketCount int             `json:"ticket_count"`
	Items       []InventoryItem `json:"items"`
}

// GetMyItemsHandler возвращает инвентарь пользователя
// @Summary		Инвентарь
// @Description	Возвращает предметы пользователя, отметку о надетом предмете и остаток билетов
// @Tags			gacha
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	InventoryResponse	"Инвентарь пользователя"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/items [get]
func GetMyItemsHandler(c *gin.Context) {
	userID := c.GetUint("userID")

	var user models.User
	if err := storage.DB.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки пользователя",
			Details: err.Error(),
		})
		return
	}

	var owned []models.UserItem
	if err := storage.DB.Preload("Item").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&owned).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки инвентаря",
			Details: err.Error(),
		})
		return
	}

	items := make([]InventoryItem, 0, len(owned))
	for _, entry := range owned {
		items = append(items, InventoryItem{
			ItemPayload: ItemPayload{
				ItemID:   entry.ItemID,
				Name:     entry.Item.Name,
				ImageURL: entry.Item.ImageURL,
				Grade:    entry.Item.Grade,
			},
			Equipped: user.EquippedItemID != nil && *user.EquippedItemID == entry.ItemID,
		})
	}

	c.JSON(http.StatusOK, InventoryResponse{
		Success:     true,
		TicketCount: user.TicketCount,
		Items:       items,
	})
}
