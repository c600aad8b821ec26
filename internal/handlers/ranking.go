package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"lunchsail/internal/models"
	"lunchsail/internal/response"
	"lunchsail/internal/storage"

	"github.com/gin-gonic/gin"
)

var rankingCtx = context.Background()

type RankingEntry struct {
	PlaceID        string  `json:"place_id"`
	RestaurantName string  `json:"restaurant_name"`
	DepartedCount  int     `json:"departed_count"` // Сколько раз компания реально ездила в это заведение
	AverageRating  float64 `json:"average_rating"` // Средняя оценка по отзывам, 0 если отзывов нет
}

type RankingResponse struct {
	Success bool           `json:"success"`
	Ranking []RankingEntry `json:"ranking"`
}

// GetRestaurantRankingHandler возвращает рейтинг заведений компании
// @Summary		Рейтинг заведений
// @Description	Топ-20 заведений компании по числу состоявшихся обедов; результат кэшируется в Redis на 5 минут
// @Tags			restaurants
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	RankingResponse	"Рейтинг заведений"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/restaurants/ranking [get]
func GetRestaurantRankingHandler(c *gin.Context) {
	companyID := c.GetUint("companyID")
	cacheKey := fmt.Sprintf("restaurant_ranking_%d", companyID)

	// Проверка кэша
	if storage.RedisClient != nil {
		cached, err := storage.RedisClient.Get(rankingCtx, cacheKey).Result()
		if err == nil && cached != "" {
			var resp RankingResponse
			if err := json.Unmarshal([]byte(cached), &resp); err == nil {
				c.JSON(http.StatusOK, resp)
				return
			}
		}
	}

	// Рейтинг строится только по отплывшим комнатам — история комнат
	// не удаляется физически именно ради этой выборки.
	var entries []RankingEntry
	if err := storage.DB.Model(&models.Room{}).
		Select("place_id, restaurant_name, COUNT(*) AS departed_count").
		Where("company_id = ? AND status = ?", companyID, models.RoomStatusDeparted).
		Group("place_id, restaurant_name").
		Order("departed_count DESC").
		Limit(20).
		Scan(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка построения рейтинга",
			Details: err.Error(),
		})
		return
	}

	// Средние оценки по отзывам подтягиваются одним запросом.
	type ratingRow struct {
		PlaceID       string
		AverageRating float64
	}
	var ratings []ratingRow
	if err := storage.DB.Model(&models.RestaurantComment{}).
		Select("place_id, AVG(rating) AS average_rating").
		Where("company_id = ?", companyID).
		Group("place_id").
		Scan(&ratings).Error; err == nil {
		ratingByPlace := make(map[string]float64, len(ratings))
		for _, r := range ratings {
			ratingByPlace[r.PlaceID] = r.AverageRating
		}
		for i := range entries {
			entries[i].AverageRating = ratingByPlace[entries[i].PlaceID]
		}
	}

	if entries == nil {
		entries = []RankingEntry{}
	}
	resp := RankingResponse{Success: true, Ranking: entries}

	// Кэширование результата на 5 минут
	if storage.RedisClient != nil {
		if payload, err := json.Marshal(resp); err == nil {
			storage.RedisClient.Set(rankingCtx, cacheKey, payload, time.Minute*5)
		}
	}

	c.JSON(http.StatusOK, resp)
}

type CreateCommentRequest struct {
	PlaceID        string `json:"place_id" binding:"required"`
	RestaurantName string `json:"restaurant_name" binding:"required"`
	Rating         int    `json:"rating" binding:"required"`
	Content        string `json:"content" binding:"required"`
}

// CreateCommentHandler добавляет отзыв о заведении
// @Summary		Добавление отзыва
// @Description	Добавляет отзыв пользователя о заведении с оценкой от 1 до 5
// @Tags			restaurants
// @Accept			json
// @Produce		json
// @Param			comment	body		CreateCommentRequest	true	"Отзыв"
// @Security		BearerAuth
// @Success		201	{object}	response.SuccessResponse	"Отзыв добавлен"
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/restaurants/comments [post]
func CreateCommentHandler(c *gin.Context) {
	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	if req.Rating < 1 || req.Rating > 5 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Оценка должна быть от 1 до 5",
		})
		return
	}

	comment := models.RestaurantComment{
		CompanyID:      c.GetUint("companyID"),
		UserID:         c.GetUint("userID"),
		PlaceID:        req.PlaceID,
		RestaurantName: req.RestaurantName,
		Rating:         req.Rating,
		Content:        req.Content,
	}

	if err := storage.DB.Create(&comment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка сохранения отзыва",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, response.SuccessResponse{
		Success: true,
		Message: "Отзыв добавлен",
	})
}

type CommentItem struct {
	CommentID      uint      `json:"comment_id"`
	UserID         uint      `json:"user_id"`
	Nickname       string    `json:"nickname"`
	PlaceID        string    `json:"place_id"`
	RestaurantName string    `json:"restaurant_name"`
	Rating         int       `json:"rating"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type CommentListResponse struct {
	Success    bool          `json:"success"`
	TotalCount int           `json:"total_count"`
	Comments   []CommentItem `json:"comments"`
}

// GetCommentsHandler возвращает отзывы о заведении
// @Summary		Отзывы о заведении
// @Description	Возвращает отзывы компании о заведении, новые первыми
// @Tags			restaurants
// @Accept			json
// @Produce		json
// @Param			place_id	query		string	true	"Идентификатор заведения"
// @Security		BearerAuth
// @Success		200	{object}	CommentListResponse	"Список отзывов"
// @Failure		400	{object}	response.ErrorResponse	"Отсутствует place_id (VALIDATION_ERROR)"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/restaurants/comments [get]
func GetCommentsHandler(c *gin.Context) {
	placeID := c.Query("place_id")
	if placeID == "" {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Параметр place_id обязателен",
		})
		return
	}

	companyID := c.GetUint("companyID")

	var comments []models.RestaurantComment
	if err := storage.DB.Preload("User").
		Where("company_id = ? AND place_id = ?", companyID, placeID).
		Order("created_at DESC").
		Find(&comments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Ошибка загрузки отзывов",
			Details: err.Error(),
		})
		return
	}

	items := make([]CommentItem, 0, len(comments))
	for _, comment := range comments {
		items = append(items, CommentItem{
			CommentID:      comment.ID,
			UserID:         comment.UserID,
			Nickname:       comment.User.Nickname,
			PlaceID:        comment.PlaceID,
			RestaurantName: comment.RestaurantName,
			Rating:         comment.Rating,
			Content:        comment.Content,
			CreatedAt:      comment.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, CommentListResponse{
		Success:    true,
		TotalCount: len(items),
		Comments:   items,
	})
}
