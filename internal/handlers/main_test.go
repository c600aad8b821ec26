package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"lunchsail/internal/models"
	"lunchsail/internal/storage"
	"lunchsail/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
)

// AuthMiddlewareTest подставляет идентификаторы из заголовков вместо проверки JWT.
func AuthMiddlewareTest() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := uint(1)
		if v := c.Request.Header.Get("X-Test-UserID"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				userID = uint(id)
			}
		}
		companyID := uint(1)
		if v := c.Request.Header.Get("X-Test-CompanyID"); v != "" {
			if id, err := strconv.Atoi(v); err == nil {
				companyID = uint(id)
			}
		}
		c.Set("userID", userID)
		c.Set("companyID", companyID)
		c.Next()
	}
}

var hubOnce sync.Once

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	key := os.Getenv("ENV_CHEK")
	if key == "" {
		fmt.Println("Подключение к .env")
		if err := godotenv.Load("../../.env"); err != nil {
			log.Println("Файл .env не найден, используются переменные окружения")
		}
	}

	storage.ConnectTestingDatabase()

	if err := storage.DB.AutoMigrate(
		&models.Company{},
		&models.User{},
		&models.Room{},
		&models.Participant{},
		&models.Item{},
		&models.UserItem{},
		&models.RestaurantComment{},
	); err != nil {
		t.Fatal("Ошибка при миграции: ", err.Error())
	}

	storage.DB.Exec("TRUNCATE TABLE companies, users, rooms, participants, items, user_items, restaurant_comments RESTART IDENTITY CASCADE;")

	storage.InitRedis()
	// Сбрасываем кэш, чтобы прошлые запуски не влияли на выборки.
	storage.RedisClient.FlushDB(context.Background())

	hubOnce.Do(func() {
		go ws.HubInstance.Run()
		go ws.HubInstance.RunRedisBridge(context.Background())
	})

	gin.SetMode(gin.TestMode)
	r := gin.Default()

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", Login)
		authGroup.POST("/register", Register)
		authGroup.POST("/refresh", RefreshToken)
	}

	r.GET("/companies", GetCompaniesHandler)

	api := r.Group("/api", AuthMiddlewareTest())
	{
		api.POST("/rooms", CreateRoomHandler)
		api.GET("/rooms", ListRoomsHandler)
		api.POST("/rooms/:id/join", JoinRoomHandler)
		api.POST("/rooms/:id/leave", LeaveRoomHandler)
		api.DELETE("/rooms/:id", DeleteRoomHandler)

		api.GET("/ws", ws.RoomWebSocketHandler)

		api.POST("/gacha/draw", DrawItemHandler)
		api.GET("/items", GetMyItemsHandler)
		api.POST("/items/:id/equip", EquipItemHandler)

		api.GET("/restaurants/ranking", GetRestaurantRankingHandler)
		api.POST("/restaurants/comments", CreateCommentHandler)
		api.GET("/restaurants/comments", GetCommentsHandler)
	}

	return httptest.NewServer(r)
}

func createTestCompany(t *testing.T, name string) models.Company {
	t.Helper()
	company := models.Company{Name: name, Address: "Тестовый адрес", Latitude: 37.5, Longitude: 127.0}
	err := storage.DB.Create(&company).Error
	assert.NoError(t, err, "Ошибка создания тестовой компании")
	return company
}

func createTestUser(t *testing.T, companyID uint, nickname string) models.User {
	t.Helper()
	email := fmt.Sprintf("%s_%d@example.com", nickname, time.Now().UnixNano())
	user := models.User{CompanyID: companyID, Nickname: nickname, Email: email, PasswordHash: "hashed123"}
	err := storage.DB.Create(&user).Error
	assert.NoError(t, err, "Ошибка создания тестового пользователя")
	return user
}

// doJSON выполняет запрос от имени пользователя и декодирует JSON-ответ.
func doJSON(t *testing.T, method, url string, user models.User, body interface{}, out interface{}) *http.Response {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		assert.NoError(t, err)
		reqBody = bytes.NewBuffer(payload)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-UserID", fmt.Sprintf("%d", user.ID))
	req.Header.Set("X-Test-CompanyID", fmt.Sprintf("%d", user.CompanyID))

	res, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	if out != nil {
		defer res.Body.Close()
		err = json.NewDecoder(res.Body).Decode(out)
		assert.NoError(t, err, "Ошибка разбора JSON-ответа")
	}
	return res
}
