package main

import (
	"context"
	"fmt"
	"log"
	"os"

	_ "lunchsail/docs"
	"lunchsail/internal/auth"
	"lunchsail/internal/handlers"
	"lunchsail/internal/logging"
	"lunchsail/internal/models"
	"lunchsail/internal/storage"
	"lunchsail/internal/tasks"
	"lunchsail/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @Title						Обеденные рейсы — API
// @Description				Компанейские комнаты для совместных обедов, гача и рейтинг заведений
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	key := os.Getenv("ENV_CHEK")
	if key == "" {
		fmt.Println("Подключение к .env")
		err := godotenv.Load()
		if err != nil {
			log.Fatal("Ошибка получения .env")
		}
	}

	logger := logging.Init()
	defer logger.Sync()

	storage.ConnectDatabase()

	if err := storage.DB.AutoMigrate(
		&models.Company{},
		&models.User{},
		&models.Room{},
		&models.Participant{},
		&models.Item{},
		&models.UserItem{},
		&models.RestaurantComment{},
	); err != nil {
		logger.Fatal("Ошибка при миграции", zap.Error(err))
	}

	storage.InitRedis()

	tasks.InitScheduler()

	go ws.HubInstance.Run()
	go ws.HubInstance.RunRedisBridge(context.Background())

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(logger))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", handlers.Login)
		authGroup.POST("/register", handlers.Register)
		authGroup.POST("/refresh", handlers.RefreshToken)
	}

	r.GET("/companies", handlers.GetCompaniesHandler)

	api := r.Group("/api", auth.AuthMiddleware())
	{
		api.POST("/rooms", handlers.CreateRoomHandler)
		api.GET("/rooms", handlers.ListRoomsHandler)
		api.POST("/rooms/:id/join", handlers.JoinRoomHandler)
		api.POST("/rooms/:id/leave", handlers.LeaveRoomHandler)
		api.DELETE("/rooms/:id", handlers.DeleteRoomHandler)

		api.GET("/ws", ws.RoomWebSocketHandler)

		api.POST("/gacha/draw", handlers.DrawItemHandler)
		api.GET("/items", handlers.GetMyItemsHandler)
		api.POST("/items/:id/equip", handlers.EquipItemHandler)

		api.GET("/restaurants/ranking", handlers.GetRestaurantRankingHandler)
		api.POST("/restaurants/comments", handlers.CreateCommentHandler)
		api.GET("/restaurants/comments", handlers.GetCommentsHandler)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := r.Run(":" + port); err != nil {
		logger.Fatal("Ошибка запуска сервера", zap.Error(err))
	}
}
