package auth

import (
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Секреты читаются из окружения при каждом обращении, т.к. .env
// подгружается уже после инициализации пакетов.
func AccessSecret() []byte {
	return []byte(os.Getenv("JWT_ACCESS_SECRET"))
}

func RefreshSecret() []byte {
	return []byte(os.Getenv("JWT_REFRESH_SECRET"))
}

// GenerateToken создаёт подписанный JWT с идентификаторами пользователя и компании.
func GenerateToken(userID, companyID uint, duration time.Duration, secret []byte) (string, error) {
	claims := jwt.MapClaims{
		"user_id":    userID,
		"company_id": companyID,
		"exp":        time.Now().Add(duration).Unix(),
		"iat":        time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
