package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// APIKeyHeader заголовок с API ключом
	APIKeyHeader = "X-API-Key"

	apiKeyNameKey = "api_key_name"
)

// APIKey проверяет API ключ на управляющих эндпоинтах
type APIKey struct {
	// validKeys ключ -> имя владельца
	validKeys map[string]string
}

// NewAPIKey создаёт новый API key middleware
func NewAPIKey(validKeys map[string]string) *APIKey {
	return &APIKey{validKeys: validKeys}
}

// Middleware возвращает Gin middleware handler для API key аутентификации.
// Ключ принимается из X-API-Key или из Authorization: Bearer.
func (ak *APIKey) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(APIKeyHeader)
		if apiKey == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
		}

		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "API key required: pass it in the X-API-Key header or as a Bearer token",
			})
			return
		}

		name, ok := ak.lookup(apiKey)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Set(apiKeyNameKey, name)
		c.Next()
	}
}

// lookup сравнивает ключи за постоянное время
func (ak *APIKey) lookup(apiKey string) (string, bool) {
	for validKey, name := range ak.validKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
			return name, true
		}
	}
	return "", false
}

// RequireAPIKey хелпер для защищённых роутов
func RequireAPIKey(validKeys map[string]string) gin.HandlerFunc {
	return NewAPIKey(validKeys).Middleware()
}

// APIKeyName имя владельца ключа, прошедшего проверку
func APIKeyName(c *gin.Context) (string, bool) {
	name, ok := c.Get(apiKeyNameKey)
	if !ok {
		return "", false
	}
	s, ok := name.(string)
	return s, ok
}
