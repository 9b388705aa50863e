package handler

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed docs/swagger.json
var swaggerJSON []byte

//go:embed docs/swagger-ui.html
var swaggerUI []byte

// SwaggerUI serves the Swagger UI HTML page
// @Summary Swagger UI
// @Description Interactive API documentation
// @Tags documentation
// @Produce html
// @Success 200 {string} string "Swagger UI HTML page"
// @Router /docs [get]
func SwaggerUI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", swaggerUI)
}

// SwaggerJSON serves the Swagger JSON specification
// @Summary Swagger JSON
// @Description Swagger API specification
// @Tags documentation
// @Produce json
// @Success 200 {string} string "Swagger JSON specification"
// @Router /docs/swagger.json [get]
func SwaggerJSON(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", swaggerJSON)
}

// AddSwaggerRoutes регистрирует документацию, встроенную в бинарник
func AddSwaggerRoutes(router *gin.Engine) {
	router.GET("/docs", SwaggerUI)
	router.GET("/docs/swagger.json", SwaggerJSON)
}
