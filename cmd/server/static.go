package main

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rohanjaggi/hdb-prediction/internal/apperrors"
	"github.com/rohanjaggi/hdb-prediction/internal/model"
)

// webDir holds an optional prebuilt frontend
const webDir = "./web/dist"

// setupStaticFiles serves the frontend when it has been built next to the
// binary; API paths always get a JSON 404
func setupStaticFiles(router *gin.Engine, log *zap.Logger) {
	index := filepath.Join(webDir, "index.html")
	_, err := os.Stat(index)
	hasFrontend := err == nil
	if hasFrontend {
		log.Info("serving frontend assets", zap.String("dir", webDir))
		router.Static("/assets", filepath.Join(webDir, "assets"))
	} else {
		log.Info("no frontend assets found, API only", zap.String("dir", webDir))
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") || !hasFrontend {
			c.JSON(http.StatusNotFound, model.ErrorResponse{
				Error: apperrors.InvalidInput("API endpoint not found: %s", c.Request.URL.Path),
			})
			return
		}
		// SPA routing
		c.File(index)
	})
}
