package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(roomController *RoomController, allowedOrigins []string) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "HEAD", "OPTIONS"}
	config.ExposeHeaders = []string{"Content-Disposition"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	if roomController != nil {
		houses := router.Group("/api/houses/:house")
		houses.GET("/rooms", roomController.ListRooms)
		houses.GET("/rooms/:room", roomController.GetRoom)
		houses.GET("/rooms/:room/strokes", roomController.ExportStrokes)
		houses.GET("/rooms/:room/strokes.pdf", roomController.ExportPDF)

		router.GET("/ws", roomController.Connect)
	}

	return router
}
