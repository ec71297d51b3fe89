package server

import (
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
)

func (s *Server) SetUpRouter() *gin.Engine {
	router := gin.New()
	router.Use(RequestId())
	router.Use(Logger())
	router.Use(gin.Recovery())
	pprof.Register(router)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "ok",
		})
	})

	apiV1 := router.Group("/api/v1")
	s.SetUpApiV1Router(apiV1)

	return router
}

func (s *Server) SetUpApiV1Router(apiV1 *gin.RouterGroup) {
	apiV1.GET("/stream", s.streams.HandleStream)
	apiV1.GET("/detectors", s.handleListDetectors)

	apiV1.GET("/events", s.handleListEvents)
	eventRoutes := apiV1.Group("/event/:event_id")
	eventRoutes.Use(SetEventToContext(s.db))
	eventRoutes.GET("", s.handleGetEvent)
	eventRoutes.DELETE("", s.handleDeleteEvent)
}
