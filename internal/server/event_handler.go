package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"streetsight/internal/dao"
	"streetsight/internal/model"
)

const eventKey = "event"

func SetEventToContext(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventIdStr := c.Param("event_id")
		eventId, err := strconv.Atoi(eventIdStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "invalid event_id",
			})
			return
		}

		event, err := model.GetEventById(db, eventId)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
			})
			return
		} else if event == nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "event not found",
			})
			return
		}
		c.Set(eventKey, event)
		c.Next()
	}
}

// handleListEvents lists detection events
// @Summary List detection events
// @Description Lists detection events with their images, paginated by start/limit
// @Tags events
// @Produce json
// @Param start query int false "offset, default 0"
// @Param limit query int false "page size, default 50, max 500"
// @Success 200 {object} dao.ListEventsResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/events [get]
func (s *Server) handleListEvents(c *gin.Context) {
	start, _ := strconv.Atoi(c.DefaultQuery("start", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	events, total, err := model.ListEvents(s.db, start, limit)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}

	resp := dao.ListEventsResponse{Total: total}
	for i := range events {
		resp.Events = append(resp.Events, *dao.FromEventModel(&events[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetEvent fetches one detection event
// @Summary Get a detection event
// @Description Fetches one event with its images, metadata and tasks
// @Tags events
// @Produce json
// @Param event_id path int true "event id"
// @Success 200 {object} dao.EventSpec
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/event/{event_id} [get]
func (s *Server) handleGetEvent(c *gin.Context) {
	event := c.MustGet(eventKey).(*model.DetectionEvent)
	c.JSON(http.StatusOK, dao.FromEventModel(event))
}

// handleDeleteEvent removes an event and everything it owns
// @Summary Delete a detection event
// @Description Removes an event, its images, their metadata and the tasks referencing that metadata
// @Tags events
// @Param event_id path int true "event id"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/event/{event_id} [delete]
func (s *Server) handleDeleteEvent(c *gin.Context) {
	event := c.MustGet(eventKey).(*model.DetectionEvent)

	if err := model.DeleteEvent(s.db, event); err != nil {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleListDetectors lists the registered detector backends
// @Summary List detector backends
// @Tags detectors
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /api/v1/detectors [get]
func (s *Server) handleListDetectors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"detectors": s.streams.registry.Names()})
}
