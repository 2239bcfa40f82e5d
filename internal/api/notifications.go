package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) listNotifications(c *gin.Context) {
	list, err := s.notifications.List(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) markNotificationRead(c *gin.Context) {
	n, err := s.notifications.MarkRead(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}
