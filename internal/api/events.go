package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jensholdgaard/sneakerbid/internal/broadcast"
)

// streamAuctionEvents streams one auction's events as Server-Sent Events.
func (s *Server) streamAuctionEvents(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.auctions.Get(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	s.stream(c, id)
}

// streamGlobalEvents streams every auction's events.
func (s *Server) streamGlobalEvents(c *gin.Context) {
	s.stream(c, broadcast.GlobalRoom)
}

func (s *Server) stream(c *gin.Context, room string) {
	ctx := c.Request.Context()
	sub := s.hub.Subscribe(room)
	defer s.hub.Unsubscribe(sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	s.logger.DebugContext(ctx, "stream opened", slog.String("room", room))
	defer s.logger.DebugContext(ctx, "stream closed", slog.String("room", room))

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(c.Writer, "id: %d\nevent: %s\ndata: %s\n\n", e.Version, e.Type, e.Data); err != nil {
				return
			}
			c.Writer.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(c.Writer, ": keep-alive\n\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}
