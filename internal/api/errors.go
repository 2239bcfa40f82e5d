package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jensholdgaard/sneakerbid/internal/auction"
	"github.com/jensholdgaard/sneakerbid/internal/media"
	"github.com/jensholdgaard/sneakerbid/internal/notification"
)

var (
	errNoImages     = errors.New("no images provided")
	errTooManyFiles = errors.New("at most 5 images may be uploaded at once")
)

func errorResponse(err error) gin.H {
	return gin.H{"error": err.Error()}
}

// writeError maps a manager error to its HTTP status and body.
func (s *Server) writeError(c *gin.Context, err error) {
	var tooLow *auction.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "minBid": tooLow.MinBid})
	case errors.Is(err, auction.ErrNotFound), errors.Is(err, notification.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err))
	case errors.Is(err, auction.ErrForbidden):
		c.JSON(http.StatusForbidden, errorResponse(err))
	case errors.Is(err, auction.ErrAuctionClosed):
		c.JSON(http.StatusConflict, errorResponse(err))
	case errors.Is(err, auction.ErrInvalidAmount),
		errors.Is(err, auction.ErrNoBuyNow),
		errors.Is(err, auction.ErrInvalidListing):
		c.JSON(http.StatusBadRequest, errorResponse(err))
	case errors.Is(err, auction.ErrStorageUnavailable):
		s.logger.ErrorContext(c.Request.Context(), "storage unavailable",
			slog.String("path", c.FullPath()), slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":     auction.ErrStorageUnavailable.Error(),
			"retryable": true,
		})
	case errors.Is(err, media.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorResponse(media.ErrUnavailable))
	default:
		s.logger.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.FullPath()), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
