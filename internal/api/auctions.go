package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/sneakerbid/internal/auction"
	"github.com/jensholdgaard/sneakerbid/internal/media"
)

const maxImagesPerUpload = 5

// Amount is a price in a request body. Clients send either a JSON number or
// a numeric string.
type Amount decimal.Decimal

func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := bytes.TrimSpace(b)
	if len(raw) > 0 && raw[0] == '"' {
		s, err := strconv.Unquote(string(raw))
		if err != nil {
			return auction.ErrInvalidAmount
		}
		raw = []byte(strings.TrimSpace(s))
	}
	v, err := decimal.NewFromString(string(raw))
	if err != nil {
		return auction.ErrInvalidAmount
	}
	*a = Amount(v)
	return nil
}

func (a Amount) value() decimal.Decimal {
	return decimal.Decimal(a)
}

func (a *Amount) ptr() *decimal.Decimal {
	if a == nil {
		return nil
	}
	v := a.value()
	return &v
}

type createAuctionRequest struct {
	Title         string    `json:"title" binding:"required"`
	Description   string    `json:"description"`
	Brand         string    `json:"brand"`
	Edition       string    `json:"edition"`
	Size          string    `json:"size"`
	Category      string    `json:"category" binding:"required"`
	ImageURLs     []string  `json:"imageUrls"`
	StartingPrice *Amount   `json:"startingPrice"`
	BidIncrement  *Amount   `json:"bidIncrement"`
	BuyNowPrice   *Amount   `json:"buyNowPrice"`
	EndsAt        time.Time `json:"endsAt"`
}

func (s *Server) createAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(fmt.Errorf("invalid request body: %w", err)))
		return
	}
	if req.StartingPrice == nil {
		c.JSON(http.StatusBadRequest, errorResponse(fmt.Errorf("%w: startingPrice is required", auction.ErrInvalidListing)))
		return
	}

	l := auction.Listing{
		Title:         req.Title,
		Description:   req.Description,
		Brand:         req.Brand,
		Edition:       req.Edition,
		Size:          req.Size,
		Category:      req.Category,
		ImageURLs:     req.ImageURLs,
		StartingPrice: req.StartingPrice.value(),
		BuyNowPrice:   req.BuyNowPrice.ptr(),
		EndsAt:        req.EndsAt,
	}
	if req.BidIncrement != nil {
		l.BidIncrement = req.BidIncrement.value()
	}

	a, err := s.auctions.Create(c.Request.Context(), currentUser(c).ID, l)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) listOpenAuctions(c *gin.Context) {
	list, err := s.auctions.ListOpen(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) getAuction(c *gin.Context) {
	a, err := s.auctions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) deleteAuction(c *gin.Context) {
	if err := s.auctions.Delete(c.Request.Context(), c.Param("id"), currentUser(c).ID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type placeBidRequest struct {
	Amount *Amount `json:"amount"`
}

func (s *Server) placeBid(c *gin.Context) {
	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Amount == nil {
		c.JSON(http.StatusBadRequest, errorResponse(auction.ErrInvalidAmount))
		return
	}

	a, err := s.auctions.PlaceBid(c.Request.Context(), c.Param("id"), currentUser(c).ID, req.Amount.value())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) buyNow(c *gin.Context) {
	a, err := s.auctions.BuyNow(c.Request.Context(), c.Param("id"), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// uploadImages stores the multipart "images" files and appends their URLs
// to the listing. Only the seller may upload.
func (s *Server) uploadImages(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	userID := currentUser(c).ID

	if err := s.auctions.CheckSeller(ctx, id, userID); err != nil {
		s.writeError(c, err)
		return
	}

	if s.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(fmt.Errorf("invalid multipart form: %w", err)))
		return
	}
	files := form.File["images"]
	switch {
	case len(files) == 0:
		c.JSON(http.StatusBadRequest, errorResponse(errNoImages))
		return
	case len(files) > maxImagesPerUpload:
		c.JSON(http.StatusBadRequest, errorResponse(errTooManyFiles))
		return
	}

	urls, err := media.UploadFiles(ctx, s.uploader, id, files)
	if err != nil {
		s.writeError(c, err)
		return
	}

	a, err := s.auctions.AttachImages(ctx, id, userID, urls)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) listSelling(c *gin.Context) {
	list, err := s.auctions.ListBySeller(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) listBidding(c *gin.Context) {
	list, err := s.auctions.ListByBidder(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
