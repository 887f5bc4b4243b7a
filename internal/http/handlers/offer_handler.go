package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-leadbot-backend/internal/domain"
)

// ListProductsResponse wraps active products of one type.
type ListProductsResponse struct {
	Type     domain.ProductType `json:"type"`
	Products []domain.Product   `json:"products"`
}

// ListProducts godoc
// @ID          listProducts
// @Summary     List active products of a type
// @Tags        Offers
// @Produce     json
// @Param       type  query     string  false  "Product type"  default(tripwire)
// @Success     200   {object}  handlers.ListProductsResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Unknown type"
// @Router      /products [get]
func (h *Handlers) ListProducts(c *gin.Context) {
	typ := domain.ProductType(strings.TrimSpace(c.DefaultQuery("type", string(domain.ProductTripwire))))
	if !typ.Valid() {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown product type")
		return
	}
	items, err := h.products.ActiveByType(c.Request.Context(), typ)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListProductsResponse{Type: typ, Products: items})
}

// OfferStats godoc
// @ID          offerStats
// @Summary     Show/click funnel of an offer
// @Tags        Offers
// @Produce     json
// @Param       X-Admin-Token  header  string  false  "Admin token"
// @Param       id             path    string  true   "Offer ID (UUID)"  format(uuid)
// @Success     200  {object}  services.OfferStats
// @Failure     404  {object}  handlers.ErrorResponse  "Offer not found"
// @Router      /offers/{id}/stats [get]
func (h *Handlers) OfferStats(c *gin.Context) {
	st, err := h.products.OfferStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}
