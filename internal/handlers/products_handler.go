package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-footwear-checkout/internal/apperr"
	"github.com/imrishuroy/go-footwear-checkout/internal/catalog"
	"github.com/imrishuroy/go-footwear-checkout/internal/validation"
)

// productView adds the effective unit price and the index-aligned quantities the
// storefront renders.
type productView struct {
	catalog.Product
	UnitPrice  int64 `json:"unit_price"`
	Quantities []int `json:"quantities"`
}

func viewOf(p catalog.Product) productView {
	return productView{Product: p, UnitPrice: p.UnitPriceMinor(), Quantities: p.Quantities()}
}

func viewsOf(ps []catalog.Product) []productView {
	out := make([]productView, 0, len(ps))
	for _, p := range ps {
		out = append(out, viewOf(p))
	}
	return out
}

func (h *api) listProducts(c *gin.Context) {
	ps, err := h.Catalog.ListProducts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	visible := ps[:0]
	for _, p := range ps {
		if p.Available {
			visible = append(visible, p)
		}
	}
	c.JSON(http.StatusOK, viewsOf(visible))
}

func (h *api) getProduct(c *gin.Context) {
	p, err := h.Catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err == nil && p.Deleted {
		err = apperr.ErrNotFound
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(*p))
}

func (h *api) adminListProducts(c *gin.Context) {
	ps, err := h.Catalog.ListProducts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewsOf(ps))
}

func productFrom(req validation.ProductRequest) (catalog.Product, error) {
	p, err := catalog.NewProduct(req.Name, catalog.Category(req.Category), req.Price, req.DiscountPercent, req.Sizes, req.Quantities)
	if err != nil {
		return p, apperr.Validation("%v", err)
	}
	if req.Available != nil {
		p.Available = *req.Available
	}
	return p, nil
}

func (h *api) createProduct(c *gin.Context) {
	var req validation.ProductRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	p, err := productFrom(req)
	if err != nil {
		writeError(c, err)
		return
	}
	saved, err := h.Catalog.PutProduct(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(*saved))
}

// replaceProduct overwrites an existing product, stock included.
func (h *api) replaceProduct(c *gin.Context) {
	var req validation.ProductRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	ctx := c.Request.Context()
	existing, err := h.Catalog.GetProduct(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	p, err := productFrom(req)
	if err != nil {
		writeError(c, err)
		return
	}
	p.ProductID = existing.ProductID
	p.Deleted = existing.Deleted
	saved, err := h.Catalog.PutProduct(ctx, p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(*saved))
}

func (h *api) setStock(c *gin.Context) {
	var req validation.StockRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.Catalog.SetStock(ctx, c.Param("id"), req.Size, *req.Quantity); err != nil {
		writeError(c, err)
		return
	}
	p, err := h.Catalog.GetProduct(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(*p))
}

func (h *api) setAvailability(c *gin.Context) {
	var req validation.AvailabilityRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	ctx := c.Request.Context()
	if err := h.Catalog.SetAvailability(ctx, c.Param("id"), *req.Available); err != nil {
		writeError(c, err)
		return
	}
	p, err := h.Catalog.GetProduct(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(*p))
}

// deleteProduct soft-deletes so existing orders keep resolving the product.
func (h *api) deleteProduct(c *gin.Context) {
	if err := h.Catalog.SoftDelete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
}
