package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/avdonin/marketplace/internal/logging"
	"github.com/avdonin/marketplace/internal/middleware/auth"
	"github.com/avdonin/marketplace/internal/mykafka"
	"github.com/avdonin/marketplace/internal/service/catalog"
	"github.com/avdonin/marketplace/internal/util"
)

type ProductHandler struct {
	Catalog  *catalog.Service
	Producer mykafka.Publisher
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func pathID(c echo.Context) (uint, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

func viewer(c echo.Context) catalog.Viewer {
	id, role, err := auth.CurrentUser(c)
	if err != nil {
		return catalog.Viewer{}
	}
	return catalog.Viewer{ID: id, Role: role}
}

func (h *ProductHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, mykafka.TopicProductEvents, fmt.Sprint(event["productID"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish failed", "error", err)
	}
}

func catalogError(err error) error {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	case errors.Is(err, catalog.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "not the product owner")
	case errors.Is(err, catalog.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	f := catalog.Filter{Offset: offset, Limit: limit}
	f.TagID = uint(parseIntDefault(c.QueryParam("tag"), 0))
	f.SellerID = uint(parseIntDefault(c.QueryParam("seller"), 0))
	if v := c.QueryParam("price_min"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			f.PriceMin = &d
		}
	}
	if v := c.QueryParam("price_max"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			f.PriceMax = &d
		}
	}

	total, items, err := h.Catalog.List(c.Request().Context(), viewer(c), f)
	if err != nil {
		return catalogError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data": items,
		"meta": echo.Map{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	product, err := h.Catalog.Get(c.Request().Context(), viewer(c), id)
	if err != nil {
		return catalogError(err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) Similar(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.Catalog.Similar(c.Request().Context(), id)
	if err != nil {
		return catalogError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ProductHandler) Tags(c echo.Context) error {
	tags, err := h.Catalog.Tags(c.Request().Context())
	if err != nil {
		return catalogError(err)
	}
	return c.JSON(http.StatusOK, tags)
}

type productRequest struct {
	Title       string          `json:"title" validate:"required,min=3"`
	Description string          `json:"description" validate:"required,min=10"`
	Thumbnail   string          `json:"thumbnail"`
	Price       decimal.Decimal `json:"price"`
	Stock       uint            `json:"stock"`
	TagIDs      []uint          `json:"tag_ids"`
	PhotoURLs   []string        `json:"photo_urls" validate:"max=10"`
}

func (r productRequest) input() catalog.ProductInput {
	return catalog.ProductInput{
		Title:       r.Title,
		Description: r.Description,
		Thumbnail:   r.Thumbnail,
		Price:       r.Price,
		Stock:       r.Stock,
		TagIDs:      r.TagIDs,
		PhotoURLs:   r.PhotoURLs,
	}
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	sellerID, _, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	product, err := h.Catalog.Create(c.Request().Context(), sellerID, req.input())
	if err != nil {
		return catalogError(err)
	}

	h.publish(c, map[string]any{
		"type":      "product_created",
		"productID": product.ID,
		"sellerID":  sellerID,
		"title":     product.Title,
	})
	return c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	sellerID, _, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	product, err := h.Catalog.Update(c.Request().Context(), sellerID, id, req.input())
	if err != nil {
		return catalogError(err)
	}

	h.publish(c, map[string]any{
		"type":      "product_updated",
		"productID": product.ID,
		"sellerID":  sellerID,
		"title":     product.Title,
	})
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	actorID, role, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.Catalog.Delete(c.Request().Context(), catalog.Viewer{ID: actorID, Role: role}, id); err != nil {
		return catalogError(err)
	}

	h.publish(c, map[string]any{
		"type":      "product_deleted",
		"productID": id,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *ProductHandler) MyProducts(c echo.Context) error {
	sellerID, _, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	items, err := h.Catalog.MyProducts(c.Request().Context(), sellerID, c.QueryParam("status"))
	if err != nil {
		return catalogError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ProductHandler) Dashboard(c echo.Context) error {
	sellerID, _, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	stats, err := h.Catalog.Stats(c.Request().Context(), sellerID)
	if err != nil {
		return catalogError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

type moderateRequest struct {
	Checked bool `json:"checked"`
}

// Moderate flips the moderation flag; the route is admin-guarded.
func (h *ProductHandler) Moderate(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req moderateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	product, err := h.Catalog.SetChecked(c.Request().Context(), id, req.Checked)
	if err != nil {
		return catalogError(err)
	}

	h.publish(c, map[string]any{
		"type":      "product_moderated",
		"productID": product.ID,
		"checked":   product.Checked,
	})
	return c.JSON(http.StatusOK, product)
}
