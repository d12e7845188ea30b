package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avdonin/marketplace/internal/logging"
	"github.com/avdonin/marketplace/internal/middleware/auth"
	"github.com/avdonin/marketplace/internal/mykafka"
	cartsvc "github.com/avdonin/marketplace/internal/service/cart"
)

type CartHandler struct {
	Cart     *cartsvc.Service
	Producer mykafka.Publisher
}

func (h *CartHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, mykafka.TopicCartEvents, fmt.Sprint(event["userID"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish failed", "error", err)
	}
}

// cartError maps the service taxonomy onto HTTP statuses.
func cartError(err error) error {
	switch {
	case errors.Is(err, cartsvc.ErrProductUnavailable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "product unavailable")
	case errors.Is(err, cartsvc.ErrInvalidQuantity):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid quantity")
	case errors.Is(err, cartsvc.ErrStockExceeded):
		return echo.NewHTTPError(http.StatusConflict, "not enough stock")
	case errors.Is(err, cartsvc.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "cart item not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *CartHandler) GetCart(c echo.Context) error {
	userID, _, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}

	summary, err := h.Cart.Totals(c.Request().Context(), userID)
	if err != nil {
		return cartError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

type addToCartRequest struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity"`
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	userID, _, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}

	var req addToCartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	item, err := h.Cart.Add(c.Request().Context(), userID, req.ProductID, req.Quantity)
	if err != nil {
		return cartError(err)
	}

	h.publish(c, map[string]any{
		"type":      "cart_item_added",
		"userID":    userID,
		"productID": req.ProductID,
		"quantity":  item.Quantity,
	})
	return c.JSON(http.StatusOK, item)
}

type updateCartRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) UpdateCartItem(c echo.Context) error {
	userID, _, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req updateCartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	item, err := h.Cart.Update(c.Request().Context(), userID, uint(id), req.Quantity)
	if err != nil {
		return cartError(err)
	}

	if item == nil {
		h.publish(c, map[string]any{
			"type":   "cart_item_removed",
			"userID": userID,
			"itemID": id,
		})
		return c.JSON(http.StatusOK, echo.Map{"deleted_item": id})
	}

	h.publish(c, map[string]any{
		"type":     "cart_item_updated",
		"userID":   userID,
		"itemID":   item.ID,
		"quantity": item.Quantity,
	})
	return c.JSON(http.StatusOK, item)
}

func (h *CartHandler) RemoveFromCart(c echo.Context) error {
	userID, _, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.Cart.Remove(c.Request().Context(), userID, uint(id)); err != nil {
		return cartError(err)
	}

	h.publish(c, map[string]any{
		"type":   "cart_item_removed",
		"userID": userID,
		"itemID": id,
	})
	return c.JSON(http.StatusOK, echo.Map{"deleted_item": id})
}
