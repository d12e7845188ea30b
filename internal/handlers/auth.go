package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/avdonin/marketplace/internal/hash"
	"github.com/avdonin/marketplace/internal/logging"
	"github.com/avdonin/marketplace/internal/middleware/auth"
	"github.com/avdonin/marketplace/internal/models"
	"github.com/avdonin/marketplace/internal/mykafka"
	"github.com/avdonin/marketplace/internal/service/token"
)

type AuthHandler struct {
	DB       *gorm.DB
	Tokens   *token.Service
	Producer mykafka.Publisher
}

func (h *AuthHandler) publish(c echo.Context, event map[string]any) {
	if h.Producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, mykafka.TopicUserEvents, fmt.Sprint(event["userID"]), event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish failed", "error", err)
	}
}

type registerClientRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Phone     string `json:"phone"`
}

type registerSellerRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,min=8"`
	CompanyName   string `json:"company_name" validate:"required"`
	ContactPerson string `json:"contact_person" validate:"required"`
	Phone         string `json:"phone" validate:"required"`
}

func (h *AuthHandler) register(c echo.Context, user models.User, password string) error {
	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot hash password")
	}
	user.PasswordHash = pwHash
	user.Active = true

	var existing models.User
	err = h.DB.Where("email = ?", user.Email).First(&existing).Error
	if err == nil {
		return echo.NewHTTPError(http.StatusConflict, "user already exists")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := h.DB.Create(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.publish(c, map[string]any{
		"type":   "user_registered",
		"userID": user.ID,
		"email":  user.Email,
		"role":   user.Role,
	})
	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) RegisterClient(c echo.Context) error {
	var req registerClientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	return h.register(c, models.User{
		Email:     req.Email,
		Role:      models.RoleClient,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}, req.Password)
}

func (h *AuthHandler) RegisterSeller(c echo.Context) error {
	var req registerSellerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	return h.register(c, models.User{
		Email:         req.Email,
		Role:          models.RoleSeller,
		CompanyName:   req.CompanyName,
		ContactPerson: req.ContactPerson,
		Phone:         req.Phone,
	}, req.Password)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	var user models.User
	if err := h.DB.Where("email = ? AND active = ?", req.Email, true).First(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	pair, err := h.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot issue tokens")
	}

	c.SetCookie(auth.CreateCookie(auth.AccessCookie, pair.Access, "/", time.Now().Add(token.AccessTTL)))
	c.SetCookie(auth.CreateCookie(auth.RefreshCookie, pair.Refresh, "/", time.Now().Add(token.RefreshTTL)))

	h.publish(c, map[string]any{
		"type":   "user_logged_in",
		"userID": user.ID,
		"email":  user.Email,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  pair.Access,
		"refresh_token": pair.Refresh,
		"role":          user.Role,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	refreshCookie, err := c.Cookie(auth.RefreshCookie)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh token missing")
	}

	if err := h.Tokens.Revoke(refreshCookie.Value); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	expired := time.Now().Add(-1 * time.Hour)
	c.SetCookie(auth.CreateCookie(auth.AccessCookie, "", "/", expired))
	c.SetCookie(auth.CreateCookie(auth.RefreshCookie, "", "/", expired))

	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHandler) Profile(c echo.Context) error {
	userID, _, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return c.JSON(http.StatusOK, user)
}

type updateProfileRequest struct {
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	CompanyName   *string `json:"company_name"`
	ContactPerson *string `json:"contact_person"`
	Phone         *string `json:"phone"`
}

func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	userID, _, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}

	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var user models.User
	if err := h.DB.First(&user, userID).Error; err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.CompanyName != nil {
		user.CompanyName = *req.CompanyName
	}
	if req.ContactPerson != nil {
		user.ContactPerson = *req.ContactPerson
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}

	if err := h.DB.Save(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, user)
}
