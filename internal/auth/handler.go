package auth

import (
	"errors"
	"strings"

	"kasa-backend/internal/config"
	"kasa-backend/internal/models"
	"kasa-backend/internal/validator"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterAdminRequest struct {
	RestaurantName string `json:"restaurant_name" validate:"notblank,max=100"`
	Name           string `json:"name" validate:"notblank,max=100"`
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=8"`
}

type CreateCashierRequest struct {
	Name     string `json:"name" validate:"notblank,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ---- POST /api/auth/register-admin ----
// Restoranı ve ilk yöneticisini birlikte oluşturur.
func RegisterAdminHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterAdminRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		body.RestaurantName = strings.TrimSpace(body.RestaurantName)

		if err := validator.Validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, validator.Message(err))
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Şifre hashlenemedi")
		}

		var user models.User
		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			var count int64
			tx.Model(&models.Restaurant{}).Where("name = ?", body.RestaurantName).Count(&count)
			if count > 0 {
				return fiber.NewError(fiber.StatusConflict, "Bu isimde bir restoran zaten var")
			}
			tx.Model(&models.User{}).Where("email = ?", body.Email).Count(&count)
			if count > 0 {
				return fiber.NewError(fiber.StatusConflict, "Bu email ile kayıtlı kullanıcı var")
			}

			restaurant := models.Restaurant{Name: body.RestaurantName}
			if err := tx.Create(&restaurant).Error; err != nil {
				return err
			}

			user = models.User{
				RestaurantID: &restaurant.ID,
				Name:         body.Name,
				Email:        body.Email,
				PasswordHash: string(hash),
				Role:         models.RoleAdmin,
			}
			return tx.Create(&user).Error
		})
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return fe
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Kullanıcı oluşturulamadı")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":            user.ID,
			"email":         user.Email,
			"role":          user.Role,
			"restaurant_id": user.RestaurantID,
		})
	}
}

// ---- POST /api/auth/cashiers ----
// Yönetici kendi restoranına kasiyer ekler.
func CreateCashierHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		restaurantID, ok := c.Locals(CtxRestaurantIDKey).(*uint)
		if !ok || restaurantID == nil {
			return fiber.NewError(fiber.StatusForbidden, "Restoran bilgisi alınamadı")
		}

		var body CreateCashierRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}
		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		if err := validator.Validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, validator.Message(err))
		}

		var count int64
		db.Model(&models.User{}).Where("email = ?", body.Email).Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "Bu email ile kayıtlı kullanıcı var")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Şifre hashlenemedi")
		}

		rid := *restaurantID
		user := models.User{
			RestaurantID: &rid,
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         models.RoleCashier,
		}
		if err := db.WithContext(c.UserContext()).Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Kullanıcı oluşturulamadı")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":            user.ID,
			"name":          user.Name,
			"email":         user.Email,
			"role":          user.Role,
			"restaurant_id": user.RestaurantID,
		})
	}
}

// ---- POST /api/auth/login ----
func LoginHandler(cfg *config.Config, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Geçersiz istek gövdesi")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var user models.User
		if err := db.WithContext(c.UserContext()).Where("email = ?", body.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Email veya şifre hatalı")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Email veya şifre hatalı")
		}

		token, err := GenerateToken(cfg.JWTSecret, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Token oluşturulamadı")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user": fiber.Map{
				"id":            user.ID,
				"name":          user.Name,
				"email":         user.Email,
				"role":          user.Role,
				"restaurant_id": user.RestaurantID,
			},
		})
	}
}

// ---- GET /api/auth/me ----
func MeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userIDVal := c.Locals(CtxUserIDKey)
		roleVal := c.Locals(CtxUserRoleKey)
		restaurantIDVal := c.Locals(CtxRestaurantIDKey)

		var user models.User
		if userID, ok := userIDVal.(uint); ok {
			if err := db.WithContext(c.UserContext()).Preload("Restaurant").First(&user, userID).Error; err == nil {
				response := fiber.Map{
					"user_id":       user.ID,
					"name":          user.Name,
					"email":         user.Email,
					"role":          user.Role,
					"restaurant_id": user.RestaurantID,
				}
				if user.Restaurant != nil {
					response["restaurant"] = fiber.Map{
						"id":      user.Restaurant.ID,
						"name":    user.Restaurant.Name,
						"address": user.Restaurant.Address,
						"phone":   user.Restaurant.Phone,
					}
				}
				return c.JSON(response)
			}
		}

		// veritabanından okunamazsa token bilgisi döner
		return c.JSON(fiber.Map{
			"user_id":       userIDVal,
			"role":          roleVal,
			"restaurant_id": restaurantIDVal,
		})
	}
}
