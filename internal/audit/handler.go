package audit

import (
	"fmt"

	"kasa-backend/internal/auth"
	"kasa-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AuditLogResponse struct {
	ID           uint               `json:"id"`
	CreatedAt    string             `json:"created_at"`
	RestaurantID *uint              `json:"restaurant_id"`
	UserID       uint               `json:"user_id"`
	UserName     string             `json:"user_name"`
	EntityType   string             `json:"entity_type"`
	EntityID     uint               `json:"entity_id"`
	Action       models.AuditAction `json:"action"`
	Description  string             `json:"description"`
}

// GET /api/audit-logs?entity_type=cash_session&entity_id=1&user_id=2
func ListAuditLogsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rVal := c.Locals(auth.CtxRestaurantIDKey)
		restaurantID, ok := rVal.(*uint)
		if !ok || restaurantID == nil {
			return fiber.NewError(fiber.StatusForbidden, "Restoran bilgisi alınamadı")
		}

		filter := ListFilter{RestaurantID: restaurantID, EntityType: c.Query("entity_type"), Limit: 500}

		if v := c.Query("user_id"); v != "" {
			var uid uint
			if _, err := fmt.Sscan(v, &uid); err == nil && uid > 0 {
				filter.UserID = uid
			}
		}
		if v := c.Query("entity_id"); v != "" {
			var eid uint
			if _, err := fmt.Sscan(v, &eid); err == nil && eid > 0 {
				filter.EntityID = eid
			}
		}

		logs, err := svc.List(c.UserContext(), filter)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Loglar listelenemedi")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, log := range logs {
			resp = append(resp, AuditLogResponse{
				ID:           log.ID,
				CreatedAt:    log.CreatedAt.Format("2006-01-02 15:04:05"),
				RestaurantID: log.RestaurantID,
				UserID:       log.UserID,
				UserName:     log.UserName,
				EntityType:   log.EntityType,
				EntityID:     log.EntityID,
				Action:       log.Action,
				Description:  log.Description,
			})
		}

		return c.JSON(resp)
	}
}
