package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// schoolFromContext returns the caller's school and writes 401 when the token carries none.
func schoolFromContext(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.SchoolID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return claims.SchoolID, true
}

func dateParam(c *gin.Context, name string) (time.Time, bool) {
	date, err := service.ParseDate(c.Param(name))
	if err != nil {
		response.Error(c, err)
		return time.Time{}, false
	}
	return date, true
}

func optionalDateQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	date, err := service.ParseDate(raw)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return &date, true
}

func slotFilterFromQuery(c *gin.Context) (models.SlotFilter, bool) {
	filter := models.SlotFilter{
		ClassID:   c.Query("classId"),
		GroupID:   c.Query("groupId"),
		TeacherID: c.Query("teacherId"),
		RoomID:    c.Query("roomId"),
	}
	if raw := c.Query("dayOfWeek"); raw != "" {
		day, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "dayOfWeek must be a number between 0 and 6"))
			return filter, false
		}
		filter.DayOfWeek = &day
	}
	return filter, true
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return false
	}
	return true
}
