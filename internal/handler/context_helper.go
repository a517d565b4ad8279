package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-report-api/internal/middleware"
	"github.com/noah-isme/school-report-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return claims
}
