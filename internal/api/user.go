package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradejournal/internal/notify"
)

// GET /api/user/profile
func (s *Server) getProfile(c *gin.Context) {
	userID := CurrentUserID(c)
	user, err := s.DB.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	if user == nil {
		respondNotFound(c, "USER_NOT_FOUND", "user not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id": user.ID, "username": user.Username, "email": user.Email,
		"email_alerts_enabled": user.EmailAlertsEnabled, "created_at": user.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// POST /api/user/email-alerts?enabled=<bool>
func (s *Server) setEmailAlerts(c *gin.Context) {
	userID := CurrentUserID(c)
	enabled := c.Query("enabled") == "true"

	if err := s.DB.SetEmailAlertsEnabled(c.Request.Context(), userID, enabled); err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email_alerts_enabled": enabled})
}

// POST /api/user/test-email. A failed send is a dependency failure, not an
// HTTP error: it is reported in the body so the caller can tell the user
// to check SMTP/SendGrid configuration, never surfaced as a 5xx.
func (s *Server) sendTestEmail(c *gin.Context) {
	ctx := c.Request.Context()
	userID := CurrentUserID(c)

	user, err := s.DB.GetUserByID(ctx, userID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	if user == nil || user.Email == "" {
		respondValidation(c, "NO_EMAIL_ON_FILE", "account has no email address to send to")
		return
	}

	subject, text, html := notify.RenderTestEmail(user.Username, time.Now())
	if err := s.Mailer.Send(ctx, user.Email, subject, html, text); err != nil {
		c.JSON(http.StatusOK, gin.H{"sent": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}

// GET /api/user/billing-status
func (s *Server) getBillingStatus(c *gin.Context) {
	userID := CurrentUserID(c)
	user, err := s.DB.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		respondInternal(c, err)
		return
	}
	if user == nil {
		respondNotFound(c, "USER_NOT_FOUND", "user not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"billing_enabled": s.BillingEnabled, "is_paid": user.IsPaid, "paid_until": user.PaidUntil, "plan": user.Plan,
	})
}
