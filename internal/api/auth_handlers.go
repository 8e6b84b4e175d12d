// Package api - authentication handlers
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aethra/gridbase/internal/auth"
	apperrors "github.com/aethra/gridbase/internal/errors"
	"github.com/aethra/gridbase/internal/models"
)

// LoginRateLimiter throttles login attempts per IP+email key: five
// tries in a five minute window, then a fifteen minute block.
type LoginRateLimiter struct {
	attempts map[string]*loginAttempt
	mu       sync.Mutex
}

type loginAttempt struct {
	count     int
	firstTry  time.Time
	blockedAt *time.Time
}

// NewLoginRateLimiter creates a rate limiter with a background sweeper.
func NewLoginRateLimiter() *LoginRateLimiter {
	rl := &LoginRateLimiter{attempts: make(map[string]*loginAttempt)}
	go rl.cleanup()
	return rl
}

// Allow checks whether a login attempt may proceed and returns the
// remaining tries, or the wait when blocked.
func (rl *LoginRateLimiter) Allow(key string) (bool, int, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	attempt, exists := rl.attempts[key]
	if !exists {
		rl.attempts[key] = &loginAttempt{count: 1, firstTry: now}
		return true, 4, 0
	}

	if attempt.blockedAt != nil {
		blockDuration := 15 * time.Minute
		if now.Sub(*attempt.blockedAt) < blockDuration {
			return false, 0, blockDuration - now.Sub(*attempt.blockedAt)
		}
		attempt.count = 1
		attempt.firstTry = now
		attempt.blockedAt = nil
		return true, 4, 0
	}

	if now.Sub(attempt.firstTry) > 5*time.Minute {
		attempt.count = 1
		attempt.firstTry = now
		return true, 4, 0
	}

	attempt.count++
	if attempt.count > 5 {
		attempt.blockedAt = &now
		return false, 0, 15 * time.Minute
	}
	return true, 5 - attempt.count, 0
}

// Reset clears the attempts for a key after a successful login.
func (rl *LoginRateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}

func (rl *LoginRateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, attempt := range rl.attempts {
			if now.Sub(attempt.firstTry) > 30*time.Minute {
				delete(rl.attempts, key)
			}
		}
		rl.mu.Unlock()
	}
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	db          *gorm.DB
	jwtService  *auth.JWTService
	rateLimiter *LoginRateLimiter
}

// NewAuthHandler creates an auth handler on the platform database.
func NewAuthHandler(db *gorm.DB, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{
		db:          db,
		jwtService:  jwtService,
		rateLimiter: NewLoginRateLimiter(),
	}
}

// UserResponse is user data in responses, without credentials.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Roles     string    `json:"roles"`
	IsActive  bool      `json:"is_active"`
}

func userResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Roles:     u.Roles,
		IsActive:  u.IsActive,
	}
}

// Login authenticates a user and returns tokens.
// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	rateLimitKey := c.ClientIP() + ":" + req.Email
	allowed, remaining, retryAfter := h.rateLimiter.Allow(rateLimitKey)
	if !allowed {
		c.Header("Retry-After", retryAfter.String())
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many login attempts",
			"retry_after": retryAfter.Seconds(),
		})
		return
	}

	var user models.User
	err := h.db.Where("email = ?", req.Email).First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		} else {
			status, response := apperrors.ToHTTPError(apperrors.NewInternalError(err))
			c.JSON(status, response)
		}
		return
	}

	if !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "account is disabled"})
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":              "invalid credentials",
			"attempts_remaining": remaining,
		})
		return
	}

	h.rateLimiter.Reset(rateLimitKey)

	tokens, err := h.jwtService.GenerateTokenPair(user.ID, user.Email, user.Roles)
	if err != nil {
		status, response := apperrors.ToHTTPError(apperrors.NewInternalError(err))
		c.JSON(status, response)
		return
	}

	now := time.Now()
	h.db.Model(&models.User{}).Where("id = ?", user.ID).Update("last_login_at", now)

	c.JSON(http.StatusOK, gin.H{
		"user":   userResponse(&user),
		"tokens": tokens,
	})
}

// Register creates an account. The first account becomes the super
// admin; later signups start as editors.
// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email     string `json:"email" binding:"required,email"`
		Password  string `json:"password" binding:"required,min=8"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	var existingCount int64
	h.db.Model(&models.User{}).Where("email = ?", req.Email).Count(&existingCount)
	if existingCount > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		status, response := apperrors.ToHTTPError(apperrors.NewInternalError(err))
		c.JSON(status, response)
		return
	}

	var totalUsers int64
	h.db.Model(&models.User{}).Count(&totalUsers)
	roles := auth.RoleEditor
	if totalUsers == 0 {
		roles = auth.RoleSuper + "," + auth.RoleOwner
	}

	user := models.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: passwordHash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Roles:        roles,
		IsActive:     true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		status, response := apperrors.ToHTTPError(apperrors.NewInternalError(err))
		c.JSON(status, response)
		return
	}

	tokens, err := h.jwtService.GenerateTokenPair(user.ID, user.Email, user.Roles)
	if err != nil {
		status, response := apperrors.ToHTTPError(apperrors.NewInternalError(err))
		c.JSON(status, response)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":   userResponse(&user),
		"tokens": tokens,
	})
}

// RefreshToken exchanges a refresh token for a new pair, picking up the
// user's current roles.
// POST /auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	claims, err := h.jwtService.ValidateToken(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	var user models.User
	if err := h.db.Where("id = ?", claims.UserID).First(&user).Error; err != nil || !user.IsActive {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found or disabled"})
		return
	}

	tokens, err := h.jwtService.GenerateTokenPair(user.ID, user.Email, user.Roles)
	if err != nil {
		status, response := apperrors.ToHTTPError(apperrors.NewInternalError(err))
		c.JSON(status, response)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// GetMe returns the authenticated user.
// GET /auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID, exists := c.Get(ctxUserID)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var user models.User
	if err := h.db.Where("id = ?", userID).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userResponse(&user)})
}

// ChangePassword updates the caller's password.
// POST /auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, exists := c.Get(ctxUserID)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	var user models.User
	if err := h.db.Where("id = ?", userID).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	if !auth.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "current password is incorrect"})
		return
	}

	newHash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		status, response := apperrors.ToHTTPError(apperrors.NewInternalError(err))
		c.JSON(status, response)
		return
	}

	err = h.db.Model(&models.User{}).Where("id = ?", user.ID).Update("password_hash", newHash).Error
	if err != nil {
		status, response := apperrors.ToHTTPError(apperrors.NewInternalError(err))
		c.JSON(status, response)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed successfully"})
}
