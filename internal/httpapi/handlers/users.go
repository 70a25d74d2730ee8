package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/tenx-cards/internal/auth"
	"github.com/suPer8Hu/tenx-cards/internal/common"
	"github.com/suPer8Hu/tenx-cards/internal/models"
	"gorm.io/gorm"
)

const tokenTTL = 24 * time.Hour

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "Invalid JSON body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		common.FailDetails(c, http.StatusBadRequest, common.CodeValidation, "A valid email is required", gin.H{"field": "email"})
		return
	}
	if len(req.Password) < 8 {
		common.FailDetails(c, http.StatusBadRequest, common.CodeValidation, "Password must be at least 8 characters", gin.H{"field": "password"})
		return
	}

	ctx := c.Request.Context()
	var cnt int64
	if err := h.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&cnt).Error; err != nil {
		h.Log.Error("check email", "error", err)
		common.Internal(c)
		return
	}
	if cnt > 0 {
		common.Fail(c, http.StatusConflict, common.CodeEmailTaken, "Email is already registered")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.Log.Error("hash password", "error", err)
		common.Internal(c)
		return
	}

	user := models.User{Email: email, PasswordHash: hash}
	if err := h.DB.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			common.Fail(c, http.StatusConflict, common.CodeEmailTaken, "Email is already registered")
			return
		}
		h.Log.Error("create user", "error", err)
		common.Internal(c)
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		h.Log.Error("sign token", "error", err)
		common.Internal(c)
		return
	}

	common.Respond(c, http.StatusCreated, gin.H{
		"id":    user.ID,
		"email": user.Email,
		"token": token,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "Invalid JSON body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, common.CodeValidation, "Email and password are required")
		return
	}

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		h.Log.Error("load user", "error", err)
		common.Internal(c)
		return
	}
	// same answer for unknown email and wrong password
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, common.CodeInvalidCredentials, "Invalid email or password")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, tokenTTL)
	if err != nil {
		h.Log.Error("sign token", "error", err)
		common.Internal(c)
		return
	}
	common.OK(c, gin.H{"token": token, "user_id": user.ID})
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, "id = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, common.CodeNotFound, "User not found")
			return
		}
		h.Log.Error("load user", "error", err)
		common.Internal(c)
		return
	}
	common.OK(c, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"created_at": user.CreatedAt,
	})
}
