package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"libraryhub/internal/auth"
	"libraryhub/internal/models"
	"libraryhub/internal/services"
)

type AccountHandler struct {
	svc services.AccountService
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AccountHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name, email and password are required")
		return
	}

	res, err := h.svc.Register(c.Request.Context(), services.RegisterInput(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":   res.Token,
		"message": "User registered successfully",
		"user":    res.User,
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AccountHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":   res.Token,
		"message": "Login successful",
		"user":    res.User,
	})
}

func (h *AccountHandler) profile(c *gin.Context) {
	user, err := h.svc.Profile(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type updateProfileRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Address        string `json:"address"`
	Grade          string `json:"grade"`
	PhoneNumber    string `json:"phone_number"`
	ProfilePicture string `json:"profile_picture"`
	Password       string `json:"password"`
}

func (h *AccountHandler) updateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid profile body")
		return
	}

	user, err := h.svc.UpdateProfile(c.Request.Context(), auth.GetUserID(c), services.ProfileUpdate(req))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated", "user": user})
}

type setRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (h *AccountHandler) setRole(c *gin.Context) {
	userID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "role is required")
		return
	}
	role, ok := models.ParseUserRole(req.Role)
	if !ok {
		badRequest(c, "unknown role %q", req.Role)
		return
	}

	user, err := h.svc.SetRole(c.Request.Context(), userID, role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
