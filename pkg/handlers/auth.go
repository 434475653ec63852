package handlers

import (
	"net/http"
	"strings"

	"github.com/adreel/adreel-api/pkg/db"
	"github.com/adreel/adreel-api/pkg/db/queries"
	"github.com/adreel/adreel-api/pkg/utils"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=30"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ProfileResponse struct {
	UserID           string  `json:"user_id"`
	Username         string  `json:"username"`
	Email            string  `json:"email"`
	TotalGenerations int     `json:"total_generations"`
	TotalCost        float64 `json:"total_cost"`
}

func (h *Handlers) LoginUser(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("LoginUser: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.Email = strings.ToLower(req.Email)

	user, err := queries.FindUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		log.Errorf("LoginUser: Error finding user by email: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Login failed", nil)
		return
	}
	if user == nil {
		log.Debugf("LoginUser: User with email '%s' not found.", req.Email)
		utils.ResponseWithError(c, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}
	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		log.Debugf("LoginUser: Invalid password for user '%s'.", req.Email)
		utils.ResponseWithError(c, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	token, err := h.Tokens.GenerateToken(user.ID, user.Email, user.Username)
	if err != nil {
		log.Errorf("LoginUser: Failed to generate JWT token for user %s: %v", user.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to generate authentication token", nil)
		return
	}

	log.Infof("User %s logged in successfully.", user.Email)
	utils.ResponseWithSuccess(c, http.StatusOK, "Login successful", gin.H{"token": token})
}

func (h *Handlers) RegisterUser(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debugf("RegisterUser: Invalid request body: %v", err)
		utils.ResponseWithError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.Email = strings.ToLower(req.Email)

	existingUser, err := queries.FindUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		log.Errorf("RegisterUser: Error finding user by email '%s': %v", req.Email, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Error finding user by email", nil)
		return
	}
	if existingUser != nil {
		log.Debugf("RegisterUser: User with email '%s' already exists.", req.Email)
		utils.ResponseWithError(c, http.StatusConflict, "User with email already exists", nil)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Errorf("RegisterUser: Error hashing password: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Error hashing password", nil)
		return
	}

	createdUser, err := queries.CreateUser(c.Request.Context(), &db.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
	})
	if err != nil {
		log.Errorf("RegisterUser: Error creating user: %v", err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Error creating user", nil)
		return
	}
	log.Infof("User with ID '%s' created.", createdUser.ID.String())

	utils.ResponseWithSuccess(c, http.StatusCreated, "User created successfully", gin.H{"user_id": createdUser.ID.String()})
}

// GetProfile returns the caller's account and usage totals.
func (h *Handlers) GetProfile(c *gin.Context) {
	userID, ok := currentUserID(c, "GetProfile")
	if !ok {
		return
	}
	user, err := queries.FindUserByID(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("GetProfile: Failed to load user %s: %v", userID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to load profile", nil)
		return
	}
	if user == nil {
		utils.ResponseWithError(c, http.StatusNotFound, "User account not found", nil)
		return
	}
	utils.ResponseWithSuccess(c, http.StatusOK, "Welcome to your profile!", ProfileResponse{
		UserID:           user.ID.String(),
		Username:         user.Username,
		Email:            user.Email,
		TotalGenerations: user.TotalGenerations,
		TotalCost:        user.TotalCost,
	})
}

// DeleteUser deletes the caller's own account. Identity comes from the token only.
func (h *Handlers) DeleteUser(c *gin.Context) {
	userID, ok := currentUserID(c, "DeleteUser")
	if !ok {
		return
	}
	if err := queries.DeleteUser(c.Request.Context(), userID); err != nil {
		if isNotFound(err) {
			utils.ResponseWithError(c, http.StatusNotFound, "User account not found or already deleted.", nil)
			return
		}
		log.Errorf("DeleteUser: Error deleting user '%s': %v", userID, err)
		utils.ResponseWithError(c, http.StatusInternalServerError, "Failed to delete user account", nil)
		return
	}
	log.Infof("DeleteUser: User with ID '%s' deleted successfully.", userID)
	utils.ResponseWithSuccess(c, http.StatusOK, "User account deleted successfully", nil)
}
