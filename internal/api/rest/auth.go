package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yedhukrishnan/performance-backend/internal/auth"
	"github.com/yedhukrishnan/performance-backend/internal/types"
	"github.com/yedhukrishnan/performance-backend/internal/validation"
)

// Login request/response types
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // seconds
	Username     string `json:"username"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// decodeBody validates the raw body against schema before decoding it.
func (s *Server) decodeBody(c *gin.Context, schema validation.Schema, dst any) bool {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, "Invalid request body", err.Error())
		return false
	}
	if err := s.deps.Validator.Decode(schema, body, dst); err != nil {
		s.respondError(c, err)
		return false
	}
	return true
}

func newLoginResponse(tokens *auth.Tokens) LoginResponse {
	return LoginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(tokens.ExpiresIn.Seconds()),
		Username:     tokens.User.Username,
	}
}

// POST /api/signup
func (s *Server) signup(c *gin.Context) {
	var req SignupRequest
	if !s.decodeBody(c, validation.Signup, &req) {
		return
	}

	tokens, err := s.deps.Auth.Signup(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newLoginResponse(tokens))
}

// POST /api/login
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if !s.decodeBody(c, validation.Login, &req) {
		return
	}

	tokens, err := s.deps.Auth.LoginUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(tokens))
}

// POST /api/refresh
func (s *Server) refreshToken(c *gin.Context) {
	var req RefreshRequest
	if !s.decodeBody(c, validation.Refresh, &req) {
		return
	}

	tokens, err := s.deps.Auth.RefreshAccessToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newLoginResponse(tokens))
}

// POST /api/logout
func (s *Server) logout(c *gin.Context) {
	var req RefreshRequest
	if !s.decodeBody(c, validation.Refresh, &req) {
		return
	}

	if err := s.deps.Auth.RevokeRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out successfully"})
}

// GET /api/me
func (s *Server) getCurrentUser(c *gin.Context) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeUnauthenticated, "Not authenticated", nil))
		return
	}

	user, err := s.deps.Auth.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}
