package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"printflow-system/internal/database/models"
	"printflow-system/internal/utils"
)

const (
	USER_CACHE_PREFIX = "user:"
	ROLE_CACHE_KEY    = "roles:list"
	TOKEN_TTL         = 24 * time.Hour
)

type UserHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewUserHandler(db *gorm.DB, redisClient *redis.Client) *UserHandler {
	return &UserHandler{
		db:    db,
		redis: redisClient,
	}
}

func (s *UserHandler) success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func (s *UserHandler) error(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   message,
	})
}

func (s *UserHandler) InvalidateUserCaches(ctx context.Context, userIDs ...int64) {
	_ = s.redis.Del(ctx, ROLE_CACHE_KEY).Err()

	for _, id := range userIDs {
		cacheKey := fmt.Sprintf("%s%d", USER_CACHE_PREFIX, id)
		_ = s.redis.Del(ctx, cacheKey).Err()
	}
}

type userView struct {
	ID        int64        `json:"id"`
	Username  string       `json:"username"`
	Email     string       `json:"email"`
	Firstname string       `json:"firstname"`
	Lastname  string       `json:"lastname"`
	RoleID    int32        `json:"role_id"`
	IsActive  bool         `json:"is_active"`
	LastLogin *time.Time   `json:"last_login,omitempty"`
	Role      *models.Role `json:"role,omitempty"`
}

func buildUserView(u models.User) userView {
	v := userView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Firstname: u.Firstname,
		Lastname:  u.Lastname,
		RoleID:    u.RoleID,
		IsActive:  u.IsActive,
		LastLogin: u.LastLogin,
	}
	if u.Role.ID != 0 {
		role := u.Role
		v.Role = &role
	}
	return v
}

type RegisterRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	Firstname string `json:"firstname" binding:"required"`
	Lastname  string `json:"lastname" binding:"required"`
	RoleID    int32  `json:"role_id" binding:"required"`
}

func (s *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var existing models.User
	if err := s.db.Where("username = ? OR email = ?", req.Username, req.Email).First(&existing).Error; err == nil {
		s.error(c, http.StatusConflict, "username or email already exists")
		return
	} else if err != gorm.ErrRecordNotFound {
		s.error(c, http.StatusInternalServerError, "database error while checking existing user")
		return
	}

	var role models.Role
	if err := s.db.First(&role, req.RoleID).Error; err != nil {
		s.error(c, http.StatusBadRequest, "invalid role specified")
		return
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.error(c, http.StatusInternalServerError, "error hashing password")
		return
	}

	user := models.User{
		Username:  req.Username,
		Email:     req.Email,
		Password:  string(pwHash),
		Firstname: req.Firstname,
		Lastname:  req.Lastname,
		RoleID:    req.RoleID,
		IsActive:  true,
	}
	if err := s.db.Create(&user).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "error creating user")
		return
	}
	user.Role = role

	token, exp, err := utils.GenerateToken(user.ID, user.Username, TOKEN_TTL)
	if err != nil {
		s.error(c, http.StatusInternalServerError, "error generating token")
		return
	}

	s.InvalidateUserCaches(c.Request.Context())

	s.success(c, gin.H{
		"token":      token,
		"expires_at": exp,
		"user":       buildUserView(user),
	})
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var user models.User
	if err := s.db.Preload("Role").
		Where("username = ? AND is_active = ?", req.Username, true).
		First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.error(c, http.StatusUnauthorized, "invalid username or password")
			return
		}
		s.error(c, http.StatusInternalServerError, "database error")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		s.error(c, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, exp, err := utils.GenerateToken(user.ID, user.Username, TOKEN_TTL)
	if err != nil {
		s.error(c, http.StatusInternalServerError, "error generating token")
		return
	}

	now := time.Now()
	user.LastLogin = &now
	s.db.Model(&models.User{}).Where("id = ?", user.ID).Update("last_login", now)

	s.InvalidateUserCaches(c.Request.Context(), user.ID)

	s.success(c, gin.H{
		"token":      token,
		"expires_at": exp,
		"user":       buildUserView(user),
	})
}

func (s *UserHandler) GetUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.error(c, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var user models.User
	if err := s.db.Preload("Role").First(&user, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			s.error(c, http.StatusNotFound, "User not found")
			return
		}
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	s.success(c, buildUserView(user))
}

func (s *UserHandler) ListUsers(c *gin.Context) {
	query := s.db.Model(&models.User{}).Preload("Role")

	if isActive := c.Query("is_active"); isActive != "" {
		if v, err := strconv.ParseBool(isActive); err == nil {
			query = query.Where("is_active = ?", v)
		}
	}
	if roleID := c.Query("role_id"); roleID != "" {
		if id, err := strconv.Atoi(roleID); err == nil {
			query = query.Where("role_id = ?", id)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if pageSize <= 0 {
		pageSize = 10
	}
	pageNumber := 1
	if token := c.Query("page_token"); token != "" {
		if n, err := strconv.Atoi(token); err == nil && n > 0 {
			pageNumber = n
		}
	}

	var users []models.User
	if err := query.Offset((pageNumber - 1) * pageSize).Limit(pageSize).
		Find(&users).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}

	views := make([]userView, len(users))
	for i, u := range users {
		views[i] = buildUserView(u)
	}

	nextPageToken := ""
	if int64(pageNumber*pageSize) < total {
		nextPageToken = strconv.Itoa(pageNumber + 1)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    views,
		"pagination": gin.H{
			"next_page_token": nextPageToken,
			"total_count":     total,
		},
	})
}

type CreateRoleRequest struct {
	RoleName    string `json:"role_name" binding:"required"`
	AccessLevel int32  `json:"access_level"`
	Permissions string `json:"permissions"`
}

func (s *UserHandler) CreateRole(c *gin.Context) {
	var req CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.error(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var existing models.Role
	if err := s.db.Where("role_name = ?", req.RoleName).First(&existing).Error; err == nil {
		s.error(c, http.StatusConflict, "role name already exists")
		return
	} else if err != gorm.ErrRecordNotFound {
		s.error(c, http.StatusInternalServerError, "database error")
		return
	}

	role := models.Role{
		RoleName:    req.RoleName,
		AccessLevel: req.AccessLevel,
		Permissions: req.Permissions,
	}
	if err := s.db.Create(&role).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "error creating role")
		return
	}

	_ = s.redis.Del(c.Request.Context(), ROLE_CACHE_KEY).Err()
	s.success(c, role)
}

func (s *UserHandler) ListRoles(c *gin.Context) {
	var roles []models.Role
	if err := s.db.Order("access_level desc").Find(&roles).Error; err != nil {
		s.error(c, http.StatusInternalServerError, "Database error")
		return
	}
	s.success(c, roles)
}
