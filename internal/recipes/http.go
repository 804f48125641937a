package recipes

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/recipe-box/internal/auth"
	"github.com/yourusername/recipe-box/internal/users"
)

// Service はハンドラーが利用するレシピ操作のインターフェースです。
type Service interface {
	ListByOwner(ctx context.Context, userID int64) ([]Recipe, error)
	Create(ctx context.Context, input NewRecipe) (Recipe, error)
}

// UserGetter はレシピ作成時の所有者検証に使用します。
type UserGetter interface {
	GetByID(ctx context.Context, id int64) (users.User, error)
}

type createRequest struct {
	Title             string `json:"title"`
	Instructions      string `json:"instructions"`
	MinutesToComplete *int64 `json:"minutes_to_complete"`
}

// ListHandler は GET /recipes のハンドラーを返します。
// ログインユーザーが所有するレシピのみを返します。
func ListHandler(service Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized access",
			})
			return
		}

		list, err := service.ListByOwner(c.Request.Context(), userID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("failed to list recipes")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list recipes",
			})
			return
		}

		c.JSON(http.StatusOK, list)
	}
}

// CreateHandler は POST /recipes のハンドラーを返します。
// セッションが指すユーザーが削除済みの場合は404を返します。
func CreateHandler(service Service, userGetter UserGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized access",
			})
			return
		}

		owner, err := userGetter.GetByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "User not found",
				})
				return
			}
			log.Error().Err(err).Int64("user_id", userID).Msg("failed to load recipe owner")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create recipe",
			})
			return
		}

		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": "Invalid request body",
			})
			return
		}

		recipe, err := service.Create(c.Request.Context(), NewRecipe{
			Title:             req.Title,
			Instructions:      req.Instructions,
			MinutesToComplete: req.MinutesToComplete,
			UserID:            userID,
		})
		if err != nil {
			var validationErr *ValidationError
			if errors.As(err, &validationErr) {
				// 制約違反のメッセージはそのまま返す
				c.JSON(http.StatusUnprocessableEntity, gin.H{
					"error": validationErr.Error(),
				})
				return
			}
			// GetByIDの後にユーザーが削除された場合はINSERTの外部キー違反で検出する
			if errors.Is(err, users.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "User not found",
				})
				return
			}
			log.Error().Err(err).Int64("user_id", userID).Msg("failed to create recipe")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create recipe",
			})
			return
		}

		recipe.Owner = owner
		c.JSON(http.StatusCreated, recipe)
	}
}
