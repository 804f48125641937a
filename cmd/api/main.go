// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/recipe-box/internal/auth"
	"github.com/yourusername/recipe-box/internal/config"
	"github.com/yourusername/recipe-box/internal/database"
	"github.com/yourusername/recipe-box/internal/logger"
	"github.com/yourusername/recipe-box/internal/middleware"
	"github.com/yourusername/recipe-box/internal/recipes"
	"github.com/yourusername/recipe-box/internal/users"
)

func main() {
	logger.Init()

	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// データベースの初期化
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（アクセスログはリクエストIDミドルウェアで出力）
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	router.Use(cors.New(corsConfig))

	// ルーティングの設定
	setupRoutes(router, db)

	// サーバーの起動
	addr := ":" + cfg.Port
	log.Info().Str("addr", addr).Str("mode", cfg.GinMode).Msg("Starting API server")
	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "recipe-box-api",
		"version": "0.1.0",
	})
}

// setupRoutes は認証・レシピ周りの配線を行います。
func setupRoutes(router *gin.Engine, db *sql.DB) {
	// まずは誰でも叩けるヘルスチェックを登録
	router.GET("/health", handleHealth)

	userStore := users.NewStore(db)
	recipeStore := recipes.NewStore(db)
	authManager := auth.NewManager(userStore)

	// 認証エンドポイント（ログイン状態の判定は各ハンドラー内で行う）
	router.POST("/signup", authManager.Signup)
	router.GET("/check_session", authManager.CheckSession)
	router.POST("/login", authManager.Login)
	router.DELETE("/logout", authManager.Logout)

	// レシピエンドポイントはセッション必須
	protected := router.Group("/recipes")
	protected.Use(authManager.RequireLogin())
	{
		protected.GET("", recipes.ListHandler(recipeStore))
		protected.POST("", recipes.CreateHandler(recipeStore, userStore))
	}
}
