package api

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/api/handler"
	"github.com/qs3c/inkpress/internal/api/middleware"
)

type Router struct {
	authHandler        *handler.AuthHandler
	userHandler        *handler.UserHandler
	postHandler        *handler.PostHandler
	commentHandler     *handler.CommentHandler
	adminHandler       *handler.AdminHandler
	searchHandler      *handler.SearchHandler
	unsubscribeHandler *handler.UnsubscribeHandler
	websocketHandler   *handler.WebSocketHandler
	users              middleware.UserLookup
	cfg                *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	postHandler *handler.PostHandler,
	commentHandler *handler.CommentHandler,
	adminHandler *handler.AdminHandler,
	searchHandler *handler.SearchHandler,
	unsubscribeHandler *handler.UnsubscribeHandler,
	websocketHandler *handler.WebSocketHandler,
	users middleware.UserLookup,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:        authHandler,
		userHandler:        userHandler,
		postHandler:        postHandler,
		commentHandler:     commentHandler,
		adminHandler:       adminHandler,
		searchHandler:      searchHandler,
		unsubscribeHandler: unsubscribeHandler,
		websocketHandler:   websocketHandler,
		users:              users,
		cfg:                cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	requireAuth := middleware.Auth(r.cfg.JWT.Secret)

	api := engine.Group("/api/v1")
	{
		// 公开接口 - 认证
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
		}

		// 公开接口 - 文章与评论（可选认证）
		public := api.Group("")
		public.Use(middleware.OptionalAuth(r.cfg.JWT.Secret))
		{
			public.GET("/posts/:slug", r.postHandler.Get)
			public.GET("/posts/:slug/comments", r.commentHandler.List)
			public.GET("/search", r.searchHandler.Search)
		}

		// 邮件退订，令牌本身即凭证
		api.GET("/email/unsubscribe", r.unsubscribeHandler.Unsubscribe)
		api.POST("/email/unsubscribe", r.unsubscribeHandler.Unsubscribe)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(requireAuth)
		{
			authenticated.GET("/users/me", r.userHandler.GetProfile)
			authenticated.POST("/uploads/image", r.userHandler.UploadImage)
			authenticated.POST("/posts/:slug/comments", r.commentHandler.Create)
			authenticated.DELETE("/comments/:id", r.commentHandler.Delete)
		}

		// WebSocket 通过 query 传递 token，自行校验管理员身份
		api.GET("/admin/ws", r.websocketHandler.Handle)

		// 管理后台
		admin := api.Group("/admin")
		admin.Use(requireAuth, middleware.AdminOnly(r.users))
		{
			admin.POST("/posts", r.postHandler.Create)
			admin.POST("/posts/:id/publish", r.postHandler.Publish)
			admin.POST("/posts/:id/unpublish", r.postHandler.Unpublish)

			admin.GET("/comments", r.adminHandler.ListComments)
			admin.POST("/comments/:id/approve", r.adminHandler.ApproveComment)
			admin.POST("/comments/:id/reject", r.adminHandler.RejectComment)
		}
	}

	return engine
}
