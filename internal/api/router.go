// Package api 组装 gin 路由
package api

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/d60-Lab/qutee-media/docs"
	"github.com/d60-Lab/qutee-media/internal/api/handler"
	"github.com/d60-Lab/qutee-media/internal/api/middleware"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/pkg/logger"
)

// Options 路由依赖
type Options struct {
	Chain       *chain.Chain
	Handler     *handler.Handler
	JWTSecret   string
	RateLimit   *middleware.IPRateLimiter
	ServiceName string
	Sentry      bool
}

// NewRouter 创建路由
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinLogger(), gzip.Gzip(gzip.DefaultCompression))
	if opts.ServiceName != "" {
		r.Use(otelgin.Middleware(opts.ServiceName))
	}
	if opts.Sentry {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	if opts.RateLimit != nil {
		r.Use(opts.RateLimit.Middleware())
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "block_number": opts.Chain.BlockNumber()})
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	h := opts.Handler
	auth := middleware.Auth(opts.JWTSecret, opts.Chain.IsSigner)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/connect", h.Connect)

		v1.GET("/chain/accounts", h.Accounts)
		v1.GET("/chain/blocks/latest", h.LatestBlock)
		v1.POST("/chain/mine", auth, h.Mine)

		v1.GET("/contracts", h.ListContracts)
		v1.GET("/contracts/:address", h.GetContract)
		v1.GET("/transactions/:hash", h.GetTransaction)
		v1.GET("/accounts/:address/transactions", h.ListTransactions)

		media := v1.Group("/media/:address")
		{
			media.POST("/register", auth, h.RegisterUser)
			media.GET("/users/:user/registered", h.IsUserRegistered)
			media.GET("/posts", h.ListPosts)
			media.POST("/posts", auth, h.CreatePost)
			media.GET("/posts/next-id", h.NextPostID)
			media.GET("/posts/:id", h.GetPost)
			media.DELETE("/posts/:id", auth, h.RemovePost)
			media.POST("/posts/:id/upvote", auth, h.Upvote)
			media.POST("/posts/:id/downvote", auth, h.Downvote)
		}

		nft := v1.Group("/nft/:address")
		{
			nft.GET("/tokens/:id", h.GetToken)
			nft.GET("/owners/:owner/balance", h.BalanceOf)
		}

		v1.GET("/users/:address/activity", h.ListActivity)
	}
	return r
}
