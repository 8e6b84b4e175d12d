// Package api - router setup
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/aethra/gridbase/internal/auth"
	"github.com/aethra/gridbase/internal/config"
)

// SetupRouter wires every handler into a gin engine.
func SetupRouter(
	cfg *config.Config,
	jwtService *auth.JWTService,
	dataHandler *DataHandler,
	metaHandler *MetaHandler,
	auditHandler *AuditHandler,
	authHandler *AuthHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// When credentials are used, specific origins must be provided.
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "xc-token", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "xc-db-response"},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Authentication
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/refresh", authHandler.RefreshToken)

		authed := authGroup.Group("", AuthMiddleware(jwtService))
		authed.GET("/me", authHandler.GetMe)
		authed.POST("/change-password", authHandler.ChangePassword)
	}

	v1 := r.Group("/api/v1/db", AuthMiddleware(jwtService))

	// Row data
	data := v1.Group("/data")
	{
		table := data.Group("/:projectId/:tableName")
		table.GET("", dataHandler.List)
		table.POST("", dataHandler.Insert)
		table.GET("/count", dataHandler.Count)
		table.GET("/find-one", dataHandler.FindOne)
		table.GET("/groupby", dataHandler.GroupBy)
		table.GET("/group/:columnId", dataHandler.GroupedList)
		table.GET("/export", dataHandler.Export)
		table.GET("/:rowId", dataHandler.Read)
		table.PATCH("/:rowId", dataHandler.Update)
		table.DELETE("/:rowId", dataHandler.Delete)
		table.GET("/:rowId/exist", dataHandler.Exist)
		table.POST("/:rowId/links/:linkField/:childId", dataHandler.AddLink)
		table.DELETE("/:rowId/links/:linkField/:childId", dataHandler.RemoveLink)

		// View-scoped reads apply the view's column set, filters and sorts.
		view := data.Group("/:projectId/:tableName/views/:viewName")
		view.GET("", dataHandler.List)
		view.GET("/count", dataHandler.Count)
		view.GET("/find-one", dataHandler.FindOne)
		view.GET("/groupby", dataHandler.GroupBy)
		view.GET("/group/:columnId", dataHandler.GroupedList)
		view.GET("/export", dataHandler.Export)
		view.GET("/:rowId", dataHandler.Read)

		bulk := data.Group("/bulk/:projectId/:tableName")
		bulk.POST("", dataHandler.BulkInsert)
		bulk.PATCH("", dataHandler.BulkUpdate)
		bulk.DELETE("", dataHandler.BulkDelete)
		bulk.PATCH("/all", dataHandler.BulkUpdateAll)
		bulk.DELETE("/all", dataHandler.BulkDeleteAll)
	}

	// Metadata management needs an editing role.
	metaWrite := RequireRoles(auth.RoleOwner, auth.RoleCreator)
	metaGroup := v1.Group("/meta")
	{
		metaGroup.GET("/projects", metaHandler.ListProjects)
		metaGroup.POST("/projects", metaWrite, metaHandler.CreateProject)
		metaGroup.GET("/projects/:projectId", metaHandler.GetProject)
		metaGroup.DELETE("/projects/:projectId", metaWrite, metaHandler.DeleteProject)

		metaGroup.GET("/projects/:projectId/bases", metaHandler.ListBases)
		metaGroup.POST("/projects/:projectId/bases", metaWrite, metaHandler.CreateBase)
		metaGroup.POST("/projects/:projectId/bases/test", metaWrite, metaHandler.TestBase)

		metaGroup.GET("/projects/:projectId/tables", metaHandler.ListTables)
		metaGroup.POST("/projects/:projectId/tables", metaWrite, metaHandler.CreateTable)
		metaGroup.GET("/tables/:tableId", metaHandler.GetTable)
		metaGroup.DELETE("/tables/:tableId", metaWrite, metaHandler.DeleteTable)

		metaGroup.POST("/tables/:tableId/columns", metaWrite, metaHandler.CreateColumn)
		metaGroup.PATCH("/columns/:columnId", metaWrite, metaHandler.UpdateColumn)
		metaGroup.DELETE("/columns/:columnId", metaWrite, metaHandler.DeleteColumn)

		metaGroup.GET("/tables/:tableId/views", metaHandler.ListViews)
		metaGroup.POST("/tables/:tableId/views", metaWrite, metaHandler.CreateView)
		metaGroup.DELETE("/views/:viewId", metaWrite, metaHandler.DeleteView)
		metaGroup.PATCH("/views/:viewId/columns/:columnId", metaWrite, metaHandler.UpdateViewColumn)
		metaGroup.POST("/views/:viewId/filters", metaWrite, metaHandler.CreateFilter)
		metaGroup.DELETE("/filters/:filterId", metaWrite, metaHandler.DeleteFilter)
		metaGroup.POST("/views/:viewId/sorts", metaWrite, metaHandler.CreateSort)
		metaGroup.DELETE("/sorts/:sortId", metaWrite, metaHandler.DeleteSort)

		metaGroup.GET("/projects/:projectId/audits", auditHandler.List)
		metaGroup.POST("/projects/:projectId/audits/comments", auditHandler.CreateComment)
		metaGroup.PATCH("/audits/:auditId/comment", auditHandler.UpdateComment)
	}

	return r
}
