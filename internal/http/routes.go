package http

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	middleware "taskboard.com/taskboard/internal/http/middlewares"
)

const socketPath = "/socket.io/"

func Register(e *echo.Echo, h *Handler, hub *SocketHub, rateLimitPerMinute int) {
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(middleware.RateLimiter(middleware.RateLimiterConfig{
		Limit:  rateLimitPerMinute,
		Window: time.Minute,
		Skipper: func(c echo.Context) bool {
			return c.Path() == socketPath
		},
	}))

	api := e.Group("/api")
	api.GET("/tasks", h.ListTasks)
	api.POST("/tasks", h.CreateTask)
	api.PUT("/tasks/:id", h.UpdateTask)
	api.DELETE("/tasks/:id", h.DeleteTask)
	api.GET("/users", h.ListUsers)

	if hub != nil {
		e.GET(socketPath, echo.WrapHandler(hub))
	}
}
