package httpgin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/cinema-es/internal/command"
	redisrepo "github.com/kirinyoku/cinema-es/internal/repository/redis"
	"github.com/kirinyoku/cinema-es/internal/service"
)

// Idempotency remembers create responses per Idempotency-Key.
type Idempotency interface {
	Claim(ctx context.Context, scope, key string) (redisrepo.Claim, error)
	Complete(ctx context.Context, scope, key string, response []byte) error
	Abandon(ctx context.Context, scope, key string) error
}

// Limiter decides whether a caller may send another write.
type Limiter interface {
	Allow(ctx context.Context, caller string) (redisrepo.Decision, error)
}

// RouterConfig holds the optional parts of the HTTP surface. Nil stores and
// an empty secret switch the matching feature off.
type RouterConfig struct {
	Idempotency Idempotency
	Limiter     Limiter
	JWTSecret   string
	AdminRole   string
}

func NewRouter(
	svcs *service.Services,
	cfg RouterConfig,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	var writeMW []gin.HandlerFunc
	if cfg.JWTSecret != "" {
		writeMW = append(writeMW, JWTAuth(cfg.JWTSecret))
	}
	if cfg.Limiter != nil {
		writeMW = append(writeMW, RateLimit(cfg.Limiter, logger))
	}
	w := api.Group("", writeMW...)
	idem := cfg.Idempotency

	// Cinemas
	api.GET("/cinemas", handleList(svcs.Query.ListCinemas))
	api.GET("/cinemas/:id", handleGet(svcs.Query.Cinema))
	api.GET("/cinemas/:id/employees", handleListBy("id", svcs.Query.EmployeesByCinema))
	w.POST("/cinemas", handleCreate[CinemaRequest](svcs, idem, command.CreateCinema))
	w.PUT("/cinemas/:id", handleUpdate[CinemaRequest](svcs, command.UpdateCinema))
	w.DELETE("/cinemas/:id", handleDelete(svcs, command.DeleteCinema))

	// Movies
	api.GET("/movies", handleList(svcs.Query.ListMovies))
	api.GET("/movies/:id", handleGet(svcs.Query.Movie))
	w.POST("/movies", handleCreate[MovieRequest](svcs, idem, command.CreateMovie))
	w.PUT("/movies/:id", handleUpdate[MovieRequest](svcs, command.UpdateMovie))
	if svcs.Media != nil {
		w.POST("/movies/with-file", handleCreateMovieWithFile(svcs, idem))
		w.PUT("/movies/:id/with-file", handleUpdateMovieWithFile(svcs))
		w.DELETE("/movies/:id", handleDeleteMovie(svcs))
		w.POST("/upload/poster", handleUploadPoster(svcs))
		w.DELETE("/upload/poster", handleDeletePoster(svcs))
	} else {
		w.DELETE("/movies/:id", handleDelete(svcs, command.DeleteMovie))
	}

	// Seats
	api.GET("/seats", handleList(svcs.Query.ListSeats))
	api.GET("/seats/:id", handleGet(svcs.Query.Seat))
	w.POST("/seats", handleCreate[SeatRequest](svcs, idem, command.CreateSeat))
	w.PUT("/seats/:id", handleUpdate[SeatRequest](svcs, command.UpdateSeat))
	w.DELETE("/seats/:id", handleDelete(svcs, command.DeleteSeat))

	// Showtimes
	api.GET("/showtimes", handleList(svcs.Query.ListShowTimes))
	api.GET("/showtimes/:id", handleGet(svcs.Query.ShowTime))
	w.POST("/showtimes", handleCreate[ShowTimeRequest](svcs, idem, command.CreateShowTime))
	w.PUT("/showtimes/:id", handleUpdate[ShowTimeRequest](svcs, command.UpdateShowTime))
	w.DELETE("/showtimes/:id", handleDelete(svcs, command.DeleteShowTime))

	// Employees
	api.GET("/employees", handleList(svcs.Query.ListEmployees))
	api.GET("/employees/:id", handleGet(svcs.Query.Employee))
	api.GET("/employees/:id/workshifts", handleListBy("id", svcs.Query.WorkShiftsByEmployee))
	api.GET("/employees/cinema/:cinemaId", handleListBy("cinemaId", svcs.Query.EmployeesByCinema))
	w.POST("/employees", handleCreate[EmployeeRequest](svcs, idem, command.CreateEmployee))
	w.PUT("/employees/:id", handleUpdate[EmployeeRequest](svcs, command.UpdateEmployee))
	w.DELETE("/employees/:id", handleDelete(svcs, command.DeleteEmployee))

	// Work shifts
	api.GET("/workshifts", handleList(svcs.Query.ListWorkShifts))
	api.GET("/workshifts/:id", handleGet(svcs.Query.WorkShift))
	api.GET("/workshifts/employee/:employeeId", handleListBy("employeeId", svcs.Query.WorkShiftsByEmployee))
	w.POST("/workshifts", handleCreate[WorkShiftRequest](svcs, idem, command.CreateWorkShift))
	w.PUT("/workshifts/:id", handleUpdate[WorkShiftRequest](svcs, command.UpdateWorkShift))
	w.DELETE("/workshifts/:id", handleDelete(svcs, command.DeleteWorkShift))

	// Admin API
	adminMW := []gin.HandlerFunc{}
	if cfg.JWTSecret != "" {
		role := cfg.AdminRole
		if role == "" {
			role = "ADMIN"
		}
		adminMW = append(adminMW, JWTAuth(cfg.JWTSecret), RequireRole(role))
	}
	admin := api.Group("/admin", adminMW...)
	{
		admin.GET("/subscribers", handleSubscribers(svcs))
		admin.POST("/rebuild", handleRebuild(svcs))
		admin.GET("/dead-letters", handleDeadLetters(svcs))
		admin.POST("/dead-letters/:subscriber/redrive", handleRedrive(svcs))
	}

	return r
}
