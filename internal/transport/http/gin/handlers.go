package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kirinyoku/cinema-es/internal/aggregate"
	"github.com/kirinyoku/cinema-es/internal/command"
	"github.com/kirinyoku/cinema-es/internal/dispatcher"
	"github.com/kirinyoku/cinema-es/internal/repository"
	"github.com/kirinyoku/cinema-es/internal/service"
	"github.com/kirinyoku/cinema-es/internal/service/commands"
	"github.com/kirinyoku/cinema-es/internal/service/media"
	"github.com/kirinyoku/cinema-es/internal/service/query"
	"github.com/kirinyoku/cinema-es/internal/storage"
)

type request interface {
	fields() any
}

// --- Reads ---

func handleGet[T any](get func(context.Context, string) (T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, v, "no-cache")
	}
}

func handleList[T any](list func(context.Context) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := list(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, rows, "no-cache")
	}
}

func handleListBy[T any](param string, list func(context.Context, string) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := list(c.Request.Context(), c.Param(param))
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, rows, "no-cache")
	}
}

// --- Commands ---

// handleCreate binds R, assigns a fresh id and dispatches the create command.
// A repeated Idempotency-Key replays the first response.
func handleCreate[R request](svcs *service.Services, idem Idempotency, t command.Type) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req R
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idempotent(c, idem, string(t), func(ctx context.Context) (commands.Result, error) {
			return svcs.Commands.Dispatch(ctx, command.Command{
				TargetID: uuid.NewString(),
				Type:     t,
				Payload:  req.fields(),
			})
		})
	}
}

func handleUpdate[R request](svcs *service.Services, t command.Type) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req R
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		res, err := svcs.Commands.Dispatch(c.Request.Context(), command.Command{
			TargetID: c.Param("id"),
			Type:     t,
			Payload:  req.fields(),
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CommandResponse{ID: res.AggregateID, Version: res.Version})
	}
}

func handleDelete(svcs *service.Services, t command.Type) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svcs.Commands.Dispatch(c.Request.Context(), command.Command{
			TargetID: c.Param("id"),
			Type:     t,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CommandResponse{ID: res.AggregateID, Version: res.Version})
	}
}

// idempotent runs a create at most once per Idempotency-Key and scope while
// the key is remembered. Store failures fall back to running the create.
func idempotent(
	c *gin.Context,
	idem Idempotency,
	scope string,
	run func(ctx context.Context) (commands.Result, error),
) {
	ctx := c.Request.Context()
	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))

	created := func() (CommandResponse, bool) {
		res, err := run(ctx)
		if err != nil {
			respondErr(c, err)
			return CommandResponse{}, false
		}
		return CommandResponse{ID: res.AggregateID, Version: res.Version}, true
	}

	if idem == nil || key == "" {
		if resp, ok := created(); ok {
			c.JSON(http.StatusCreated, resp)
		}
		return
	}

	claim, err := idem.Claim(ctx, scope, key)
	switch {
	case err != nil:
		if resp, ok := created(); ok {
			c.JSON(http.StatusCreated, resp)
		}
		return
	case claim.Response != nil:
		c.Header("Idempotency-Key", key)
		c.Data(http.StatusCreated, "application/json; charset=utf-8", claim.Response)
		return
	case claim.Busy():
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
		return
	}

	resp, ok := created()
	if !ok {
		_ = idem.Abandon(context.WithoutCancel(ctx), scope, key)
		return
	}

	b, _ := json.Marshal(resp)
	_ = idem.Complete(context.WithoutCancel(ctx), scope, key, b)
	c.Header("Idempotency-Key", key)
	c.JSON(http.StatusCreated, resp)
}

// --- Movie posters ---

// posterFile reads the optional "file" part. The returned closer is never nil.
func posterFile(c *gin.Context) (media.File, io.Closer, error) {
	fh, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return media.File{}, io.NopCloser(nil), nil
	}
	if err != nil {
		return media.File{}, nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return media.File{}, nil, err
	}

	return media.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}, f, nil
}

func bindMovieForm(c *gin.Context) (command.MovieFields, media.File, io.Closer, bool) {
	var form MovieForm
	if err := c.ShouldBind(&form); err != nil {
		badRequest(c, err.Error())
		return command.MovieFields{}, media.File{}, nil, false
	}

	file, closer, err := posterFile(c)
	if err != nil {
		badRequest(c, "invalid file: "+err.Error())
		return command.MovieFields{}, media.File{}, nil, false
	}

	return command.MovieFields{
		Title:       form.Title,
		Description: form.Description,
		Duration:    form.Duration,
	}, file, closer, true
}

// @Summary  Create movie with poster
// @Accept   multipart/form-data
// @Param    title        formData  string  true   "title"
// @Param    description  formData  string  false  "description"
// @Param    duration     formData  int     true   "minutes"
// @Param    file         formData  file    false  "poster image"
// @Success  201 {object} CommandResponse
// @Failure  400 {object} ErrorResponse
// @Failure  413 {object} ErrorResponse
// @Router   /api/v1/movies/with-file [post]
func handleCreateMovieWithFile(svcs *service.Services, idem Idempotency) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields, file, closer, ok := bindMovieForm(c)
		if !ok {
			return
		}
		defer closer.Close()

		idempotent(c, idem, string(command.CreateMovie), func(ctx context.Context) (commands.Result, error) {
			return svcs.Media.CreateMovie(ctx, uuid.NewString(), fields, file)
		})
	}
}

// @Summary  Update movie and replace its poster
// @Accept   multipart/form-data
// @Param    id           path      string  true   "Movie ID"
// @Param    title        formData  string  true   "title"
// @Param    description  formData  string  false  "description"
// @Param    duration     formData  int     true   "minutes"
// @Param    file         formData  file    false  "poster image"
// @Success  200 {object} CommandResponse
// @Failure  404 {object} ErrorResponse
// @Router   /api/v1/movies/{id}/with-file [put]
func handleUpdateMovieWithFile(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields, file, closer, ok := bindMovieForm(c)
		if !ok {
			return
		}
		defer closer.Close()

		res, err := svcs.Media.UpdateMovie(c.Request.Context(), c.Param("id"), fields, file)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CommandResponse{ID: res.AggregateID, Version: res.Version})
	}
}

func handleDeleteMovie(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svcs.Media.DeleteMovie(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CommandResponse{ID: res.AggregateID, Version: res.Version})
	}
}

// @Summary  Upload a poster image
// @Accept   multipart/form-data
// @Param    file  formData  file  true  "poster image"
// @Success  201 {object} UploadResponse
// @Router   /api/v1/upload/poster [post]
func handleUploadPoster(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, closer, err := posterFile(c)
		if err != nil {
			badRequest(c, "invalid file: "+err.Error())
			return
		}
		defer closer.Close()

		url, err := svcs.Media.UploadPoster(c.Request.Context(), file)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, UploadResponse{URL: url})
	}
}

// @Summary  Delete a poster image
// @Param    url  query  string  true  "object URL"
// @Success  204
// @Router   /api/v1/upload/poster [delete]
func handleDeletePoster(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		url := c.Query("url")
		if url == "" {
			badRequest(c, "url is required")
			return
		}
		if err := svcs.Media.DeletePoster(c.Request.Context(), url); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// --- Admin ---

func handleSubscribers(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subscribers": svcs.Admin.Subscribers()})
	}
}

// @Summary  Rebuild the read model from the event log
// @Success  200 {object} RebuildResponse
// @Failure  503 {object} ErrorResponse
// @Router   /api/v1/admin/rebuild [post]
func handleRebuild(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		names, err := svcs.Admin.Rebuild(c.Request.Context())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, RebuildResponse{Projections: names})
	}
}

// @Summary  List dead letters
// @Param    subscriber  query  string  false  "subscriber name"
// @Success  200 {array} dispatcher.DeadLetter
// @Router   /api/v1/admin/dead-letters [get]
func handleDeadLetters(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		letters, err := svcs.Admin.DeadLetters(c.Request.Context(), c.Query("subscriber"))
		if err != nil {
			respondErr(c, err)
			return
		}
		if letters == nil {
			letters = []dispatcher.DeadLetter{}
		}
		c.JSON(http.StatusOK, letters)
	}
}

// @Summary  Redeliver the dead letters of one subscriber
// @Param    subscriber  path  string  true  "subscriber name"
// @Success  200 {object} RedriveResponse
// @Router   /api/v1/admin/dead-letters/{subscriber}/redrive [post]
func handleRedrive(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("subscriber")
		n, err := svcs.Admin.Redrive(c.Request.Context(), name)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, RedriveResponse{Subscriber: name, Delivered: n})
	}
}

// --- Helpers ---

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var verr *aggregate.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: verr.Error()})
	case errors.Is(err, aggregate.ErrValidation),
		errors.Is(err, aggregate.ErrUnknownCommand),
		errors.Is(err, storage.ErrNotImage):
		badRequest(c, rootMessage(err))
	case errors.Is(err, storage.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file is too large"})
	case errors.Is(err, aggregate.ErrNotExists),
		errors.Is(err, query.ErrNotFound),
		errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, dispatcher.ErrUnknownSubscriber):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown subscriber"})
	case errors.Is(err, aggregate.ErrAlreadyExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "already exists"})
	case errors.Is(err, command.ErrConcurrencyConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "concurrent modification, retry"})
	case errors.Is(err, dispatcher.ErrNotRunning):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "dispatcher not running"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// rootMessage drops the op prefixes of a wrapped error.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
