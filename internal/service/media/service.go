// Package media runs movie commands that carry a poster file.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirinyoku/cinema-es/internal/aggregate"
	"github.com/kirinyoku/cinema-es/internal/command"
	"github.com/kirinyoku/cinema-es/internal/event"
	"github.com/kirinyoku/cinema-es/internal/service/commands"
)

// Storage holds poster objects addressed by URL.
type Storage interface {
	Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (string, error)
	Delete(ctx context.Context, objectURL string) error
}

// Gateway is the part of the command gateway media needs.
type Gateway interface {
	Dispatch(ctx context.Context, cmd command.Command) (commands.Result, error)
	Load(ctx context.Context, t event.AggregateType, id string) (aggregate.State, error)
}

type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Service struct {
	gw      Gateway
	storage Storage
	log     *slog.Logger
}

func New(gw Gateway, storage Storage, log *slog.Logger) *Service {
	return &Service{gw: gw, storage: storage, log: log}
}

// CreateMovie uploads the poster and creates the movie pointing at it. The
// upload is removed again when the command is rejected. After other
// failures the event may have been stored, so the upload is kept. A File without Body
// creates the movie without a poster.
func (s *Service) CreateMovie(ctx context.Context, id string, f command.MovieFields, poster File) (commands.Result, error) {
	const op = "service.media.CreateMovie"

	url, err := s.upload(ctx, poster)
	if err != nil {
		return commands.Result{}, fmt.Errorf("%s:%w", op, err)
	}
	if url != "" {
		f.PosterURL = url
	}

	res, err := s.gw.Dispatch(ctx, command.Command{TargetID: id, Type: command.CreateMovie, Payload: f})
	if err != nil {
		if url != "" {
			s.release(ctx, url, err)
		}
		return commands.Result{}, fmt.Errorf("%s:%w", op, err)
	}

	return res, nil
}

// UpdateMovie replaces the poster together with the movie fields. The old
// poster is deleted only after the update is stored. Without a new file the
// current poster is kept.
func (s *Service) UpdateMovie(ctx context.Context, id string, f command.MovieFields, poster File) (commands.Result, error) {
	const op = "service.media.UpdateMovie"

	old, err := s.currentPoster(ctx, id)
	if err != nil {
		return commands.Result{}, fmt.Errorf("%s:%w", op, err)
	}

	url, err := s.upload(ctx, poster)
	if err != nil {
		return commands.Result{}, fmt.Errorf("%s:%w", op, err)
	}
	f.PosterURL = url
	if url == "" {
		f.PosterURL = old
	}

	res, err := s.gw.Dispatch(ctx, command.Command{TargetID: id, Type: command.UpdateMovie, Payload: f})
	if err != nil {
		if url != "" {
			s.release(ctx, url, err)
		}
		return commands.Result{}, fmt.Errorf("%s:%w", op, err)
	}

	if url != "" && old != "" && old != url {
		s.discard(ctx, old)
	}

	return res, nil
}

// DeleteMovie deletes the movie and then its poster.
func (s *Service) DeleteMovie(ctx context.Context, id string) (commands.Result, error) {
	const op = "service.media.DeleteMovie"

	old, err := s.currentPoster(ctx, id)
	if err != nil {
		return commands.Result{}, fmt.Errorf("%s:%w", op, err)
	}

	res, err := s.gw.Dispatch(ctx, command.Command{TargetID: id, Type: command.DeleteMovie})
	if err != nil {
		return commands.Result{}, fmt.Errorf("%s:%w", op, err)
	}

	if old != "" {
		s.discard(ctx, old)
	}

	return res, nil
}

// UploadPoster stores a poster that is not yet attached to a movie.
func (s *Service) UploadPoster(ctx context.Context, f File) (string, error) {
	const op = "service.media.UploadPoster"

	if f.Body == nil {
		return "", fmt.Errorf("%s:%w", op, &aggregate.ValidationError{Field: "file", Message: "file is required"})
	}

	url, err := s.upload(ctx, f)
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}
	return url, nil
}

func (s *Service) DeletePoster(ctx context.Context, url string) error {
	const op = "service.media.DeletePoster"

	if err := s.storage.Delete(ctx, url); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	return nil
}

func (s *Service) upload(ctx context.Context, f File) (string, error) {
	if f.Body == nil {
		return "", nil
	}
	url, err := s.storage.Upload(ctx, f.Name, f.ContentType, f.Size, f.Body)
	if err != nil {
		return "", fmt.Errorf("upload poster: %w", err)
	}
	return url, nil
}

func (s *Service) currentPoster(ctx context.Context, id string) (string, error) {
	state, err := s.gw.Load(ctx, event.AggregateMovie, id)
	if err != nil {
		return "", err
	}
	m, ok := state.(*aggregate.Movie)
	if !ok || m.Status != aggregate.Active {
		return "", fmt.Errorf("movie %s: %w", id, aggregate.ErrNotExists)
	}
	return m.PosterURL, nil
}

// release removes a fresh upload after a failed command, but only when the
// command was definitely not stored.
func (s *Service) release(ctx context.Context, url string, cause error) {
	if !rejected(cause) {
		s.log.Warn("poster kept after failed command",
			slog.String("url", url),
			slog.Any("err", cause),
		)
		return
	}
	s.discard(ctx, url)
}

func rejected(err error) bool {
	for _, target := range []error{
		aggregate.ErrValidation,
		aggregate.ErrNotExists,
		aggregate.ErrAlreadyExists,
		aggregate.ErrUnknownCommand,
		command.ErrConcurrencyConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// discard removes an object on a best-effort basis.
func (s *Service) discard(ctx context.Context, url string) {
	if err := s.storage.Delete(context.WithoutCancel(ctx), url); err != nil {
		s.log.Warn("poster cleanup failed", slog.String("url", url), slog.Any("err", err))
	}
}
