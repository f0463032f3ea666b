package media_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/kirinyoku/cinema-es/internal/aggregate"
	"github.com/kirinyoku/cinema-es/internal/command"
	"github.com/kirinyoku/cinema-es/internal/event"
	"github.com/kirinyoku/cinema-es/internal/repository/memory"
	"github.com/kirinyoku/cinema-es/internal/service/commands"
	"github.com/kirinyoku/cinema-es/internal/service/media"
)

type fakeStorage struct {
	n       int
	objects map[string]bool
	deleted []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]bool)}
}

func (s *fakeStorage) Upload(_ context.Context, name, contentType string, _ int64, _ io.Reader) (string, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", errors.New("not an image")
	}
	s.n++
	url := fmt.Sprintf("http://files/posters/%d-%s", s.n, name)
	s.objects[url] = true
	return url, nil
}

func (s *fakeStorage) Delete(_ context.Context, url string) error {
	delete(s.objects, url)
	s.deleted = append(s.deleted, url)
	return nil
}

func setup() (*media.Service, *commands.Service, *fakeStorage) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	gw := commands.New(memory.NewEventStore(), aggregate.NewRegistry(), nil, log)
	st := newFakeStorage()
	return media.New(gw, st, log), gw, st
}

func png(name string) media.File {
	return media.File{Name: name, ContentType: "image/png", Size: 3, Body: strings.NewReader("png")}
}

func poster(t *testing.T, gw *commands.Service, id string) string {
	t.Helper()
	state, err := gw.Load(context.Background(), event.AggregateMovie, id)
	if err != nil {
		t.Fatalf("Load error = %v", err)
	}
	return state.(*aggregate.Movie).PosterURL
}

func TestPosterLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, gw, st := setup()

	if _, err := svc.CreateMovie(ctx, "m1", command.MovieFields{Title: "Alien", Duration: 117}, png("a.png")); err != nil {
		t.Fatalf("CreateMovie error = %v", err)
	}
	first := poster(t, gw, "m1")
	if !st.objects[first] {
		t.Fatalf("poster %q not stored", first)
	}

	if _, err := svc.UpdateMovie(ctx, "m1", command.MovieFields{Title: "Alien", Duration: 117}, png("b.png")); err != nil {
		t.Fatalf("UpdateMovie error = %v", err)
	}
	second := poster(t, gw, "m1")
	if second == first || !st.objects[second] || st.objects[first] {
		t.Fatalf("objects = %v, want only %q", st.objects, second)
	}

	if _, err := svc.DeleteMovie(ctx, "m1"); err != nil {
		t.Fatalf("DeleteMovie error = %v", err)
	}
	if len(st.objects) != 0 {
		t.Fatalf("objects after delete = %v, want none", st.objects)
	}
}

func TestRejectedCommandRemovesUpload(t *testing.T) {
	ctx := context.Background()
	svc, _, st := setup()

	_, err := svc.CreateMovie(ctx, "m1", command.MovieFields{Title: "", Duration: 100}, png("a.png"))
	if !errors.Is(err, aggregate.ErrValidation) {
		t.Fatalf("CreateMovie error = %v, want ErrValidation", err)
	}
	if len(st.objects) != 0 || len(st.deleted) != 1 {
		t.Fatalf("objects=%v deleted=%v, want upload removed", st.objects, st.deleted)
	}
}

func TestUpdateMissingMovieUploadsNothing(t *testing.T) {
	svc, _, st := setup()

	_, err := svc.UpdateMovie(context.Background(), "ghost", command.MovieFields{Title: "X", Duration: 90}, png("a.png"))
	if !errors.Is(err, aggregate.ErrNotExists) {
		t.Fatalf("UpdateMovie error = %v, want ErrNotExists", err)
	}
	if len(st.objects) != 0 {
		t.Fatalf("objects = %v, want none", st.objects)
	}
}

func TestNonImageRejected(t *testing.T) {
	svc, _, _ := setup()

	file := media.File{Name: "a.txt", ContentType: "text/plain", Size: 1, Body: strings.NewReader("x")}
	if _, err := svc.CreateMovie(context.Background(), "m1", command.MovieFields{Title: "X", Duration: 90}, file); err == nil {
		t.Fatal("CreateMovie with text file should fail")
	}
}

func TestUpdateWithoutFileKeepsPoster(t *testing.T) {
	ctx := context.Background()
	svc, gw, st := setup()

	if _, err := svc.CreateMovie(ctx, "m1", command.MovieFields{Title: "Alien", Duration: 117}, png("a.png")); err != nil {
		t.Fatalf("CreateMovie error = %v", err)
	}
	first := poster(t, gw, "m1")

	if _, err := svc.UpdateMovie(ctx, "m1", command.MovieFields{Title: "Aliens", Duration: 137}, media.File{}); err != nil {
		t.Fatalf("UpdateMovie error = %v", err)
	}
	if got := poster(t, gw, "m1"); got != first || !st.objects[first] {
		t.Fatalf("poster = %q, want %q kept", got, first)
	}
}

// brokenGateway fails every command with an error that says nothing about
// whether the event was stored.
type brokenGateway struct {
	*commands.Service
}

func (brokenGateway) Dispatch(context.Context, command.Command) (commands.Result, error) {
	return commands.Result{}, errors.New("append: connection reset by peer")
}

func TestUnknownOutcomeKeepsUpload(t *testing.T) {
	ctx := context.Background()
	_, gw, st := setup()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := media.New(brokenGateway{gw}, st, log)

	if _, err := svc.CreateMovie(ctx, "m1", command.MovieFields{Title: "Alien", Duration: 117}, png("a.png")); err == nil {
		t.Fatal("CreateMovie should fail")
	}
	if len(st.objects) != 1 || len(st.deleted) != 0 {
		t.Fatalf("objects=%v deleted=%v, want upload kept", st.objects, st.deleted)
	}
}
