// Package score implements the score submission pipeline and the
// osu-web asset routes that travel with it: replay download, screenshot
// upload and avatar serving.
package score

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"bancho/server/internal/blob"
	"bancho/server/internal/config"
	"bancho/server/internal/core"
	"bancho/server/internal/osu"
	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

// Server carries the score pipeline's collaborators.
type Server struct {
	state *core.State
	db    *store.Store
	blobs *blob.Store
	cfg   config.Config
}

// New builds the score route set.
func New(cfg config.Config, state *core.State, db *store.Store, blobs *blob.Store) *Server {
	return &Server{state: state, db: db, blobs: blobs, cfg: cfg}
}

// Register mounts the osu-web routes on the gateway's Echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.POST("/web/osu-submit-modular-selector.php", s.handleSubmit)
	e.GET("/web/osu-getreplay.php", s.handleGetReplay)
	e.POST("/web/osu-screenshot.php", s.handleScreenshot)
	e.GET("/ss/:name", s.handleScreenshotView)
	e.GET("/a/:id", s.handleAvatar)
}

// authenticate re-checks a name + password-MD5 pair against the stored
// bcrypt hash, via the registry's verification cache.
func (s *Server) authenticate(ctx context.Context, name, pwMD5 string) (store.User, error) {
	user, err := s.db.UserBySafeName(ctx, store.SafeName(name))
	if err != nil {
		return store.User{}, err
	}
	if err := s.state.VerifyPassword(user.PwBcrypt, pwMD5); err != nil {
		return store.User{}, err
	}
	return user, nil
}

// restrict strips the player's unrestricted bit, records the reason and
// hides them from everyone still online.
func (s *Server) restrict(ctx context.Context, user store.User, reason string) {
	newPriv := user.Priv &^ osu.PrivUnrestricted
	if err := s.db.SetPrivileges(ctx, user.ID, newPriv); err != nil {
		slog.Error("restriction persist failed", "user_id", user.ID, "err", err)
		return
	}
	_ = s.db.InsertLog(ctx, s.state.Bot.ID, user.ID, "restrict", reason, time.Now().Unix())
	slog.Warn("player restricted", "user_id", user.ID, "name", user.Name, "reason", reason)

	if sess, ok := s.state.SessionByID(user.ID); ok {
		sess.SetPriv(newPriv)
		sess.Enqueue(
			packet.WriteAccountRestricted(),
			packet.WriteNotification("Your account has been restricted: "+reason),
		)
		s.state.Broadcast(packet.WriteLogout(sess.ID))
	}
}

func (s *Server) handleGetReplay(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := s.authenticate(ctx, c.QueryParam("u"), c.QueryParam("h")); err != nil {
		return c.String(http.StatusUnauthorized, "error: pass")
	}

	scoreID, err := strconv.ParseInt(c.QueryParam("c"), 10, 64)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	f, err := s.blobs.OpenReplay(scoreID)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return c.NoContent(http.StatusInternalServerError)
	}
	defer f.Close()
	return c.Stream(http.StatusOK, "application/octet-stream", f)
}

func (s *Server) handleScreenshot(c echo.Context) error {
	ctx := c.Request().Context()
	if _, err := s.authenticate(ctx, c.FormValue("u"), c.FormValue("p")); err != nil {
		return c.String(http.StatusUnauthorized, "error: pass")
	}

	fh, err := c.FormFile("ss")
	if err != nil {
		return c.String(http.StatusBadRequest, "missing screenshot")
	}
	// 4 MiB is far beyond any real screenshot.
	if fh.Size > 4<<20 {
		return c.String(http.StatusBadRequest, "screenshot too large")
	}
	f, err := fh.Open()
	if err != nil {
		return c.NoContent(http.StatusInternalServerError)
	}
	defer f.Close()

	ext := "jpg"
	if c.FormValue("v") == "2" {
		ext = "png"
	}
	name, err := s.blobs.PutScreenshot(f, ext)
	if err != nil {
		slog.Error("screenshot store failed", "err", err)
		return c.NoContent(http.StatusInternalServerError)
	}
	return c.String(http.StatusOK, name)
}

func (s *Server) handleScreenshotView(c echo.Context) error {
	f, err := s.blobs.OpenScreenshot(c.Param("name"))
	if err != nil {
		return c.NoContent(http.StatusNotFound)
	}
	defer f.Close()
	ctype := "image/jpeg"
	if len(c.Param("name")) > 4 && c.Param("name")[len(c.Param("name"))-3:] == "png" {
		ctype = "image/png"
	}
	return c.Stream(http.StatusOK, ctype, f)
}

func (s *Server) handleAvatar(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}
	f, ext, err := s.blobs.OpenAvatar(int32(id))
	if err != nil {
		return c.NoContent(http.StatusNotFound)
	}
	defer f.Close()
	ctype := "image/jpeg"
	if ext == "png" {
		ctype = "image/png"
	}
	return c.Stream(http.StatusOK, ctype, f)
}
