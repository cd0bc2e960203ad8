// Package gateway serves the client-session endpoint: a single POST
// route that multiplexes login and the binary packet protocol over
// request/response polling.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"bancho/server/internal/config"
	"bancho/server/internal/core"
	"bancho/server/internal/geoloc"
	"bancho/server/internal/metrics"
	"bancho/server/internal/packet"
	"bancho/server/internal/store"
)

// contentType is what the osu! client's header parser expects on every
// gateway response.
const contentType = "text/html; charset=UTF-8"

// Registrar lets collaborating packages mount their routes on the same
// Echo instance.
type Registrar interface {
	Register(e *echo.Echo)
}

// Server is the Echo application fronting the session gateway.
type Server struct {
	echo  *echo.Echo
	state *core.State
	db    *store.Store
	geo   *geoloc.Client
	cfg   config.Config

	handlers map[packet.ID]handlerFunc

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

type handlerFunc func(ctx context.Context, s *core.Session, r *packet.Reader)

// New constructs the Echo app with the gateway route plus any extra
// route sets (score pipeline, asset serving).
func New(cfg config.Config, state *core.State, db *store.Store, geo *geoloc.Client, extras ...Registrar) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		state:    state,
		db:       db,
		geo:      geo,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
	s.handlers = s.buildHandlerTable()
	s.registerRoutes()
	for _, r := range extras {
		r.Register(e)
	}
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.POST("/", s.handleBancho)
	s.echo.GET("/", s.handleIndex)
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

func (s *Server) handleIndex(c echo.Context) error {
	return c.HTML(http.StatusOK, fmt.Sprintf("running bancho/server (%d online)", s.state.SessionCount()))
}

// handleBancho owns the session lifecycle: no token means login, a
// known token means a packet transaction, an unknown token tells the
// client to reconnect.
func (s *Server) handleBancho(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.Blob(http.StatusOK, contentType, packet.WriteNotification("Malformed request."))
	}

	token := c.Request().Header.Get("osu-token")
	if token == "" {
		return s.handleLogin(c, body)
	}

	sess, ok := s.state.SessionByToken(token)
	if !ok {
		// Stale token after a restart; the client re-logs on its own.
		return c.Blob(http.StatusOK, contentType, concat(
			packet.WriteNotification("Server has restarted."),
			packet.WriteRestart(0),
		))
	}

	s.dispatch(c.Request().Context(), sess, body)
	sess.TouchRecv(time.Now())
	return c.Blob(http.StatusOK, contentType, sess.Dequeue())
}

// dispatch walks the request body frame by frame. A malformed frame
// drops the session; everything else is dispatched by packet id.
func (s *Server) dispatch(ctx context.Context, sess *core.Session, body []byte) {
	dec := packet.NewDecoder(body)
	for {
		id, payload, ok, err := dec.Next()
		if err != nil {
			slog.Warn("malformed packet stream", "user_id", sess.ID, "err", err)
			sess.Enqueue(packet.WriteRestart(0))
			s.state.RemoveSession(sess)
			return
		}
		if !ok {
			return
		}

		metrics.PacketsHandled.WithLabelValues(strconv.Itoa(int(id))).Inc()
		h, known := s.handlers[id]
		if !known {
			slog.Debug("unhandled packet", "id", id, "user_id", sess.ID, "len", len(payload.Remaining()))
			continue
		}
		h(ctx, sess, payload)
		if err := payload.Err(); err != nil {
			slog.Warn("malformed packet payload", "id", id, "user_id", sess.ID, "err", err)
			sess.Enqueue(packet.WriteRestart(0))
			s.state.RemoveSession(sess)
			return
		}
	}
}

// limiter returns the per-IP login limiter, creating it on first use.
func (s *Server) limiter(ip string) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	lim, ok := s.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.cfg.LoginRate), s.cfg.LoginBurst)
		s.limiters[ip] = lim
	}
	return lim
}

func concat(frames ...[]byte) []byte {
	var out []byte
	for _, f := range frames {
		out = append(out, f...)
	}
	return out
}
