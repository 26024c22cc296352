package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gostudio/app"
	"gostudio/domain/core"
	studio "gostudio/domain/session"
	"gostudio/internal"
)

// errorBody is the JSON shape of every failed request
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// sessionView is what the API returns for a session: everything except the
// per-phase history payloads, which only carry earlier tables
type sessionView struct {
	ID         core.SessionID       `json:"id"`
	Phase      studio.Phase         `json:"phase"`
	Path       []studio.Phase       `json:"path"`
	Current    studio.Tagged        `json:"current"`
	Errors     []studio.ErrorRecord `json:"errors"`
	Transcript []studio.Message     `json:"transcript"`
	Terminated bool                 `json:"terminated"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

func newSessionView(sess *studio.Session) sessionView {
	path := make([]studio.Phase, 0, len(sess.History))
	for _, h := range sess.History {
		path = append(path, h.Phase())
	}
	return sessionView{
		ID:         sess.ID,
		Phase:      sess.Phase(),
		Path:       path,
		Current:    sess.Current,
		Errors:     sess.Errors,
		Transcript: sess.Transcript,
		Terminated: sess.Terminated,
		UpdatedAt:  sess.UpdatedAt,
	}
}

// Server exposes the studio service over HTTP
type Server struct {
	studio *app.StudioService
	hub    *SSEHub
	router *gin.Engine
	logger *internal.Logger
}

// NewServer builds the router. mode is a gin mode such as gin.ReleaseMode.
func NewServer(studioService *app.StudioService, hub *SSEHub, mode string) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}
	s := &Server{
		studio: studioService,
		hub:    hub,
		router: gin.New(),
		logger: internal.DefaultLogger,
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.MaxMultipartMemory = 32 << 20

	api := s.router.Group("/api")
	{
		api.POST("/sessions", s.createSession)
		api.GET("/sessions/:id", s.getSession)
		api.DELETE("/sessions/:id", s.deleteSession)
		api.POST("/sessions/:id/upload", s.upload)
		api.POST("/sessions/:id/start", s.startAnalysis)
		api.POST("/sessions/:id/solutions/:solution/apply", s.applySolution)
		api.POST("/sessions/:id/goal", s.submitGoal)
		api.POST("/sessions/:id/target", s.confirmTarget)
		api.POST("/sessions/:id/plan/approve", s.approvePlan)
		api.POST("/sessions/:id/phase", s.setPhase)
		api.POST("/sessions/:id/reset", s.reset)
	}
	if s.hub != nil {
		s.router.GET("/api/events", s.hub.HandleSSE)
	}
}

// Handler returns the router for use in an http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("[API] Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("[API] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("[API] %s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// ============================================================================
// HANDLERS
// ============================================================================

// createSession starts a session. A multipart "file" field is uploaded into it
// right away.
func (s *Server) createSession(c *gin.Context) {
	ctx := c.Request.Context()
	sess, err := s.studio.CreateSession(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if _, err := c.FormFile("file"); err == nil {
		sess, err = s.uploadFile(c, sess.ID)
		if err != nil {
			s.writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, newSessionView(sess))
}

func (s *Server) getSession(c *gin.Context) {
	s.withSession(c, http.StatusOK, func(ctx context.Context, id core.SessionID) (*studio.Session, error) {
		return s.studio.Snapshot(ctx, id)
	})
}

func (s *Server) deleteSession(c *gin.Context) {
	id, ok := s.sessionID(c)
	if !ok {
		return
	}
	if err := s.studio.DeleteSession(c.Request.Context(), id); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) upload(c *gin.Context) {
	s.withSession(c, http.StatusOK, func(_ context.Context, id core.SessionID) (*studio.Session, error) {
		return s.uploadFile(c, id)
	})
}

func (s *Server) uploadFile(c *gin.Context, id core.SessionID) (*studio.Session, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, errBadRequest("multipart field \"file\" is required")
	}
	f, err := header.Open()
	if err != nil {
		return nil, &core.CorruptedUploadError{Source: header.Filename, Reason: "failed to read upload"}
	}
	defer f.Close()
	return s.studio.Upload(c.Request.Context(), id, header.Filename, f)
}

func (s *Server) startAnalysis(c *gin.Context) {
	s.withSession(c, http.StatusOK, s.studio.StartAnalysis)
}

func (s *Server) applySolution(c *gin.Context) {
	solution := c.Param("solution")
	s.withSession(c, http.StatusOK, func(ctx context.Context, id core.SessionID) (*studio.Session, error) {
		return s.studio.ApplySolution(ctx, id, solution)
	})
}

type goalRequest struct {
	Goal string `json:"goal" binding:"required"`
}

func (s *Server) submitGoal(c *gin.Context) {
	var req goalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errBadRequest("body must be {\"goal\": string}"))
		return
	}
	s.withSession(c, http.StatusOK, func(ctx context.Context, id core.SessionID) (*studio.Session, error) {
		return s.studio.SubmitGoal(ctx, id, req.Goal)
	})
}

type targetRequest struct {
	Column string `json:"column" binding:"required"`
}

func (s *Server) confirmTarget(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, errBadRequest("body must be {\"column\": string}"))
		return
	}
	s.withSession(c, http.StatusOK, func(ctx context.Context, id core.SessionID) (*studio.Session, error) {
		return s.studio.ConfirmTarget(ctx, id, req.Column)
	})
}

func (s *Server) approvePlan(c *gin.Context) {
	s.withSession(c, http.StatusOK, s.studio.ApprovePlan)
}

type phaseRequest struct {
	Phase studio.Phase `json:"phase" binding:"required"`
}

// setPhase moves the session back to an earlier phase; LANDING resets it
func (s *Server) setPhase(c *gin.Context) {
	var req phaseRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Phase.Valid() {
		s.writeError(c, errBadRequest("body must be {\"phase\": <known phase>}"))
		return
	}
	s.withSession(c, http.StatusOK, func(ctx context.Context, id core.SessionID) (*studio.Session, error) {
		if req.Phase == studio.PhaseLanding {
			return s.studio.Reset(ctx, id)
		}
		return s.studio.NavigateBack(ctx, id, req.Phase)
	})
}

func (s *Server) reset(c *gin.Context) {
	s.withSession(c, http.StatusOK, s.studio.Reset)
}

// withSession parses :id, runs op and writes the resulting session
func (s *Server) withSession(c *gin.Context, status int, op func(context.Context, core.SessionID) (*studio.Session, error)) {
	id, ok := s.sessionID(c)
	if !ok {
		return
	}
	sess, err := op(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(status, newSessionView(sess))
}

func (s *Server) sessionID(c *gin.Context) (core.SessionID, bool) {
	id, err := core.ParseSessionID(c.Param("id"))
	if err != nil {
		s.writeError(c, errBadRequest(err.Error()))
		return "", false
	}
	return id, true
}

// ============================================================================
// ERRORS
// ============================================================================

const kindBadRequest = "bad_request"

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }
func (e *badRequestError) Kind() string  { return kindBadRequest }

func errBadRequest(msg string) error { return &badRequestError{msg: msg} }

var statusByKind = map[string]int{
	kindBadRequest:             http.StatusBadRequest,
	core.KindNotFound:          http.StatusNotFound,
	core.KindInvalidTransition: http.StatusConflict,
	core.KindSessionTerminated: http.StatusGone,
	core.KindCorruptedUpload:   http.StatusUnprocessableEntity,
	core.KindStaleSolution:     http.StatusConflict,
	core.KindAmbiguousTarget:   http.StatusUnprocessableEntity,
	core.KindUnsupportedTarget: http.StatusUnprocessableEntity,
	core.KindInsufficientData:  http.StatusUnprocessableEntity,
	core.KindTestTimeout:       http.StatusGatewayTimeout,
	core.KindReasoning:         http.StatusBadGateway,
	core.KindInconsistentState: http.StatusInternalServerError,
	core.KindInternal:          http.StatusInternalServerError,
}

// statusFor maps an error kind to an HTTP status
func statusFor(kind string) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(c *gin.Context, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("[API] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		s.logger.Debug("[API] %s %s rejected (%s): %v", c.Request.Method, c.Request.URL.Path, kind, err)
	}
	c.JSON(status, errorBody{Kind: kind, Message: err.Error()})
}
