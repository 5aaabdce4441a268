// Package server is the HTTP surface: the upload page, the upload/result API
// and a websocket feed of job, result and state events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/ocr-web/internal/app"
	"github.com/joseph-ayodele/ocr-web/internal/common"
	"github.com/joseph-ayodele/ocr-web/internal/pipeline"
	"github.com/joseph-ayodele/ocr-web/internal/present"
	"github.com/joseph-ayodele/ocr-web/internal/uploader"
)

// FormField is the multipart field carrying the uploaded file.
const FormField = "file"

const (
	exportBaseName = "ocr-result"
	readTimeout    = 30 * time.Second
)

type Server struct {
	app      *app.App
	cfg      common.ServerConfig
	router   *mux.Router
	handler  http.Handler
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
	unsub    func()
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds the router and subscribes the websocket hub to a's events.
func New(a *app.App, cfg common.ServerConfig, opts ...Option) *Server {
	s := &Server{
		app:    a,
		cfg:    cfg,
		router: mux.NewRouter(),
		logger: zap.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.logger)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", "Content-Type", "Content-Disposition", requestIDHeader},
	})
	s.upgrader.CheckOrigin = func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || c.OriginAllowed(r)
	}

	s.registerRoutes()
	s.handler = accessLog(s.logger)(c.Handler(s.router))
	s.unsub = a.Subscribe(s.publish)
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/", s.handlePage).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/uploads", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/jobs/current", s.handleCurrentJob).Methods(http.MethodGet)
	api.HandleFunc("/result", s.handleResult).Methods(http.MethodGet)
	api.HandleFunc("/result/fragment", s.handleResultFragment).Methods(http.MethodGet)
	api.HandleFunc("/result/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
}

// Handler is the complete middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves HTTP on cfg.HTTPAddr until ctx is done, then shuts
// down within cfg.ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.HTTPAddr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http serving", zap.String("addr", lis.Addr().String()))
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("http shutting down")
	stopHub()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Close detaches the server from the app's events.
func (s *Server) Close() {
	if s.unsub != nil {
		s.unsub()
	}
}

func (s *Server) publish(ev app.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("marshal event failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	s.hub.Broadcast(b)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	up := s.app.Uploader()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := present.RenderPage(w, present.PageData{
		Accept:   up.AllowList().Accept(),
		Busy:     up.IsProcessing(),
		Progress: up.Progress(),
		Result:   s.app.Result(),
	})
	if err != nil {
		s.logger.Warn("render page failed", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadBytes
	if limit > 0 {
		if r.ContentLength > limit {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(FormField)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing %q file field", FormField))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	job, err := s.app.Submit(pipeline.UploadedFile{
		Name:     header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Data:     data,
	})
	switch {
	case err == nil:
		s.logger.Info("upload accepted",
			zap.String("request_id", common.RequestIDFromContext(r.Context())),
			zap.String("job_id", job.ID),
			zap.String("file", header.Filename),
			zap.Int("bytes", len(data)))
		writeJSON(w, http.StatusAccepted, job)
	case errors.Is(err, common.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, common.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, uploader.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("submit failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "submit failed")
	}
}

func (s *Server) handleCurrentJob(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Uploader().Current())
}

func (s *Server) handleResult(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"text": s.app.Result()})
}

func (s *Server) handleResultFragment(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := present.RenderResult(w, s.app.Result()); err != nil {
		s.logger.Warn("render result failed", zap.Error(err))
	}
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	text := s.app.Result()
	switch format := r.URL.Query().Get("format"); format {
	case "", "txt":
		writeDownload(w, "text/plain; charset=utf-8", exportBaseName+".txt", present.ExportText(text))
	case "xlsx":
		data, err := present.ExportXLSX(text)
		if err != nil {
			s.logger.Error("xlsx export failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "export failed")
			return
		}
		writeDownload(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", exportBaseName+".xlsx", data)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown export format %q (want txt or xlsx)", format))
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Store().Snapshot())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	// Current job and state go out before the hub starts writing to conn.
	job := s.app.Uploader().Current()
	st := s.app.Store().Snapshot()
	for _, ev := range []app.Event{{Type: app.EventJob, Job: &job}, {Type: app.EventState, State: &st}} {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			_ = conn.Close()
			return
		}
	}
	if !s.hub.Register(conn) {
		_ = conn.Close()
		return
	}
	defer s.hub.Unregister(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeDownload(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
