// Package api provides the HTTP surface and main server logic for Apollobot.
//
// It exposes the Bot Framework messaging endpoint, wires the catalog,
// spreadsheet, fallback answerer, connector, and store modules together, and
// hands inbound activities to the router.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aera-procure/apollobot/internal/bot"
	"github.com/aera-procure/apollobot/internal/connector"
	"github.com/aera-procure/apollobot/internal/excel"
	"github.com/aera-procure/apollobot/internal/genai"
	"github.com/aera-procure/apollobot/internal/ingram"
	"github.com/aera-procure/apollobot/internal/msgraph"
	"github.com/aera-procure/apollobot/internal/store"
)

const (
	// DefaultAddr is the default listen address; 3978 is the conventional
	// Bot Framework local port.
	DefaultAddr = ":3978"

	// DefaultReadHeaderTimeout bounds how long a client may take to send
	// request headers.
	DefaultReadHeaderTimeout = 10 * time.Second

	// DefaultHandlerTimeout bounds one activity's processing end to end,
	// including catalog and model calls.
	DefaultHandlerTimeout = 60 * time.Second
)

// AuthValidator checks the opaque Authorization header of an inbound request.
// A non-nil error rejects the request with 401.
type AuthValidator func(authorization string) error

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	AuthValidator AuthValidator
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAuthValidator installs a validator for the inbound Authorization
// header. Without one, inbound requests are accepted as-is.
func WithAuthValidator(v AuthValidator) Option {
	return func(o *Opts) { o.AuthValidator = v }
}

// Server ties the router to the HTTP listener.
type Server struct {
	addr         string
	router       *bot.Router
	st           store.Store
	authValidate AuthValidator
}

// NewServer creates a server around an already wired router.
func NewServer(router *bot.Router, st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("api.NewServer: created", "addr", cfg.Addr, "auth_validator_set", cfg.AuthValidator != nil)
	return &Server{addr: cfg.Addr, router: router, st: st, authValidate: cfg.AuthValidator}
}

// Handler returns the server's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages", s.messagesHandler)
	mux.HandleFunc("/", s.healthHandler)
	return mux
}

// Start blocks serving HTTP until the listener fails.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	slog.Info("Server.Start: Apollobot API running", "addr", s.addr)
	return srv.ListenAndServe()
}

// Run builds every module from its option group and serves the API. The
// spreadsheet and fallback answerer are optional; when unconfigured their
// commands degrade to user-facing notices.
func Run(ingramOpts []ingram.Option, graphOpts []msgraph.Option, genaiOpts []genai.Option, connectorOpts []connector.Option, storeOpts []store.Option, apiOpts []Option) error {
	st, err := buildStore(storeOpts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			slog.Warn("api.Run: store close failed", "error", cerr)
		}
	}()

	catalog := ingram.NewClient(ingramOpts...)
	sender := connector.NewClient(connectorOpts...)

	var sheet bot.Spreadsheet
	if graphConfigured(graphOpts) {
		sheet = excel.NewIndex(msgraph.NewClient(graphOpts...))
	} else {
		slog.Info("api.Run: Graph credentials not configured, Excel search disabled")
	}

	var answerer bot.Answerer
	if ga, err := genai.NewAnswerer(genaiOpts...); err != nil {
		slog.Warn("api.Run: fallback answerer not configured", "error", err)
	} else {
		answerer = ga
	}

	router := bot.NewRouter(catalog, sheet, excel.Format, answerer, sender, st)
	return NewServer(router, st, apiOpts...).Start()
}

// buildStore selects a backend by DSN; an empty DSN yields the in-memory store.
func buildStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		return store.NewPostgresStore(opts...)
	}
	return store.NewSQLiteStore(opts...)
}

// graphConfigured reports whether the option group carries enough to reach
// the workbook.
func graphConfigured(opts []msgraph.Option) bool {
	var cfg msgraph.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg.TenantID != "" && cfg.SiteURL != "" && cfg.FilePath != ""
}
