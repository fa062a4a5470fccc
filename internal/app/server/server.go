package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"hrdash/internal/platform/config"
	"hrdash/internal/platform/db"
	"hrdash/internal/platform/jobs"
	"hrdash/internal/platform/metrics"
	"hrdash/internal/transport/http/api"
	certificatehandler "hrdash/internal/transport/http/handlers/certificates"
	employeehandler "hrdash/internal/transport/http/handlers/employees"
	reportshandler "hrdash/internal/transport/http/handlers/reports"
	"hrdash/internal/transport/http/middleware"
)

type App struct {
	Config   config.Config
	DB       *pgxpool.Pool
	Projects Projects
	Jobs     *jobs.Service
	Metrics  *metrics.Collector
	Log      *logrus.Logger
	Router   http.Handler
}

// New connects to the database, syncs every enabled project and builds the
// router. Background jobs start with Start.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*App, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "db connect")
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "migrations")
		}
	}

	projects, err := BuildProjects(ctx, pool, cfg, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	collector := metrics.New()
	jobSvc := jobs.New(pool, cfg.ExpirySweepEvery, log.WithField("app", "hrdash"), collector)
	projects.ScheduleSweeps(jobSvc, collector)

	app := &App{
		Config:   cfg,
		DB:       pool,
		Projects: projects,
		Jobs:     jobSvc,
		Metrics:  collector,
		Log:      log,
	}
	router, err := app.routes()
	if err != nil {
		pool.Close()
		return nil, err
	}
	app.Router = router
	return app, nil
}

func (a *App) Start(ctx context.Context) {
	a.Jobs.Start(ctx)
}

func (a *App) Close() {
	a.DB.Close()
}

// Serve runs the HTTP server until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.Log.WithField("addr", a.Config.Addr).Info("hrdash server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *App) routes() (http.Handler, error) {
	limiter, err := middleware.NewRateLimiter(a.Config.RateLimit, a.Log)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Actor)
	router.Use(middleware.Logger(a.Log, a.Metrics))
	router.Use(middleware.Recoverer(a.Log))
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   a.Config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", middleware.HeaderRequestID, middleware.HeaderModifiedBy},
		ExposedHeaders:   []string{middleware.HeaderRequestID, "Content-Disposition", "X-Record-Count"},
		AllowCredentials: true,
		MaxAge:           600,
	}).Handler)
	router.Use(middleware.SecureHeaders(a.Config.Environment == config.Production))
	router.Use(middleware.BodyLimit(a.Config.MaxBodyBytes))
	router.Use(limiter.Handler)

	router.NotFound(spaHandler{staticPath: a.Config.FrontendDir, indexPath: "index.html"}.ServeHTTP)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if a.Config.MetricsEnabled {
		router.Handle(a.Config.MetricsPath, promhttp.Handler())
	}

	router.Route("/api", func(r chi.Router) {
		r.Get("/projects", a.handleProjects)
	})

	employees := make(map[string]employeehandler.Project, len(a.Projects))
	certificates := make(map[string]certificatehandler.Service, len(a.Projects))
	reporters := make(map[string]reportshandler.Reporter, len(a.Projects))
	for slug, p := range a.Projects {
		employees[slug] = employeehandler.Project{
			Schema:    p.Schema,
			Contracts: p.Contracts,
			Documents: p.Documents,
			Importer:  p.Importer,
		}
		certificates[slug] = p.Certificates
		reporters[slug] = p.Reports
	}

	entry := a.Log.WithField("app", "hrdash")
	employeeHandler := employeehandler.NewHandler(employees, a.Jobs, a.Metrics, entry, a.Config.MaxUploadBytes, a.Config.MaxImportBytes)
	certificateHandler := certificatehandler.NewHandler(certificates, entry)
	reportsHandler := reportshandler.NewHandler(reporters, a.Jobs, entry)

	router.Route("/{project}", func(r chi.Router) {
		employeeHandler.RegisterRoutes(r)
		certificateHandler.RegisterRoutes(r)
		reportsHandler.RegisterRoutes(r)
	})

	return router, nil
}

type projectInfo struct {
	Slug          string   `json:"slug"`
	DisplayName   string   `json:"displayName"`
	DocumentKinds []string `json:"documentKinds"`
	Columns       []string `json:"columns"`
}

func (a *App) handleProjects(w http.ResponseWriter, r *http.Request) {
	out := make([]projectInfo, 0, len(a.Projects))
	for _, slug := range a.Projects.Slugs() {
		schema := a.Projects[slug].Schema
		kinds := make([]string, 0, len(schema.DocumentKinds))
		for _, k := range schema.DocumentKinds {
			kinds = append(kinds, string(k))
		}
		out = append(out, projectInfo{
			Slug:          slug,
			DisplayName:   schema.DisplayName,
			DocumentKinds: kinds,
			Columns:       schema.TemplateColumns(),
		})
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.staticPath, filepath.Clean("/"+r.URL.Path))
	info, err := os.Stat(path)
	if err == nil && !info.IsDir() {
		http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
		return
	}

	if err == nil || os.IsNotExist(err) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}

	http.NotFound(w, r)
}
