package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"example.com/pdfdesk/internal/pages"
	"example.com/pdfdesk/internal/pdfops"
)

// server holds what handlers share. Nothing in it is mutated per request:
// every upload, buffer and document lives on the handler's call stack.
type server struct {
	cfg    Config
	docs   *pdfops.Orchestrator
	store  *outputStore
	fetch  *fetcher
	log    *logrus.Logger
	policy pages.Policy
	now    func() time.Time
}

func newServer(cfg Config, log *logrus.Logger) (*server, error) {
	store, err := newOutputStore(cfg.OutputDir, cfg.Retention, log)
	if err != nil {
		return nil, err
	}
	policy := cfg.policy()
	docs := pdfops.New(pdfops.NewPDFCPUEngine(cfg.Relaxed),
		pdfops.WithPolicy(policy),
		pdfops.WithLogger(log),
	)
	return &server{
		cfg:    cfg,
		docs:   docs,
		store:  store,
		fetch:  newFetcher(cfg.FetchWait, cfg.UserAgent, cfg.maxUploadBytes()),
		log:    log,
		policy: policy,
		now:    time.Now,
	}, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex())
	mux.HandleFunc("GET /read", s.handleForm("read", "Read PDF"))
	mux.HandleFunc("POST /read", s.handleRead())
	mux.HandleFunc("GET /merge", s.handleForm("merge", "Merge PDFs"))
	mux.HandleFunc("POST /merge", s.handleMerge())
	mux.HandleFunc("POST /api/merge", s.handleMergeURLs())
	mux.HandleFunc("GET /split", s.handleForm("split", "Split PDF"))
	mux.HandleFunc("POST /split", s.handleSplit())
	mux.HandleFunc("GET /view/{name}", s.handleView())
	mux.HandleFunc("GET /files/{name}", s.handleFile(false))
	mux.HandleFunc("GET /download/{name}", s.handleFile(true))
	return s.logRequests(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).Round(time.Millisecond).String(),
		}).Info("[http] request")
	})
}

// run serves until ctx is cancelled, sweeping expired outputs meanwhile.
func (s *server) run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Infof("PDF Desk at http://localhost%v  (output: %s, policy: %s)", s.cfg.Addr, s.cfg.OutputDir, s.policy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		interval := s.cfg.Retention / 4
		if interval < time.Minute {
			interval = time.Minute
		}
		return s.store.runJanitor(ctx, interval)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
