// Command delist runs the controller dispatch service: the operator HTTP
// surface, the webform worker loop, and the intake endpoint that feeds
// selection, preparation, and routing.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/delist-labs/delist/pkg/alert"
	"github.com/delist-labs/delist/pkg/api"
	"github.com/delist-labs/delist/pkg/artifacts"
	"github.com/delist-labs/delist/pkg/automation"
	"github.com/delist-labs/delist/pkg/config"
	"github.com/delist-labs/delist/pkg/contracts"
	"github.com/delist-labs/delist/pkg/dispatch"
	"github.com/delist-labs/delist/pkg/handlers"
	"github.com/delist-labs/delist/pkg/observability"
	"github.com/delist-labs/delist/pkg/policy"
	"github.com/delist-labs/delist/pkg/proof"
	"github.com/delist-labs/delist/pkg/scrub"
	"github.com/delist-labs/delist/pkg/selector"
	"github.com/delist-labs/delist/pkg/store"
	"github.com/delist-labs/delist/pkg/throttle"
	"github.com/delist-labs/delist/pkg/webform"

	_ "github.com/lib/pq"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "delist:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		noWorker = flag.Bool("no-worker", false, "serve the API without the webform worker loop")
		noAPI    = flag.Bool("no-api", false, "run the worker loop without the HTTP surface")
	)
	flag.Parse()

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "delist",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		Endpoint:       cfg.OTLPEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.TelemetryEnabled,
		Insecure:       cfg.Environment != "production",
	}, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()
	metrics, err := observability.NewMetrics(obs)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := store.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	// Jobs move to Postgres for multi-instance deployments; actions and
	// proofs stay local to the instance that prepared them.
	var jobs store.JobStore = db
	if cfg.DatabaseURL != "" {
		pg, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer pg.Close()
		pgJobs, err := store.NewPostgresJobStore(pg)
		if err != nil {
			return err
		}
		jobs = pgJobs
		logger.Info("job queue on postgres")
	}

	signer, err := proof.NewSignerFromConfig(cfg.SigningMode, cfg.SigningKey, cfg.SigningKeyID, cfg.Environment, logger)
	if err != nil {
		return err
	}
	ledger := proof.NewLedger(signer, db, db)

	table := policy.NewTable()
	var reload func() error
	if cfg.CapabilityBundle != "" {
		loader, err := policy.NewLoader(cfg.CapabilityBundle, table)
		if err != nil {
			return err
		}
		if err := loader.LoadAll(); err != nil {
			return fmt.Errorf("load capability bundles: %w", err)
		}
		reload = loader.LoadAll
		logger.Info("capability bundles loaded", "dir", cfg.CapabilityBundle)
	}
	overrides := policy.NewOverrideStore()
	resolver := policy.NewResolver(table, overrides)
	bander := policy.NewBander(table)
	sel := selector.New(resolver, bander, cfg.GlobalFloor, nil)

	scrubber := scrub.New()
	preparer := dispatch.NewPreparer(scrubber, ledger, db)

	queue := webform.NewQueue(jobs, cfg.MaxAttempts)
	var email dispatch.EmailSender
	if cfg.EmailEndpoint != "" {
		email = dispatch.NewHTTPEmailClient(cfg.EmailEndpoint, cfg.EmailAPIKey, cfg.EmailFrom, nil)
	}
	router := dispatch.NewRouter(resolver, email, queue, db, logger)

	artifactStore, err := artifacts.New(ctx, artifacts.Config{
		Backend: artifacts.Backend(cfg.ArtifactBackend),
		Dir:     cfg.ArtifactDir,
		S3: artifacts.S3Config{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
			Prefix:   cfg.S3Prefix,
		},
		GCS: artifacts.GCSConfig{Bucket: cfg.GCSBucket, Prefix: cfg.GCSPrefix},
	})
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}

	var limiter throttle.Limiter
	if cfg.RedisAddr != "" {
		limiter = throttle.NewRedisLimiter(cfg.RedisAddr, "", 0, cfg.DomainMinGap)
		logger.Info("domain pacing on redis", "addr", cfg.RedisAddr)
	} else {
		limiter = throttle.NewLocalLimiter(cfg.DomainMinGap)
	}

	var sink alert.Sink = alert.NoopSink{}
	if cfg.AlertWebhookURL != "" {
		sink = alert.NewWebhookSink(cfg.AlertWebhookURL, nil)
	}
	monitor := webform.NewMonitor(jobs, sink, int(cfg.AlertWindow.Minutes()), cfg.AlertThreshold)

	engine := automation.NewChromeEngine(automation.ChromeConfig{
		DebuggerURL: cfg.ChromeURL,
		Headless:    true,
		Timeouts:    automation.DefaultTimeouts(),
	})
	defer engine.Close()

	worker := webform.NewWorker(
		webform.WorkerConfig{
			BatchSize:    cfg.WorkerBatchSize,
			PollInterval: cfg.WorkerPollInterval,
			Backoff:      webform.DefaultBackoffPolicy(),
		},
		jobs, db,
		handlers.NewRegistry(), handlers.NewProfileStore(),
		engine, artifactStore, limiter, monitor, metrics, logger,
	)

	errCh := make(chan error, 2)
	if !*noWorker {
		go func() {
			errCh <- worker.Run(ctx)
		}()
	}

	if !*noAPI {
		srv := api.NewServer(db, jobs, db, queue, logger)
		if reload != nil {
			srv.WithPolicyReload(reload)
		}
		mux := srv.Routes()
		mux.HandleFunc("POST /dispatch", intakeHandler(sel, preparer, router, metrics, logger))

		httpSrv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("http surface listening", "port", cfg.Port)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}

// intakeRequest is the body of POST /dispatch: scanner hits plus the drafted
// request content from the drafting collaborator.
type intakeRequest struct {
	Hits      []contracts.Hit   `json:"hits"`
	Draft     contracts.Draft   `json:"draft"`
	Region    string            `json:"region,omitempty"`
	SubjectID string            `json:"subjectId,omitempty"`
	Preferred contracts.Channel `json:"preferred,omitempty"`
	Max       int               `json:"max,omitempty"`
}

type intakeResult struct {
	ActionID   string `json:"actionId"`
	Controller string `json:"controller"`
	State      string `json:"state"`
	Channel    string `json:"channel,omitempty"`
	JobID      string `json:"jobId,omitempty"`
	Idempotent bool   `json:"idempotent,omitempty"`
	Error      string `json:"error,omitempty"`
}

func intakeHandler(sel *selector.Selector, preparer *dispatch.Preparer, router *dispatch.Router, metrics *observability.Metrics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req intakeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteBadRequest(w, r, "malformed JSON body")
			return
		}
		if len(req.Hits) == 0 {
			api.WriteBadRequest(w, r, "hits must not be empty")
			return
		}
		if req.Max <= 0 {
			req.Max = 3
		}

		candidates, rejections := sel.Select(req.Hits, req.Region, req.Max)

		results := make([]intakeResult, 0, len(candidates))
		for _, cand := range candidates {
			res := intakeResult{Controller: cand.ControllerID}

			action, idempotent, err := preparer.Prepare(r.Context(), cand, req.Draft)
			if err != nil {
				res.Error = err.Error()
				results = append(results, res)
				continue
			}
			res.ActionID = action.ID
			res.Idempotent = idempotent
			if idempotent && action.Status != contracts.ActionPrepared {
				// Already dispatched on a previous identical request.
				res.State = string(action.Status)
				results = append(results, res)
				continue
			}

			outcome, err := router.Dispatch(r.Context(), dispatch.Request{
				Action:    action,
				Preferred: req.Preferred,
				Region:    req.Region,
				SubjectID: req.SubjectID,
				TargetURL: cand.Hit.URL,
				Payload: contracts.JobPayload{
					Name:    cand.Hit.Preview.Name,
					Email:   cand.Hit.Preview.Email,
					Message: action.Body,
				},
			})
			res.State = string(outcome.State)
			res.Channel = string(outcome.Channel)
			res.JobID = outcome.JobID
			if err != nil {
				res.Error = err.Error()
			}
			metrics.DispatchRouted(r.Context(), string(outcome.Channel), string(outcome.State))
			results = append(results, res)
		}

		rejected := make([]map[string]string, 0, len(rejections))
		for _, rej := range rejections {
			rejected = append(rejected, map[string]string{
				"url":    rej.Hit.URL,
				"reason": rej.Reason,
			})
		}

		logger.Info("intake processed",
			"hits", len(req.Hits),
			"dispatched", len(results),
			"rejected", len(rejected),
		)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results":  results,
			"rejected": rejected,
		})
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
