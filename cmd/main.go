package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/robsonhq/tradeguard/internal/config"
	"github.com/robsonhq/tradeguard/internal/db"
	"github.com/robsonhq/tradeguard/internal/db/conf"
	"github.com/robsonhq/tradeguard/internal/exchange"
	"github.com/robsonhq/tradeguard/internal/executor"
	"github.com/robsonhq/tradeguard/internal/guard"
	"github.com/robsonhq/tradeguard/internal/intent"
	"github.com/robsonhq/tradeguard/internal/journal"
	"github.com/robsonhq/tradeguard/internal/monitor"
	"github.com/robsonhq/tradeguard/internal/monitoring"
	"github.com/robsonhq/tradeguard/internal/notifier"
	"github.com/robsonhq/tradeguard/internal/policy"
	"github.com/robsonhq/tradeguard/internal/position"
	"github.com/robsonhq/tradeguard/internal/sizing"
)

func main() {
	cfg := config.Load()

	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer closeStorage()

	if cfg.AuditExport != "" {
		if err := exportAudit(storage, cfg.AuditExport); err != nil {
			log.Fatalf("Audit export failed: %v", err)
		}
		return
	}

	gw, err := openGateway(cfg)
	if err != nil {
		log.Fatalf("Failed to open exchange gateway: %v", err)
	}

	var ntf notifier.Notifier = notifier.Noop{}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		ntf = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID)
	}

	sizer := sizing.New(sizing.WithRiskPercent(cfg.RiskPercent / 100))
	limits := guard.DefaultLimits()
	limits.MaxRiskPercent = cfg.RiskPercent
	limits.DailyLossCapPercent = cfg.DailyLossCapPercent
	limits.MonthlyDrawdownPercent = cfg.MonthlyDrawdownPercent
	limits.MaxOpenPositions = cfg.MaxOpenPositions
	guards := guard.StandardChain(limits)

	coord := executor.New(executor.Config{
		Mode:            executor.Mode(cfg.Mode),
		QuoteAsset:      cfg.QuoteAsset,
		StartingCapital: cfg.StartingCapital,
	}, storage, storage, gw, sizer, guards, ntf)

	// Monitors read prices from wherever orders go: the simulator in a dry
	// run, the live venue otherwise.
	monGW := gw
	if coord.Mode() == executor.DryRun {
		monGW = coord.Simulator()
	}

	locks := monitor.NewLockRegistry()
	stopMon := monitor.NewStopMonitor(storage, monGW, coord, storage, locks, ntf, cfg.MonitorInterval)
	trailing := monitor.NewTrailingAdjuster(storage, monGW, storage, locks, cfg.FeeCushionPercent, cfg.MonitorInterval)

	printStartupInfo(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go stopMon.Run(ctx)
	go trailing.Run(ctx)

	health := monitoring.NewHealthChecker()
	go statusLoop(ctx, storage, health, cfg.MonitorInterval)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", monitoring.NewMetricsHandler())
	mux.Handle("GET /healthz", health)
	registerIntentAPI(mux, coord, storage)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("Main | listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Main | shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Main | server shutdown: %v", err)
	}
}

// openStorage picks postgres when a connection string is configured,
// otherwise the in-memory store.
func openStorage(cfg config.Config) (db.Storage, func(), error) {
	if cfg.DBConnStr == "" {
		log.Println("Main | no DB_CONN_STR, using in-memory storage")
		return db.NewMemory(), func() {}, nil
	}
	sqlDB, err := sql.Open("postgres", cfg.DBConnStr)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpen)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdle)
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	storage, err := db.New(conf.Config{DB: sqlDB})
	if err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return storage, func() { sqlDB.Close() }, nil
}

func openGateway(cfg config.Config) (exchange.Gateway, error) {
	switch cfg.Exchange {
	case "wallex":
		return exchange.NewWallexGateway(cfg.WallexAPIKey), nil
	case "bybit":
		return exchange.NewBybitGateway(cfg.BybitAPIKey, cfg.BybitAPISecret, cfg.BybitCategory, cfg.BybitBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown exchange %q", cfg.Exchange)
	}
}

// exportAudit dumps the full ledger to an XLSX file and prints a summary.
func exportAudit(storage db.Storage, path string) error {
	ctx := context.Background()
	events, err := storage.AllEvents(ctx)
	if err != nil {
		return err
	}
	if err := journal.WriteXLSX(events, path); err != nil {
		return err
	}
	log.Printf("Main | wrote %d audit events to %s", len(events), path)
	return nil
}

// statusLoop refreshes health state and prints the open book periodically.
func statusLoop(ctx context.Context, storage db.Storage, health *monitoring.HealthChecker, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			positions, err := storage.ListActivePositions(ctx)
			if err != nil {
				health.MarkError(fmt.Sprintf("list active positions: %v", err))
				continue
			}
			pol, err := storage.GetPolicyState(ctx)
			if err != nil {
				health.MarkError(fmt.Sprintf("get policy state: %v", err))
				continue
			}
			suspended := pol != nil && pol.Suspended
			health.MarkScan(len(positions), suspended)
			monitoring.SetOpenPositions(len(positions))
			printStatus(positions, pol)
		}
	}
}

func printStartupInfo(cfg config.Config) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("TRADEGUARD")
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Mode", cfg.Mode},
		{"Exchange", cfg.Exchange},
		{"Quote asset", cfg.QuoteAsset},
		{"Risk per trade", fmt.Sprintf("%.2f%%", cfg.RiskPercent)},
		{"Daily loss cap", fmt.Sprintf("%.2f%%", cfg.DailyLossCapPercent)},
		{"Monthly drawdown", fmt.Sprintf("%.2f%%", cfg.MonthlyDrawdownPercent)},
		{"Max open positions", cfg.MaxOpenPositions},
		{"Monitor interval", cfg.MonitorInterval},
	})
	t.Render()
	fmt.Println()
}

func printStatus(positions []*position.Position, pol *policy.State) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("OPEN POSITIONS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Symbol", "Side", "Qty", "Entry", "Stop", "Target", "Opened"})
	for _, p := range positions {
		t.AppendRow(table.Row{
			p.Symbol, p.Side, fmt.Sprintf("%.5f", p.Quantity),
			fmt.Sprintf("%.2f", p.EntryPrice), fmt.Sprintf("%.2f", p.StopPrice),
			fmt.Sprintf("%.2f", p.TakeProfitPrice), p.OpenedAt.Format("01-02 15:04"),
		})
	}
	if pol != nil {
		t.AppendFooter(table.Row{"", "", "", "", "daily loss", fmt.Sprintf("%.2f%%", pol.DailyLossPercent()), ""})
		t.AppendFooter(table.Row{"", "", "", "", "monthly dd", fmt.Sprintf("%.2f%%", pol.MonthlyDrawdownPercent()), ""})
	}
	t.Render()
}

// registerIntentAPI exposes the lifecycle over HTTP.
func registerIntentAPI(mux *http.ServeMux, coord *executor.Coordinator, storage db.Storage) {
	type planRequest struct {
		Symbol          string  `json:"symbol"`
		Side            string  `json:"side"`
		EntryPrice      float64 `json:"entry_price"`
		StopPrice       float64 `json:"stop_price"`
		TakeProfitPrice float64 `json:"take_profit_price"`
		Capital         float64 `json:"capital"`
		Strategy        string  `json:"strategy"`
		Provenance      string  `json:"provenance"`
		Confidence      float64 `json:"confidence"`
		Reason          string  `json:"reason"`
	}
	type executeRequest struct {
		AcknowledgeRisk bool `json:"acknowledge_risk"`
	}
	type cancelRequest struct {
		Reason string `json:"reason"`
	}

	writeJSON := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(v)
	}
	writeErr := func(w http.ResponseWriter, code int, err error) {
		writeJSON(w, code, map[string]string{"error": err.Error()})
	}

	mux.HandleFunc("POST /intents", func(w http.ResponseWriter, r *http.Request) {
		var req planRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		it, err := coord.Plan(r.Context(), executor.PlanRequest{
			Symbol:          req.Symbol,
			Side:            position.Side(req.Side),
			EntryPrice:      req.EntryPrice,
			StopPrice:       req.StopPrice,
			TakeProfitPrice: req.TakeProfitPrice,
			Capital:         req.Capital,
			Strategy:        req.Strategy,
			Provenance:      intent.Provenance(req.Provenance),
			Confidence:      req.Confidence,
			Reason:          req.Reason,
		})
		if err != nil {
			code := http.StatusUnprocessableEntity
			if errors.Is(err, executor.ErrInvalidParameters) {
				code = http.StatusBadRequest
			}
			writeErr(w, code, err)
			return
		}
		writeJSON(w, http.StatusCreated, it)
	})

	mux.HandleFunc("GET /intents", func(w http.ResponseWriter, r *http.Request) {
		intents, err := storage.ListIntents(r.Context(), intent.Status(r.URL.Query().Get("status")))
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, intents)
	})

	mux.HandleFunc("GET /intents/{id}", func(w http.ResponseWriter, r *http.Request) {
		it, err := coord.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	})

	mux.HandleFunc("POST /intents/{id}/validate", func(w http.ResponseWriter, r *http.Request) {
		it, err := coord.Validate(r.Context(), r.PathValue("id"))
		var failure *guard.FailureError
		switch {
		case errors.As(err, &failure):
			// The intent stays PENDING; the report says why.
			writeJSON(w, http.StatusUnprocessableEntity, it)
		case err != nil:
			writeErr(w, http.StatusConflict, err)
		default:
			writeJSON(w, http.StatusOK, it)
		}
	})

	mux.HandleFunc("POST /intents/{id}/execute", func(w http.ResponseWriter, r *http.Request) {
		var req executeRequest
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&req)
		}
		result, err := coord.Execute(r.Context(), r.PathValue("id"), executor.ExecuteOptions{
			AcknowledgeRisk: req.AcknowledgeRisk,
		})
		var exposure *executor.PartialFillExposureError
		switch {
		case errors.As(err, &exposure):
			// Entry filled but the stop did not land. The caller must see
			// both the result and the incident.
			writeJSON(w, http.StatusOK, map[string]any{"result": result, "warning": exposure.Error()})
		case errors.Is(err, executor.ErrRiskNotAcknowledged):
			writeErr(w, http.StatusPreconditionRequired, err)
		case err != nil:
			writeErr(w, http.StatusConflict, err)
		default:
			writeJSON(w, http.StatusOK, result)
		}
	})

	mux.HandleFunc("POST /intents/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		var req cancelRequest
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&req)
		}
		it, err := coord.Cancel(r.Context(), r.PathValue("id"), req.Reason)
		if err != nil {
			writeErr(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, it)
	})

	mux.HandleFunc("GET /intents/{id}/audit", func(w http.ResponseWriter, r *http.Request) {
		events, err := storage.ByIntent(r.Context(), r.PathValue("id"))
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	})
}
