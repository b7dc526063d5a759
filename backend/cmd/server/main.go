package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	grpcadapter "x-arena/backend/internal/adapter/in/grpc"
	"x-arena/backend/internal/adapter/in/ws"
	adapterPhysics "x-arena/backend/internal/adapter/out/physics"
	"x-arena/backend/internal/config"
	"x-arena/backend/internal/core/domain/service"
	portPhysics "x-arena/backend/internal/core/port/out/physics"
	"x-arena/backend/internal/game"
	"x-arena/backend/internal/telemetry"
)

const healthServiceName = "xarena.Arena"

func main() {
	cfg := config.DefaultConfig()
	cfg.BindFlags(flag.CommandLine)

	httpAddr := flag.String("http-addr", ":8080", "HTTP/WebSocket listen address")
	grpcAddr := flag.String("grpc-addr", ":50051", "gRPC health listen address")
	staticDir := flag.String("static", "./static", "static files directory (empty = disabled)")
	metricsInterval := flag.Duration("metrics-interval", 30*time.Second, "arena metrics log interval")
	telemetryEnabled := flag.Bool("telemetry", false, "record physics telemetry (platformer mode)")
	telemetryInterval := flag.Duration("telemetry-interval", 2*time.Second, "telemetry summary interval")
	flag.Parse()

	logger := log.New(os.Stdout, "", log.LstdFlags)

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("[Server] Некорректная конфигурация: %v", err)
	}

	// Физический мир нужен только платформеру
	var bridge portPhysics.Bridge
	if cfg.Mode == config.ModePlatformer {
		physicsCfg := adapterPhysics.DefaultPhysicsConfig()
		physicsCfg.WorldSize = cfg.WorldSize
		physicsCfg.Timestep = cfg.PhysicsInterval.Seconds()

		chipmunk, err := adapterPhysics.NewChipmunkBridge(physicsCfg, logger)
		if err != nil {
			logger.Fatalf("[Server] Ошибка создания физического мира: %v", err)
		}
		bridge = chipmunk
	}

	tm := telemetry.NewTelemetryManager(200, *telemetryInterval, logger)
	var opts []service.Option
	if *telemetryEnabled && cfg.Mode == config.ModePlatformer {
		opts = append(opts, service.WithStateRecorder(tm))
	}

	arenaService, err := service.NewArenaService(cfg, bridge, logger, opts...)
	if err != nil {
		logger.Fatalf("[Server] Ошибка создания арены: %v", err)
	}

	wsAdapter := ws.NewWSAdapter(arenaService, logger)

	scheduler := game.NewScheduler(logger)
	movement := game.NewMovementSystem(arenaService, cfg.Mode, cfg.TickInterval(), logger)
	movement.SetReportSink(wsAdapter)

	systems := []game.TickSystem{
		game.NewFoodSpawnSystem(arenaService, cfg.FoodSpawnInterval, logger),
		movement,
		game.NewSnapshotBroadcastSystem(arenaService, wsAdapter, cfg.BroadcastInterval, logger),
		game.NewArenaMetricsSystem(arenaService, scheduler, *metricsInterval, logger),
	}
	if *telemetryEnabled {
		systems = append(systems, game.NewTelemetrySystem(tm, *telemetryInterval))
	}
	for _, system := range systems {
		// Ошибка регистрации - ошибка запуска
		if err := scheduler.Register(system); err != nil {
			logger.Fatalf("[Server] %v", err)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsAdapter.HandleWS)
	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"arena":     arenaService.GetStats(),
			"scheduler": scheduler.GetStats(),
			"ws":        wsAdapter.GetStats(),
		})
	})
	mux.HandleFunc("/debug/telemetry", func(w http.ResponseWriter, r *http.Request) {
		data, err := tm.GetTelemetryJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
	if *staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(*staticDir)))
	}

	httpServer := &http.Server{
		Addr:              *httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	healthServer := grpcadapter.NewHealthServer(healthServiceName, scheduler, time.Second, logger)
	lis, err := net.Listen("tcp", *grpcAddr)
	if err != nil {
		logger.Fatalf("[Server] Ошибка открытия %s: %v", *grpcAddr, err)
	}

	go func() {
		if err := healthServer.Serve(lis); err != nil {
			logger.Printf("[Server] gRPC сервер остановлен с ошибкой: %v", err)
		}
	}()

	go func() {
		logger.Printf("[Server] HTTP на %s (WebSocket /ws)", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("[Server] HTTP сервер: %v", err)
		}
	}()

	if err := scheduler.Start(); err != nil {
		logger.Fatalf("[Server] Ошибка запуска планировщика: %v", err)
	}
	healthServer.Refresh()

	logger.Printf("[Server] Арена запущена: режим %s, активности %v", cfg.Mode, scheduler.Names())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Println("[Server] Остановка...")

	// Сначала прекращаем тики, затем закрываем клиентов
	scheduler.Stop()
	healthServer.Refresh()
	wsAdapter.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("[Server] Ошибка остановки HTTP: %v", err)
	}
	healthServer.Stop()

	logger.Println("[Server] Остановлен")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
