package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aprs-friend-alert/internal/bootstrap"
	"aprs-friend-alert/internal/config"
	"aprs-friend-alert/internal/pkg/logger"
	"aprs-friend-alert/internal/server"
	"aprs-friend-alert/internal/tracer"
)

const moduleName = "MAIN"

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	sysLogger := logger.NewZapLogger(logger.Options{
		FilePath:     cfg.Logging.FilePath,
		ConsoleLevel: cfg.Logging.ConsoleLevel,
		FileLevel:    cfg.Logging.FileLevel,
		Production:   cfg.IsProduction(),
	})
	defer sysLogger.Sync()

	if err := cfg.Validate(); err != nil {
		sysLogger.Error(moduleName, "Configuration is not usable", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	// 2. Tracer
	shutdownTracer := tracer.InitTracer(cfg.Infra, sysLogger)
	defer shutdownTracer(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, cfg, sysLogger)
	if err != nil {
		sysLogger.Error(moduleName, "Failed to start", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	// 4. Status server
	srv := server.New(cfg, container, sysLogger)
	go func() {
		if err := srv.Run(); err != nil {
			sysLogger.Error(moduleName, "Status server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	// 5. Chat loop until a signal arrives
	sysLogger.Info(moduleName, "Bot is running", map[string]interface{}{"username": container.Bot.Username()})
	container.Run(ctx)

	sysLogger.Info(moduleName, "Shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sysLogger.Warn(moduleName, "Status server did not stop cleanly", map[string]interface{}{"error": err.Error()})
	}
	container.Close()
}
