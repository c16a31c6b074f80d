package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"thermosync/internal/handlers"
	"thermosync/internal/logger"
	"thermosync/internal/metrics"
	"thermosync/internal/ojcloud"
	"thermosync/internal/registry"
	"thermosync/internal/repository"
	"thermosync/internal/repository/db"
	"thermosync/internal/server"
	"thermosync/internal/service"
	"thermosync/internal/timecodec"
)

const syncerStopGrace = 5 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	log := logger.Get(viper.GetString("log.level"))

	conn, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(conn)
	reg := registry.New()
	m := metrics.New(prometheus.DefaultRegisterer)
	client := ojcloud.NewClient(cloudConfig(), log)
	codec := timecodec.Codec{Correction: viper.GetDuration("cloud.end_time_correction")}
	services := service.NewService(repos, reg, client, codec, m, log, serviceConfig())
	apiHandler := handlers.NewHandler(services, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// start the cloud poll loop
	syncerDone := make(chan struct{})
	go func() {
		defer close(syncerDone)
		services.Syncer.Run(ctx)
	}()

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	waitForShutdown(cancel, srv, syncerDone, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return viper.ReadInConfig()
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "thermosync.db")
		dbPath = "thermosync.db"
	}
	return db.InitDB(dbPath)
}

func cloudConfig() ojcloud.Config {
	return ojcloud.Config{
		BaseURL:    viper.GetString("cloud.base_url"),
		APIKey:     viper.GetString("cloud.api_key"),
		Username:   viper.GetString("cloud.username"),
		Password:   viper.GetString("cloud.password"),
		CustomerID: viper.GetInt("cloud.customer_id"),
		Timeout:    viper.GetDuration("cloud.timeout"),
	}
}

func serviceConfig() service.Config {
	return service.Config{
		PollInterval:     viper.GetDuration("poll.interval"),
		OfflineThreshold: viper.GetInt("poll.offline_threshold"),
		JWTSigningKey:    viper.GetString("jwt.signing_key"),
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
// The poll loop gets a bounded grace period so an in-flight cloud cycle can finish.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, syncerDone <-chan struct{}, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")

	// stop background goroutines
	cancel()

	select {
	case <-syncerDone:
	case <-time.After(syncerStopGrace):
		log.Errorw("poll loop did not stop within grace period")
	}

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
