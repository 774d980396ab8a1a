package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/percodb/percodb/internal/config"
	"github.com/percodb/percodb/internal/percolator"
	"github.com/percodb/percodb/internal/server"
	"github.com/percodb/percodb/pkg"
)

func logLevelFromString(s string) pkg.LogLevel {
	switch s {
	case "none":
		return pkg.LogLevelNone
	case "error":
		return pkg.LogLevelErrOnly
	case "debug":
		return pkg.LogLevelDebug
	default:
		return pkg.LogLevelInfo
	}
}

func main() {
	config_path := flag.String("config", "percodb.yml", "path to the config file")
	port := flag.Int("port", 0, "listening port (overrides config)")
	log_level := flag.String("log", "", "log level: none, error, info, debug (overrides config)")

	flag.Parse()

	cfg, err := config.Load(*config_path)
	if err != nil {
		pkg.FatalLog(err)
	}

	if *port > 0 {
		cfg.Port = *port
	}
	if *log_level != "" {
		cfg.LogLevel = *log_level
	}
	pkg.SetLogLevel(logLevelFromString(cfg.LogLevel))

	engine, err := percolator.New(cfg)
	if err != nil {
		pkg.FatalLog(err)
	}

	s := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      server.New(engine).Handler(),
		ReadTimeout:  0,
		WriteTimeout: 0,
	}

	exit := make(chan os.Signal, 2)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	go func() {
		pkg.InfoLog("listening on port", cfg.Port)
		err := s.ListenAndServe()
		if err != http.ErrServerClosed {
			pkg.FatalLog(err)
		}
	}()

	<-exit
	pkg.InfoLog("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		pkg.ErrorLog("server shutdown:", err)
	}
	if err := engine.Close(); err != nil {
		pkg.ErrorLog("engine shutdown:", err)
	}
}
