package main

import (
	"log"
	"net/http"
	"os"

	"examconsole/internal/app"
	"examconsole/internal/app/observability"
	"examconsole/internal/contentapi"
)

func main() {
	cfg := app.LoadConfig()
	logger := log.New(os.Stdout, "", 0)
	collector := observability.NewCollector(logger)

	client, err := contentapi.New(contentapi.Config{
		BaseURL:   cfg.ContentAPIURL,
		Token:     cfg.ContentAPIToken,
		Timeout:   cfg.ContentAPITimeout,
		Transport: collector.Transport(nil),
		Logger:    logger,
	})
	if err != nil {
		log.Printf("content api config error: %v", err)
		os.Exit(1)
	}

	sessions := app.NewSessions(cfg, client, logger)
	r := app.NewRouter(cfg, sessions, collector)

	log.Printf("examconsole web listening on %s (content api %s, collapse policy %s)", cfg.HTTPAddr, cfg.ContentAPIURL, cfg.CollapsePolicy)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
