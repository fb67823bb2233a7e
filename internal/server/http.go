package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"douyin-image-miner/config"
)

// NewHTTPServer allows long write timeouts: POST /v1/products/resolve waits
// on Douyin before it answers.
func NewHTTPServer(cfg *config.Config, mux *chi.Mux) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Douyin.HTTPTimeout*3 + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
