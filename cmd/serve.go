// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/cip/pkg/cip"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Stay connected and expose Prometheus metrics and a JSON state endpoint",
	Long: `serve connects to the processor and stays connected (with normal
auto-reconnect) for as long as the process runs, exposing:

  GET /metrics  Prometheus text exposition
  GET /state    {"state": "...", "registered": bool, "last_error": "..."}

Intended for the watch demo and for operators who want to scrape a
long-lived client's health without writing their own harness.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", ":8080", "HTTP listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := baseConfig()
	cfg.Metrics = cip.NewMetrics()

	client := cip.NewClient(cfg)
	client.Connect(true)
	defer client.Close()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/state", stateHandler(client))

	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", serveListen)
	return http.ListenAndServe(serveListen, r)
}

type stateResponse struct {
	State      string `json:"state"`
	Registered bool   `json:"registered"`
	LastError  string `json:"last_error,omitempty"`
}

func stateHandler(client *cip.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		resp := stateResponse{
			State:      client.ConnectionState().String(),
			Registered: client.Registered(),
		}
		if err := client.LastError(); err != nil {
			resp.LastError = err.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
