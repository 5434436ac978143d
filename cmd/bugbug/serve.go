package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/bugbug-client/pkg/logging"
	"github.com/Sternrassler/bugbug-client/pkg/metrics"
	"github.com/Sternrassler/bugbug-client/pkg/schedules"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second

	// statusClientClosedRequest is logged when the caller went away mid-poll.
	statusClientClosedRequest = 499

	// allowedMethods is the Allow header of the schedules endpoint.
	allowedMethods = "GET, DELETE"
)

// scheduleFetcher is implemented by *schedules.Fetcher.
type scheduleFetcher interface {
	Fetch(ctx context.Context, branch, revision string) (*schedules.Result, error)
	Forget(ctx context.Context, branch, revision string) error
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve push schedules through a memoizing HTTP proxy",
		Long:  "Serve GET /push/{branch}/{revision}/schedules from the memo, polling bugbug on a miss. DELETE on the same path drops the memoized result. Also exposes /health and /metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.wire(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			addr := a.cfg.Listen
			if listen != "" {
				addr = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := logging.NewLogger("bugbug-serve")
			return serve(ctx, addr, newServeMux(a.fetcher, logger), logger)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides the listen setting)")

	return cmd
}

func serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Starting bugbug proxy server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down bugbug proxy server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newServeMux(fetcher scheduleFetcher, logger zerolog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/push/", schedulesHandler(fetcher, logger))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// parseSchedulesPath splits /push/{branch}/{revision}/schedules. Branches
// may contain slashes (integration/autoland), revisions may not.
func parseSchedulesPath(path string) (schedules.Query, bool) {
	rest, ok := strings.CutPrefix(path, "/push/")
	if !ok {
		return schedules.Query{}, false
	}
	rest, ok = strings.CutSuffix(rest, "/schedules")
	if !ok {
		return schedules.Query{}, false
	}
	i := strings.LastIndex(rest, "/")
	if i <= 0 || i == len(rest)-1 {
		return schedules.Query{}, false
	}
	return schedules.Query{Branch: rest[:i], Revision: rest[i+1:]}, true
}

func schedulesHandler(fetcher scheduleFetcher, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodDelete {
			w.Header().Set("Allow", allowedMethods)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q, ok := parseSchedulesPath(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}

		if r.Method == http.MethodDelete {
			forget(w, r, fetcher, q, logger)
			return
		}

		res, err := fetcher.Fetch(r.Context(), q.Branch, q.Revision)
		if err != nil {
			status := errorStatus(err)
			logger.Warn().
				Err(err).
				Str("branch", q.Branch).
				Str("revision", q.Revision).
				Int("status", status).
				Msg("Schedules request failed")
			http.Error(w, err.Error(), status)
			return
		}

		data, err := json.Marshal(res)
		if err != nil {
			http.Error(w, fmt.Sprintf("encode result: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			logger.Debug().Err(err).Msg("Failed to write response")
		}
	}
}

// forget drops the memoized result of q. Deleting an absent entry succeeds.
func forget(w http.ResponseWriter, r *http.Request, fetcher scheduleFetcher, q schedules.Query, logger zerolog.Logger) {
	if err := fetcher.Forget(r.Context(), q.Branch, q.Revision); err != nil {
		logger.Warn().
			Err(err).
			Str("branch", q.Branch).
			Str("revision", q.Revision).
			Msg("Failed to forget schedules")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	logger.Info().Str("branch", q.Branch).Str("revision", q.Revision).Msg("Schedules forgotten")
	w.WriteHeader(http.StatusNoContent)
}

// errorStatus maps fetch errors to proxy responses.
func errorStatus(err error) int {
	var statusErr *schedules.StatusError
	switch {
	case errors.Is(err, schedules.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
