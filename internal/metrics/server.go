package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Mohsinsiddi/w3raffle/internal/chain"
	"github.com/Mohsinsiddi/w3raffle/internal/raffle"
)

// StatusFunc reads the current raffle state for /status.
type StatusFunc func(ctx context.Context) (*raffle.Snapshot, error)

type statusResponse struct {
	Address         string `json:"address"`
	State           string `json:"state"`
	EntranceFee     string `json:"entranceFee"`
	PrizePool       string `json:"prizePool"`
	PrizePoolETH    string `json:"prizePoolEth"`
	Players         uint64 `json:"players"`
	RecentWinner    string `json:"recentWinner"`
	Interval        uint64 `json:"interval"`
	LatestTimestamp uint64 `json:"latestTimestamp"`
}

// NewRouter mounts /healthz, /metrics and, when status is non-nil, /status.
func NewRouter(m *Metrics, status StatusFunc, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	if status != nil {
		r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
			snap, err := status(req.Context())
			if err != nil {
				logger.Warn("status read failed", "error", err)
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
				return
			}
			m.ObserveSnapshot(snap)
			writeJSON(w, http.StatusOK, statusResponse{
				Address:         snap.Address.Hex(),
				State:           snap.State.String(),
				EntranceFee:     snap.EntranceFee.String(),
				PrizePool:       snap.PrizePool.String(),
				PrizePoolETH:    chain.WeiToETH(snap.PrizePool),
				Players:         snap.NumPlayers,
				RecentWinner:    snap.RecentWinner.Hex(),
				Interval:        snap.Interval,
				LatestTimestamp: snap.LatestTimestamp,
			})
		})
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve runs handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
