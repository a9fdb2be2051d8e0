package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/Mutu-s/BaseFair-Miniapp/internal/cache"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/chain"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/config"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/flipmatch"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/notify"
	"github.com/Mutu-s/BaseFair-Miniapp/internal/watch"
)

const shutdownTimeout = 5 * time.Second

// openBridge connects to redis and forwards notifications from other
// processes into bus. The returned func stops forwarding and closes the
// client.
func openBridge(ctx context.Context, url string, bus *notify.Bus, l log.Logger) (*notify.RedisBridge, func(), error) {
	rdb, err := cache.ConnectRedis(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	bridge := notify.NewRedisBridge(rdb, l)

	fwdCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := bridge.Forward(fwdCtx, bus); err != nil && fwdCtx.Err() == nil {
			l.Error("Redis forwarding stopped", "err", err)
		}
	}()
	return bridge, func() {
		cancel()
		<-done
		if err := rdb.Close(); err != nil {
			l.Warn("Closing redis client failed", "err", err)
		}
	}, nil
}

func Main(cliCtx *cli.Context) error {
	cfg, err := config.Load(cliCtx.String(ConfigFlag.Name))
	if err != nil {
		return err
	}
	if cliCtx.IsSet(ListenFlag.Name) {
		cfg.Watch.Listen = cliCtx.String(ListenFlag.Name)
	}
	if cliCtx.IsSet(IntervalFlag.Name) {
		cfg.Watch.Interval = cliCtx.Duration(IntervalFlag.Name)
	}
	l := cfg.SetupLogger()

	ctx, stop := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nets, err := cfg.Networks()
	if err != nil {
		return err
	}
	abis, err := chain.LoadABIs(nil)
	if err != nil {
		return err
	}
	conn := &flipmatch.AdapterConnector{Adapter: chain.NewAdapter(nets, abis, nil, l), ChainID: cfg.ChainID}

	store, err := cfg.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	rc := cache.NewReconciler(store, l)

	bus := notify.NewBus(l)
	defer bus.Close()
	pubs := notify.Fanout{bus}
	if cfg.Redis.URL != "" {
		bridge, closeBridge, err := openBridge(ctx, cfg.Redis.URL, bus, l)
		if err != nil {
			return err
		}
		defer closeBridge()
		pubs = append(pubs, bridge)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", notify.NewHub(bus, l))
	mux.HandleFunc("/last-created", func(w http.ResponseWriter, r *http.Request) {
		rec, ok, err := store.LastCreated(r.Context(), cfg.ChainID)
		switch {
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		case !ok:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(rec)
		}
	})
	srv := &http.Server{Addr: cfg.Watch.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		l.Info("Serving notifications", "addr", cfg.Watch.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Notification server failed", "err", err)
			stop()
		}
	}()

	policy := cfg.DiscoveryPolicy()
	svc := flipmatch.New(conn, flipmatch.Options{Cache: rc, Policy: &policy, Logger: l})
	w := watch.New(watch.Config{
		ChainID:        cfg.ChainID,
		Interval:       cfg.Watch.Interval,
		FromBlock:      cliCtx.Uint64(FromBlockFlag.Name),
		ReadsPerSecond: cfg.Discovery.RequestsPerSecond,
	}, watch.FromConnector(conn), svc, rc, pubs, l)
	runErr := w.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("Notification server shutdown failed", "err", err)
	}
	return runErr
}
