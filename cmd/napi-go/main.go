// Command napi-go runs the IPAM HTTP control plane: it loads settings,
// wires the KV store backend and domain services, and serves the HTTP
// surface of spec.md §6 until an interrupt triggers a graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TritonDataCenter/napi-go/internal/domain/aggregation"
	"github.com/TritonDataCenter/napi-go/internal/domain/changefeed"
	"github.com/TritonDataCenter/napi-go/internal/domain/ipalloc"
	"github.com/TritonDataCenter/napi-go/internal/domain/network"
	"github.com/TritonDataCenter/napi-go/internal/domain/networkpool"
	"github.com/TritonDataCenter/napi-go/internal/domain/nic"
	"github.com/TritonDataCenter/napi-go/internal/domain/nictag"
	"github.com/TritonDataCenter/napi-go/internal/domain/overlay"
	nerrors "github.com/TritonDataCenter/napi-go/internal/errors"
	"github.com/TritonDataCenter/napi-go/internal/httpapi"
	"github.com/TritonDataCenter/napi-go/internal/logging"
	"github.com/TritonDataCenter/napi-go/internal/settings"
	"github.com/TritonDataCenter/napi-go/internal/store"
	"github.com/TritonDataCenter/napi-go/internal/store/memstore"
	"github.com/TritonDataCenter/napi-go/internal/store/mongostore"
)

// localOUI is the MAC OUI prefix used when minting addresses for NICs
// that omit one (spec.md §4.7).
var localOUI = [3]byte{0x90, 0xb8, 0xd0}

func main() {
	cfg, err := settings.Load()
	if err != nil {
		logging.Error("failed to load settings", "err", err)
		os.Exit(1)
	}
	logging.Configure(cfg.JSONLogging, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logging.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	svc, err := wireServices(ctx, st, cfg)
	if err != nil {
		logging.Error("failed to initialize services", "err", err)
		os.Exit(1)
	}

	router := httpapi.NewRouter(svc)
	server := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
	}

	go func() {
		logging.Info("listening", "addr", cfg.HTTPListenAddr)
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logging.Error("server exited", "err", serveErr)
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error("graceful shutdown failed", "err", err)
	}
	logging.Sync()
}

// openStore selects the memstore or mongostore backend based on
// whether MONGO_URI is configured.
func openStore(ctx context.Context, cfg settings.Settings) (store.Store, func(), error) {
	if cfg.MongoURI == "" {
		logging.Info("using in-memory store backend")
		return memstore.New(), func() {}, nil
	}
	logging.Info("using mongo store backend", "db", cfg.MongoDB)
	ms, err := mongostore.Connect(ctx,
		mongostore.WithURI(cfg.MongoURI),
		mongostore.WithDatabase(cfg.MongoDB),
		mongostore.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, nil, err
	}
	return ms, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := ms.Close(closeCtx); closeErr != nil {
			logging.Warn("error closing mongo store", "err", closeErr)
		}
	}, nil
}

// wireServices constructs every domain service, resolving the cross-package
// narrow-lookup adapters (network<->networkpool via a struct adapter,
// network<->nic via a function adapter) without introducing an import
// cycle between the packages.
func wireServices(ctx context.Context, st store.Store, cfg settings.Settings) (httpapi.Services, error) {
	pub := changefeed.NopPublisher{}
	ovl := overlay.NopPublisher{}

	tags := nictag.New(st, pub)
	if err := tags.Init(ctx); err != nil {
		return httpapi.Services{}, err
	}

	ipAlloc := ipalloc.New(st, cfg.AllocRetryBound)

	nets := network.New(st, ipAlloc, tags, pub, cfg.ULAFabrics)
	poolLookup := network.PoolLookupAdapter{Service: nets}
	pools := networkpool.New(st, poolLookup, pub)

	nicNetworkLookup := nic.NetworkLookupFunc(func(ctx context.Context, networkUUID string) (nic.NetworkInfo, *nerrors.Error) {
		n, err := nets.GetUnfiltered(ctx, networkUUID)
		if err != nil {
			return nic.NetworkInfo{}, err
		}
		return nic.NetworkInfo{
			UUID:             n.UUID,
			Family:           n.Family,
			NICTag:           n.NICTag,
			Fabric:           n.Fabric,
			VNetID:           n.VNetID,
			Subnet:           n.Subnet,
			ProvisionStartIP: n.ProvisionStartIP,
			ProvisionEndIP:   n.ProvisionEndIP,
			OwnerUUIDs:       n.OwnerUUIDs,
		}, nil
	})

	nics := nic.New(st, ipAlloc, nicNetworkLookup, ovl, pub, cfg.UnderlayNICTag, localOUI)
	aggs := aggregation.New(st, nics, pub)

	if err := nets.Init(ctx); err != nil {
		return httpapi.Services{}, err
	}
	if err := pools.Init(ctx); err != nil {
		return httpapi.Services{}, err
	}
	if err := nics.Init(ctx); err != nil {
		return httpapi.Services{}, err
	}
	if err := aggs.Init(ctx); err != nil {
		return httpapi.Services{}, err
	}

	return httpapi.Services{
		NICTags:      tags,
		Networks:     nets,
		NetworkPools: pools,
		NICs:         nics,
		IPAlloc:      ipAlloc,
		Aggregations: aggs,
		AdminUUID:    cfg.AdminOwnerUUID,
		Config:       httpapi.Config{FabricsEnabled: cfg.FabricsEnabled},
	}, nil
}
