package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"paycore.org/internal/engine"
	"paycore.org/internal/httpapi"
	"paycore.org/internal/obs"
	"paycore.org/internal/store/pg"
	"paycore.org/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// Initialize observability (register metrics, logging, etc.).
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Choose the registry backend: Postgres-restored or fresh in-memory.
	var (
		registry *engine.Registry
		store    *pg.Store
	)
	if dsn := os.Getenv("PAYCORE_PG_DSN"); dsn != "" {
		st, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = st

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		registry, err = store.Load(ctx)
		cancel()
		if err != nil {
			log.Fatalf("load registry: %v", err)
		}
		log.Printf("Restored %d accounts from Postgres", registry.Size())
	} else {
		registry = engine.NewRegistry()
	}
	obs.SetRegistrySize(registry.Size(), registry.LockedCount())

	rp := httpapi.ReadyProbe{}
	if store != nil {
		rp.DB = store.DB()
	}

	evtStream := stream.New()

	// HTTP API setup.
	api := httpapi.New(rp, version, registry, evtStream)

	httpAddr := os.Getenv("PAYCORE_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           api.Handler(), // already wrapped with observability middleware
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting paycore-api %s on %s", version, srv.Addr)

	// Run HTTP server.
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http listen: %v", err)
		}
	}()

	// gRPC health service, for load balancers that probe gRPC.
	grpcAddr := os.Getenv("PAYCORE_GRPC_ADDR")
	if grpcAddr == "" {
		grpcAddr = ":9090"
	}

	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}
	log.Printf("gRPC health listening on %s", grpcAddr)

	go func() {
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcSrv.GracefulStop()
	_ = lis.Close()

	if store != nil {
		if err := store.Save(ctx, registry); err != nil {
			log.Printf("save registry: %v", err)
		}
		_ = store.Close()
	}
	log.Println("Stopped")
}
