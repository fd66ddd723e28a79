package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"emberhost.ai/internal/config"
	"emberhost.ai/internal/persistence/indexdb"
	persistlog "emberhost.ai/internal/persistence/log"
	"emberhost.ai/internal/resolve"
	"emberhost.ai/internal/sandbox"
	"emberhost.ai/internal/session"
	"emberhost.ai/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/host.yaml", "host config path")
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read model")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[host] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(*addr) != "" {
		cfg.ListenAddr = *addr
	}
	if strings.TrimSpace(*dataDir) != "" {
		cfg.DataDir = *dataDir
	}
	_ = os.MkdirAll(cfg.DataDir, 0o755)

	// Optional read-model index (never on the session hot path).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "host.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	auditLog := persistlog.NewSessionAuditLogger(cfg.DataDir)
	defer auditLog.Close()
	resolutionLog := persistlog.NewResolutionLogger(cfg.DataDir)
	defer resolutionLog.Close()

	var chain resolve.ChainReader
	if cfg.Chain.RPCEndpoint != "" {
		chain, err = resolve.NewRPCChainReader(resolve.RPCConfig{
			Endpoint:    cfg.Chain.RPCEndpoint,
			HTTPTimeout: time.Duration(cfg.Chain.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			logger.Fatalf("chain reader: %v", err)
		}
	} else {
		logger.Printf("no chain rpc endpoint configured; /v1/resolve disabled")
	}
	fetcher := resolve.NewGatewayFetcher(resolve.FetcherConfig{
		IPFSGateway: cfg.Gateway.IPFSGateway,
		HTTPTimeout: time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second,
		MaxBody:     cfg.Gateway.MaxBodyBytes,
	})

	h := newHost(hostDeps{
		Config:        cfg,
		Chain:         chain,
		Fetcher:       fetcher,
		Preview:       sandbox.New(sandbox.FirePreview{}, logger),
		ResolutionLog: multiResolutionLogger{a: resolutionLog, b: idx},
		Logger:        logger,
	})

	wsSrv := ws.NewServer(h.Directory(), multiAuditLogger{a: auditLog, b: idx}, logger)
	h.Sessions = wsSrv

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/resolve", h.HandleResolve)
	mux.HandleFunc("/v1/preview", h.HandlePreview)
	mux.HandleFunc("/v1/sessions/", h.HandleSessions)
	mux.HandleFunc("/v1/session", wsSrv.Handler())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	if idx != nil {
		idx.Sync()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// multiAuditLogger fans session audit entries out to the JSONL log and the
// sqlite index.
type multiAuditLogger struct {
	a session.AuditLogger
	b session.AuditLogger
}

func (m multiAuditLogger) WriteSessionAudit(e session.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteSessionAudit(e)
	}
	if m.b != nil {
		_ = m.b.WriteSessionAudit(e)
	}
	return nil
}

type resolutionSink interface {
	WriteResolution(e persistlog.ResolutionEntry) error
}

type multiResolutionLogger struct {
	a resolutionSink
	b *indexdb.SQLiteIndex
}

func (m multiResolutionLogger) WriteResolution(e persistlog.ResolutionEntry) error {
	if m.a != nil {
		_ = m.a.WriteResolution(e)
	}
	if m.b != nil {
		_ = m.b.WriteResolution(e)
	}
	return nil
}
