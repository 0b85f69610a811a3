package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	rdb "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/trustgate/internal/auth"
	"github.com/dropDatabas3/trustgate/internal/breaker"
	"github.com/dropDatabas3/trustgate/internal/cache"
	"github.com/dropDatabas3/trustgate/internal/config"
	"github.com/dropDatabas3/trustgate/internal/http/router"
	"github.com/dropDatabas3/trustgate/internal/metrics"
	"github.com/dropDatabas3/trustgate/internal/observability/logger"
	"github.com/dropDatabas3/trustgate/internal/rate"
	"github.com/dropDatabas3/trustgate/internal/security/vault"
	"github.com/dropDatabas3/trustgate/internal/session"
	"github.com/dropDatabas3/trustgate/internal/upstream"
)

func main() {
	var (
		cfgPath = envOr("TRUSTGATE_CONFIG", "configs/config.yaml")
		envFile = ".env"
	)

	root := &cobra.Command{
		Use:   "trustgate",
		Short: "Capa de confianza de sesiones y credenciales",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "ruta a config.yaml (env TRUSTGATE_CONFIG)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "ruta a .env")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servicio HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load(envFile)
			return serve(cfgPath)
		},
	}

	var keyBytes int
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Genera material de claves (master key base64 y API key)",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := make([]byte, vault.KeyLength)
			if _, err := rand.Read(key); err != nil {
				return err
			}
			apiKey, err := vault.GenerateToken(keyBytes)
			if err != nil {
				return err
			}
			fmt.Printf("SESSION_MASTER_KEY=%s\n", base64.StdEncoding.EncodeToString(key))
			fmt.Printf("api_key=%s\n", apiKey)
			return nil
		},
	}
	keygenCmd.Flags().IntVar(&keyBytes, "api-key-bytes", 32, "bytes de entropía para la API key")

	root.AddCommand(serveCmd, keygenCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "trustgate",
	})
	defer func() { _ = logger.Sync() }()
	log := logger.L()

	// Cache compartido
	cacheClient, err := cache.New(cache.Config{
		Driver:   cfg.Cache.Driver,
		Host:     cfg.Cache.Redis.Host,
		Port:     cfg.Cache.Redis.Port,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   cfg.Cache.Redis.Prefix,
	})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer func() { _ = cacheClient.Close() }()

	// Vault de cifrado de tokens
	v, err := buildVault(cfg)
	if err != nil {
		return fmt.Errorf("vault: %w", err)
	}

	// Métricas
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// Breakers, con transiciones reflejadas en métricas
	breakers := breaker.NewRegistry(breaker.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		ResetTimeout:     config.Duration(cfg.Breaker.ResetTimeout, 30*time.Second),
	})
	breakers.OnStateChange = func(name string, from, to breaker.State) {
		log.Warn("circuit state change",
			logger.Circuit(name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
		metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		metrics.BreakerTransitions.WithLabelValues(name, to.String()).Inc()
	}

	// Verificador híbrido de credenciales
	tokenVerifier := auth.NewHMACVerifier([]byte(cfg.Auth.JWTSecret))
	keyCache := auth.NewKeyCache(func(context.Context) ([]string, error) {
		return cfg.Auth.APIKeys, nil
	}, config.Duration(cfg.Auth.KeyCacheTTL, 5*time.Minute))
	verifier := auth.NewVerifier(tokenVerifier, keyCache)

	// Cliente upstream (revocación remota) detrás de breaker
	var revoker session.RemoteRevoker
	if cfg.Upstream.BaseURL != "" {
		revoker = upstream.New(cfg.Upstream.BaseURL, cfg.Upstream.APIKey,
			breakers, config.Duration(cfg.Upstream.Timeout, 5*time.Second))
	}

	// Store + service de sesiones
	store := session.NewStore(cacheClient, v, buildPolicies(cfg))
	svc := session.NewService(store, session.CookieConfig{
		Name:     cfg.Session.Cookie.Name,
		Domain:   cfg.Session.Cookie.Domain,
		Secure:   cfg.Session.Cookie.Secure,
		SameSite: parseSameSite(cfg.Session.Cookie.SameSite),
	}, revoker, breakers)

	// Rate limiting de intentos de autenticación
	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		window := config.Duration(cfg.Rate.Window, time.Minute)
		if rc, ok := cacheClient.(interface{ Underlying() *rdb.Client }); ok {
			limiter = rate.NewRedisLimiter(rc.Underlying(), cfg.Cache.Redis.Prefix+"rl:", cfg.Rate.Limit, window)
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.Limit, window)
		}
	}

	handler := router.New(router.Deps{
		Verifier:    verifier,
		Sessions:    svc,
		Cache:       cacheClient,
		AuthLimiter: limiter,
		Metrics:     reg,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		config.Duration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildVault(cfg *config.Config) (*vault.Vault, error) {
	current, err := base64.StdEncoding.DecodeString(cfg.Crypto.CurrentKey)
	if err != nil {
		return nil, fmt.Errorf("current key no es base64: %w", err)
	}
	vc := vault.Config{
		CurrentKey:     current,
		CurrentVersion: cfg.Crypto.CurrentVersion,
	}
	if cfg.Crypto.PreviousKey != "" {
		prev, err := base64.StdEncoding.DecodeString(cfg.Crypto.PreviousKey)
		if err != nil {
			return nil, fmt.Errorf("previous key no es base64: %w", err)
		}
		vc.PreviousKey = prev
		vc.PreviousVersion = cfg.Crypto.PreviousVersion
	}
	return vault.NewVault(vc)
}

func buildPolicies(cfg *config.Config) session.PolicySet {
	policies := session.DefaultPolicies()
	for name, p := range cfg.Session.Policies {
		t := session.AccountType(name)
		if !t.IsValid() {
			continue
		}
		pol := policies[t]
		if p.TTL != "" {
			pol.TTL = config.Duration(p.TTL, pol.TTL)
		}
		if p.RefreshThreshold != "" {
			pol.RefreshThreshold = config.Duration(p.RefreshThreshold, pol.RefreshThreshold)
		}
		if p.CookiePath != "" {
			pol.CookiePath = p.CookiePath
		}
		policies[t] = pol
	}
	return policies
}

func parseSameSite(s string) http.SameSite {
	switch s {
	case "Strict", "strict":
		return http.SameSiteStrictMode
	case "None", "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
