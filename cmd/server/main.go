package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/nauthd/nauth/auth"
	"github.com/nauthd/nauth/idp"
	"github.com/nauthd/nauth/internal/config"
	"github.com/nauthd/nauth/internal/tokencrypt"
	"github.com/nauthd/nauth/pendinglogin"
	"github.com/nauthd/nauth/pendinglogin/redisstore"
	"github.com/nauthd/nauth/server"
	"github.com/nauthd/nauth/sessions/gormrepo"
	"github.com/nauthd/nauth/token"
	"github.com/nauthd/nauth/token/keys"
	"github.com/nauthd/nauth/token/refresh"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/chacha20poly1305"
)

func main() {
	for {
		if err := run(); err != nil {
			stdlog.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	stdlog.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			stdlog.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	configureLogging(c)
	displayAppname(c.GetAppName())

	handler, err := buildServer(c)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildServer(c config.Config) (http.Handler, error) {
	ctx := context.Background()

	key := c.GetTokenCryptKey()
	if key == nil {
		if c.GetEnv() != "DEV" {
			return nil, errors.New("TOKEN_CRYPT_KEY must be set outside DEV")
		}
		// Ephemeral key: stored sessions become unreadable on restart
		key = make([]byte, chacha20poly1305.KeySize)
		rand.Read(key)
		log.Warn().Msg("TOKEN_CRYPT_KEY not set, using an ephemeral key")
	}
	cipher, err := tokencrypt.New(key)
	if err != nil {
		return nil, fmt.Errorf("tokencrypt.New: %w", err)
	}

	sessionRepo, err := gormrepo.New(c.GetDBPath())
	if err != nil {
		return nil, fmt.Errorf("gormrepo.New: %w", err)
	}

	var pendingLogins pendinglogin.Store
	if addr := c.GetRedisAddr(); addr != "" {
		pendingLogins = redisstore.New(redis.NewClient(&redis.Options{Addr: addr}), c.GetPendingLoginTTL())
		log.Info().Str("addr", addr).Msg("pending logins backed by redis")
	} else {
		pendingLogins = pendinglogin.NewInMemoryStore(c.GetPendingLoginTTL())
	}

	provider, err := idp.New(ctx, c, c.GetBackendURI()+server.RouteToken)
	if err != nil {
		return nil, fmt.Errorf("idp.New: %w", err)
	}

	validator := token.NewValidator(keys.NewResolver(c.GetJWKSURL(), c.GetExternalCallTimeout()), c)
	refresher := refresh.NewCoordinator(sessionRepo, cipher, provider.OAuth(), c.GetExternalCallTimeout())

	registry, err := auth.NewRegistry(sessionRepo, c)
	if err != nil {
		return nil, fmt.Errorf("auth.NewRegistry: %w", err)
	}

	authService, err := auth.NewService(auth.Repos{
		Sessions:      sessionRepo,
		PendingLogins: pendingLogins,
	}, registry, refresher, cipher)
	if err != nil {
		return nil, fmt.Errorf("auth.NewService: %w", err)
	}

	// nil flow-state repo: server.New falls back to its in-memory default
	return server.New(c, authService, validator, provider, nil)
}

func configureLogging(c config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if c.GetEnv() == "DEV" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func listenAndServe(server *http.Server) error {
	stdlog.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
