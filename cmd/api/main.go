package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/config"
	"github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/handler"
	companionHandler "github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/handler/companion"
	relayHandler "github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/handler/relay"
	"github.com/Wint-hazel/Purify-our-mind-sub000/backend/internal/service/companion"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Voice relay entry point. The route is always mounted; a missing
	// credential is reported per request instead of failing silently.
	if !cfg.Realtime.Enabled() {
		log.Println("警告: OPENAI_API_KEY 未配置，语音通话请求将被显式拒绝")
	}
	relayH := relayHandler.New(cfg.Realtime)

	// Companion text chat relay.
	var companionH *companionHandler.Handler
	if cfg.Companion.Enabled() {
		chatModel, err := cfg.Companion.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize companion chat model: %v", err)
			log.Println("continuing without companion chat - 请检查 Ark 模型相关环境变量")
		} else {
			companionSvc, err := companion.NewService(ctx, chatModel, companion.Config{
				SystemPrompt:   cfg.Companion.SystemPrompt,
				StreamResponse: cfg.Companion.StreamResponse,
			})
			if err != nil {
				log.Printf("warning: failed to initialize companion service: %v", err)
			} else {
				companionH = companionHandler.New(companionSvc)
				log.Println("Companion chat service initialized successfully")
			}
		}
	} else {
		log.Println("Ark 凭证未配置，跳过文字陪伴功能初始化")
	}

	router := handler.NewRouter(relayH, companionH)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Purify Our Mind backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
