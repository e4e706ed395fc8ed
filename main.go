package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"wallo/pkg/config"
	"wallo/pkg/extract"
	"wallo/pkg/llm"
	_ "wallo/pkg/llm/autoload" // 自動註冊 LLM Providers
	"wallo/pkg/monitor"
	"wallo/pkg/prompt"
	"wallo/pkg/rag"
	"wallo/pkg/server"
	"wallo/pkg/speech"
	"wallo/pkg/tools"
	"wallo/pkg/worker"
)

const defaultGatewayPort = 9453

func main() {
	// 啟動監控環境
	monitor.Startup()

	log.Println("==========================================")

	// --- 0. 讀取設定檔 ---
	cfg, sysCfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v\n", err)
	}
	monitor.SetupSlog(sysCfg.LogLevel)

	// --- 1. LLM 設定 ---
	client, err := llm.NewFromConfig(cfg.LLM, sysCfg)
	if err != nil {
		log.Fatalf("❌ Failed to init LLM client: %v\n", err)
	}

	// --- 1a. 會話歷史管理 ---
	sessions := llm.NewSessionManager(filepath.Join(".wallo", "sessions"))

	// --- 2. 工具註冊 ---
	registry := tools.NewToolRegistry()
	registry.Register(tools.NewWebSearchTool())

	// --- 3. 文件抽取與檢索 ---
	extractor := extract.NewExtractor()

	var retriever worker.Retriever
	if cfg.RAG.RedisAddr != "" {
		if r := buildRetriever(cfg, extractor); r != nil {
			retriever = r
		}
	}

	// --- 4. 語音服務 ---
	var transcriber worker.Transcriber
	var synthesizer worker.Synthesizer
	if svc := cfg.GetServiceByName("openai"); svc != nil {
		sp, err := speech.NewService(svc.API, svc.URL)
		if err != nil {
			log.Printf("⚠️ Speech service disabled: %v\n", err)
		} else {
			transcriber = sp
			synthesizer = sp
		}
	}

	// --- 5. Dispatcher 與 Gateway ---
	port := cfg.Server.Port
	if port == 0 {
		port = defaultGatewayPort
	}

	var gw *server.Gateway
	dispatcher := worker.NewDispatcher(worker.Options{
		Client:       client,
		Sessions:     sessions,
		Registry:     registry,
		Retriever:    retriever,
		Extractor:    extractor,
		Transcriber:  transcriber,
		Synthesizer:  synthesizer,
		SystemPrompt: cfg.SystemPrompt,
		PromptFooter: cfg.PromptFooter,
		SysCfg:       *sysCfg,
		Emit: func(out worker.Outcome) {
			gw.Deliver(out)
		},
	})
	gw = server.NewGateway(port, dispatcher, prompt.NewLibrary(cfg.Prompts), cfg.Header, cfg.Footer)
	if err := gw.Start(); err != nil {
		log.Fatalf("❌ Failed to start gateway: %v\n", err)
	}

	// --- 6. 設定檔熱重載(只重載日誌等級等系統參數)---
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	reloadCh := config.WatchSystemConfig(watchCtx, "system.json")
	go func() {
		for range reloadCh {
			newSys := config.LoadSystemConfig("system.json")
			monitor.SetupSlog(newSys.LogLevel)
			log.Println("🔄 System config reloaded")
		}
	}()

	// 監聽系統信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("\nReceived shutdown signal. Stopping services...")

	gw.Stop()
	dispatcher.Wait()
	log.Println("Bye!")
}

// buildRetriever 組裝檢索端;任何一環缺失都只停用檢索而不中止啟動
func buildRetriever(cfg *config.Config, extractor *extract.Extractor) *rag.Indexer {
	svc := cfg.GetServiceByName(cfg.RAG.EmbeddingService)
	if svc == nil {
		log.Printf("⚠️ Embedding service %q not configured, retrieval disabled\n", cfg.RAG.EmbeddingService)
		return nil
	}

	model := cfg.RAG.EmbeddingModel
	if model == "" {
		model = "text-embedding-3-small"
	}

	embedder, err := rag.NewOpenAIEmbedder(svc.API, svc.URL, model)
	if err != nil {
		log.Printf("⚠️ Embedder init failed, retrieval disabled: %v\n", err)
		return nil
	}

	store := rag.NewRedisStore(cfg.RAG.RedisAddr)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		log.Printf("⚠️ Redis unreachable at %s, retrieval disabled: %v\n", cfg.RAG.RedisAddr, err)
		return nil
	}

	slog.Info("Retrieval index ready", "redis", cfg.RAG.RedisAddr, "model", model)
	return rag.NewIndexer(embedder, store, extractor)
}
