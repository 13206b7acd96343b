package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/log"
	"github.com/jessevdk/go-flags"

	"mixcrawl/internal/checkpoint"
	"mixcrawl/internal/config"
	"mixcrawl/internal/dedup"
	"mixcrawl/internal/douyin"
	"mixcrawl/internal/engine"
	"mixcrawl/internal/manifest"
	"mixcrawl/internal/pipeline"
	"mixcrawl/internal/ratelimit"
	"mixcrawl/internal/resolver"
	"mixcrawl/internal/riskcontrol"
	"mixcrawl/internal/session"
	"mixcrawl/internal/sink"
)

type cliOptions struct {
	MixID       string  `long:"mix-id" short:"m" required:"true" description:"ID da coleção, link curto ou URL completa"`
	Start       int     `long:"start" description:"índice inicial da faixa (1-based)"`
	End         int     `long:"end" description:"índice final da faixa (inclusivo)"`
	MaxComments int     `long:"max-comments" description:"teto de comentários por vídeo (sobrescreve o config)"`
	NoComments  bool    `long:"no-comments" description:"só metadados, pula a coleta de comentários"`
	Sleep       float64 `long:"sleep" description:"pausa base entre vídeos, em segundos (sobrescreve o config)"`
	Out         string  `long:"out" short:"o" description:"diretório de saída (sobrescreve o config)"`
	Headless    bool    `long:"headless" description:"roda sem janela (exige cookies válidos)"`
	LoginWait   int     `long:"login-wait" description:"espera máxima do login por QR code, em segundos"`
	SinkName    string  `long:"sink" default:"csv" choice:"csv" choice:"nats" description:"destino dos resultados"`
}

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Prefix:          "mixcrawl",
	})

	var opts cliOptions
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("❌ %v", err)
	}
	applyFlags(cfg, &opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warnf("🛑 sinal %s recebido, encerrando com segurança...", sig)
		cancel()
	}()

	if err := run(ctx, cfg, &opts, logger); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			logger.Warn("execução interrompida; o checkpoint permite retomar de onde parou")
			os.Exit(130)
		case errors.Is(err, douyin.ErrAuthExpired):
			logger.Error("🔑 credenciais expiraram no meio da execução")
			logger.Error("atualize os cookies no config (ou faça login de novo) e rode outra vez: a retomada continua do checkpoint")
			os.Exit(4)
		case errors.Is(err, resolver.ErrInvalidIdentifier), errors.Is(err, resolver.ErrRedirectFailure):
			logger.Errorf("❌ %v", err)
			os.Exit(2)
		case errors.Is(err, session.ErrSessionUnavailable):
			logger.Errorf("❌ %v", err)
			os.Exit(3)
		default:
			logger.Errorf("❌ %v", err)
			os.Exit(1)
		}
	}
}

func applyFlags(cfg *config.Config, opts *cliOptions) {
	if opts.MaxComments > 0 {
		cfg.Crawl.MaxComments = opts.MaxComments
	}
	if opts.Sleep > 0 {
		cfg.Crawl.SleepSeconds = opts.Sleep
	}
	if opts.Out != "" {
		cfg.Crawl.OutputDir = opts.Out
	}
	if opts.Headless {
		cfg.Crawl.Headless = true
	}
	if opts.LoginWait > 0 {
		cfg.Crawl.LoginWaitSeconds = opts.LoginWait
	}
}

func run(ctx context.Context, cfg *config.Config, opts *cliOptions, logger *log.Logger) error {
	// 1. Resolve o identificador antes de subir qualquer coisa pesada.
	res := resolver.New(logger.WithPrefix("resolver"))
	col, err := res.Resolve(opts.MixID)
	if err != nil {
		return err
	}
	logger.Infof("🎯 coleção alvo: %s", col.CollectionID)

	// 2. Sessão de navegador autenticada.
	sess, err := session.Acquire(session.Options{
		Headless:  cfg.Crawl.Headless,
		StateDir:  cfg.Crawl.StateDir,
		LoginWait: time.Duration(cfg.Crawl.LoginWaitSeconds) * time.Second,
		Cookies:   config.ParseCookieString(cfg.Cookies),
	}, logger.WithPrefix("session"))
	if err != nil {
		return err
	}
	defer sess.Close()

	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	sp.Suffix = " verificando login..."
	sp.Start()
	err = sess.EnsureLogin()
	sp.Stop()
	if err != nil {
		return err
	}

	// 3. Colaboradores compartilhados.
	rate := ratelimit.New(
		time.Duration(cfg.Crawl.PageDelayMS)*time.Millisecond,
		time.Duration(cfg.Crawl.SleepSeconds*float64(time.Second)),
	)
	risk := riskcontrol.New(cfg.RiskControl.Selectors, cfg.RiskControl.URLPatterns, cfg.RiskControl.TextMarkers)

	store, err := checkpoint.Open(cfg.Checkpoint.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	var out sink.Sink
	switch opts.SinkName {
	case "nats":
		out, err = sink.NewNATS(cfg.Nats.URL, cfg.Nats.Stream, cfg.Nats.Subject, logger.WithPrefix("sink"))
	default:
		out, err = sink.NewCSV(cfg.Crawl.OutputDir, col.CollectionID, logger.WithPrefix("sink"))
	}
	if err != nil {
		return err
	}
	defer out.Close()

	var marker engine.DeliveryMarker
	if cfg.Redis.Enabled {
		m, err := dedup.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLHours)*time.Hour, logger.WithPrefix("dedup"))
		if err != nil {
			// Redis fora do ar não impede a coleta, só perde o pulo de repetidos.
			logger.Warnf("marcador de entrega indisponível: %v", err)
		} else {
			defer m.Close()
			marker = m
		}
	}

	enum := manifest.NewEnumerator(sess, rate, risk, logger.WithPrefix("manifest"))
	extr := pipeline.New(sess, rate, risk, pipeline.Options{
		MaxComments:   cfg.Crawl.MaxComments,
		FetchComments: !opts.NoComments,
	}, logger.WithPrefix("pipeline"))

	eng := engine.New(enum, extr, out, store, rate, marker, logger.WithPrefix("engine"))

	// 4. Roda.
	sum, err := eng.Run(ctx, col.CollectionID, engine.Options{RangeStart: opts.Start, RangeEnd: opts.End})
	printSummary(logger, sum, cfg, opts)
	return err
}

func printSummary(logger *log.Logger, sum *engine.Summary, cfg *config.Config, opts *cliOptions) {
	if sum == nil {
		return
	}
	fmt.Println()
	fmt.Println("══════════════════════════════════════")
	fmt.Printf("  Execução:    %s\n", sum.RunID)
	fmt.Printf("  Coleção:     %s\n", sum.CollectionID)
	fmt.Printf("  Vídeos:      %d na faixa\n", sum.Total)
	fmt.Printf("  Sucesso:     %d\n", sum.Succeeded)
	fmt.Printf("  Falhas:      %d\n", sum.Failed)
	fmt.Printf("  Pulados:     %d\n", sum.Skipped)
	fmt.Printf("  Comentários: %d\n", sum.Comments)
	if opts.SinkName == "csv" {
		fmt.Printf("  Saída:       %s\n", cfg.Crawl.OutputDir)
	}
	fmt.Println("══════════════════════════════════════")
	for _, f := range sum.Failures {
		logger.Warnf("  falha [%03d] %s: %s", f.Index, f.VideoID, f.Reason)
	}
}
