// Package pipeline extrai um vídeo por vez: navega até a página, intercepta
// as respostas da API de detalhe e de comentários e pagina os dois níveis
// da árvore até esgotar ou bater no teto. É uma máquina de estados
// explícita; a resposta interceptada chega como mensagem no canal que o
// estado corrente está esperando.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"

	"mixcrawl/internal/douyin"
	"mixcrawl/internal/manifest"
	"mixcrawl/internal/ratelimit"
	"mixcrawl/internal/riskcontrol"
	"mixcrawl/internal/session"
)

// State é o estado corrente da extração de um vídeo.
type State int

const (
	StateNavigating State = iota
	StateListening
	StateMetadataCaptured
	StateCommentsL1Paging
	StateCommentsL2Paging
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNavigating:
		return "Navigating"
	case StateListening:
		return "Listening"
	case StateMetadataCaptured:
		return "MetadataCaptured"
	case StateCommentsL1Paging:
		return "CommentsL1Paging"
	case StateCommentsL2Paging:
		return "CommentsL2Paging"
	case StateComplete:
		return "Complete"
	default:
		return "Failed"
	}
}

// FailReason classifica por que um vídeo falhou. A falha é por vídeo, não
// derruba a execução.
type FailReason string

const (
	FailTimeout      FailReason = "timeout"
	FailRiskControl  FailReason = "risk_control"
	FailVideoMissing FailReason = "video_missing"
	FailNetwork      FailReason = "network"
)

// Failure é o erro retornado quando a extração de um vídeo termina em
// StateFailed.
type Failure struct {
	Reason FailReason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("extração falhou (%s): %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("extração falhou (%s)", f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

type eventKind int

const (
	eventDetail eventKind = iota
	eventComments
	eventReplies
)

// event é uma resposta interceptada já parseada, entregue ao estado que a
// estiver esperando.
type event struct {
	kind     eventKind
	detail   *douyin.AwemeDetailResponse
	comments *douyin.CommentListResponse
}

const (
	navigateTimeout = 20 * time.Second
	metadataWait    = 15 * time.Second
	drainWait       = 1500 * time.Millisecond
	quietLimit      = 8 // rodadas sem comentário novo até assumir fim
	watchdogLimit   = 8 * time.Minute
)

// Options configura o pipeline.
type Options struct {
	MaxComments   int
	FetchComments bool
	RiskWait      time.Duration // janela de intervenção humana no risk-control
}

// Pipeline compartilha sessão, ritmo e detector com o resto do engine.
type Pipeline struct {
	session *session.Session
	rate    *ratelimit.Controller
	risk    *riskcontrol.Detector
	opts    Options
	log     *log.Logger
}

// New monta o pipeline.
func New(s *session.Session, rate *ratelimit.Controller, risk *riskcontrol.Detector, opts Options, logger *log.Logger) *Pipeline {
	if opts.MaxComments <= 0 {
		opts.MaxComments = 2000
	}
	if opts.RiskWait <= 0 {
		opts.RiskWait = 5 * time.Minute
	}
	return &Pipeline{session: s, rate: rate, risk: risk, opts: opts, log: logger}
}

// Extract roda a máquina de estados para um vídeo e devolve o resultado
// montado, ou *Failure quando o vídeo termina em StateFailed.
func (p *Pipeline) Extract(ctx context.Context, ref manifest.VideoRef) (*ExtractionResult, error) {
	page, err := p.session.NewPage()
	if err != nil {
		return nil, &Failure{Reason: FailNetwork, Err: err}
	}
	defer page.Close()

	// Watchdog: teto estrito por vídeo. Se estourar, derruba a aba e o
	// estado corrente falha com erro de navegação.
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-watchdogDone:
		case <-time.After(watchdogLimit):
			p.log.Errorf("🚨 watchdog: %s estourou %s, fechando a aba", ref.VideoID, watchdogLimit)
			page.Close()
		}
	}()

	events := make(chan event, 64)
	done := make(chan struct{})
	defer close(done)

	router := page.HijackRequests()
	defer router.Stop()

	httpClient := &http.Client{Timeout: 30 * time.Second}

	router.MustAdd("*/aweme/v1/web/*", func(hctx *rod.Hijack) {
		urlPath := hctx.Request.URL().Path
		kind := douyin.MatchPath(urlPath)
		if err := hctx.LoadResponse(httpClient, true); err != nil {
			return
		}
		if kind == "" || kind == douyin.PathMixAweme {
			return // resposta que não interessa aqui: segue o jogo
		}
		body := hctx.Response.Payload().Body

		var ev event
		switch kind {
		case douyin.PathAwemeDetail:
			var resp douyin.AwemeDetailResponse
			if json.Unmarshal(body, &resp) != nil || resp.AwemeDetail == nil {
				return
			}
			ev = event{kind: eventDetail, detail: &resp}
		case douyin.PathCommentReply:
			var resp douyin.CommentListResponse
			if json.Unmarshal(body, &resp) != nil {
				return
			}
			ev = event{kind: eventReplies, comments: &resp}
		case douyin.PathCommentList:
			var resp douyin.CommentListResponse
			if json.Unmarshal(body, &resp) != nil {
				return
			}
			ev = event{kind: eventComments, comments: &resp}
		}

		select {
		case events <- ev:
		case <-done:
		}
	})
	go router.Run()

	// --- Navigating ---
	state := StateNavigating
	p.log.Debugf("[%03d] %s → %s", ref.Index, state, douyin.VideoURL(ref.VideoID))
	if err := page.Timeout(navigateTimeout).Navigate(douyin.VideoURL(ref.VideoID)); err != nil {
		return nil, &Failure{Reason: FailNetwork, Err: err}
	}
	page.Timeout(10 * time.Second).WaitLoad()
	time.Sleep(2 * time.Second)

	if p.risk.Present(page) {
		if !p.waitRiskCleared(page) {
			return nil, &Failure{Reason: FailRiskControl}
		}
	}
	if p.risk.VideoMissing(page) {
		// Um refresh resolve os falsos "não existe" de carregamento lento.
		page.Reload()
		page.Timeout(10 * time.Second).WaitLoad()
		time.Sleep(3 * time.Second)
		if p.risk.VideoMissing(page) {
			return nil, &Failure{Reason: FailVideoMissing}
		}
	}

	// --- Listening: espera a resposta de detalhe ou estoura o timeout ---
	state = StateListening
	p.log.Debugf("[%03d] %s", ref.Index, state)
	col := newCollector(p.opts.MaxComments)
	record, err := p.awaitMetadata(ctx, page, ref, events, col)
	if err != nil {
		return nil, err
	}
	state = StateMetadataCaptured
	p.log.Debugf("[%03d] %s: %q (%d comentários anunciados)", ref.Index, state, truncate(record.Title, 40), record.CommentCount)

	if p.opts.FetchComments && record.CommentCount > 0 {
		// --- CommentsL1Paging ---
		state = StateCommentsL1Paging
		p.log.Debugf("[%03d] %s", ref.Index, state)
		if err := p.pageComments(ctx, page, col, events, scrollComments); err != nil {
			return nil, err
		}

		// --- CommentsL2Paging ---
		if col.pendingReplies() > 0 && !col.full() {
			state = StateCommentsL2Paging
			p.log.Debugf("[%03d] %s: faltam ~%d respostas", ref.Index, state, col.pendingReplies())
			if err := p.pageComments(ctx, page, col, events, expandReplies); err != nil {
				return nil, err
			}
		}
	}

	// --- Complete ---
	state = StateComplete
	l1, l2 := col.counts()
	p.log.Infof("[%03d] ✅ %s: %d comentários (L1:%d L2:%d)", ref.Index, state, len(col.comments), l1, l2)

	return &ExtractionResult{Index: ref.Index, Video: record, Comments: col.comments}, nil
}

// awaitMetadata é o ponto de suspensão do estado Listening: ou chega a
// resposta de detalhe, ou o timeout transiciona para Failed. Comentários
// que chegarem antes do detalhe não se perdem, vão direto para o coletor.
func (p *Pipeline) awaitMetadata(ctx context.Context, page *rod.Page, ref manifest.VideoRef, events <-chan event, col *collector) (VideoRecord, error) {
	deadline := time.After(metadataWait)
	for {
		select {
		case <-ctx.Done():
			return VideoRecord{}, ctx.Err()
		case ev := <-events:
			switch ev.kind {
			case eventDetail:
				if err := douyin.Err(ev.detail.StatusCode, ev.detail.StatusMsg); err != nil {
					return VideoRecord{}, p.wireError(err)
				}
				return recordFromAweme(ev.detail.AwemeDetail), nil
			case eventComments:
				col.addCommentPage(ev.comments)
			case eventReplies:
				col.addReplyPage(ev.comments)
			}
		case <-deadline:
			if p.risk.Present(page) {
				p.rate.Penalize()
				return VideoRecord{}, &Failure{Reason: FailRiskControl}
			}
			return VideoRecord{}, &Failure{Reason: FailTimeout, Err: fmt.Errorf("sem resposta de detalhe em %s", metadataWait)}
		}
	}
}

// pageComments dirige uma fase de paginação: dispara a ação na página
// (scroll ou expandir respostas), drena os pacotes interceptados e para no
// teto, no fim do cursor ou depois de rodadas demais sem novidade.
func (p *Pipeline) pageComments(ctx context.Context, page *rod.Page, col *collector, events <-chan event, action func(*rod.Page)) error {
	quiet := 0
	exhausted := false

	for !col.full() && quiet < quietLimit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.rate.Wait(ratelimit.KindPage)
		action(page)

		added, sawEnd, err := p.drainComments(col, events)
		if err != nil {
			return err
		}
		if sawEnd {
			exhausted = true
		}
		if added > 0 {
			quiet = 0
		} else {
			quiet++
			if exhausted {
				// Cursor esgotado e nada novo chegando: terminou mesmo.
				return nil
			}
			if quiet == quietLimit/2 && p.risk.Present(page) {
				p.rate.Penalize()
				if !p.waitRiskCleared(page) {
					return &Failure{Reason: FailRiskControl}
				}
				quiet = 0
			}
		}
	}
	return nil
}

// drainComments consome os pacotes pendentes. Retorna também se algum
// pacote sinalizou has_more=0 (fim do cursor).
func (p *Pipeline) drainComments(col *collector, events <-chan event) (added int, sawEnd bool, err error) {
	timeout := time.After(drainWait)
	for {
		select {
		case ev := <-events:
			switch ev.kind {
			case eventComments:
				if werr := douyin.Err(ev.comments.StatusCode, ev.comments.StatusMsg); werr != nil {
					return added, sawEnd, p.wireError(werr)
				}
				added += col.addCommentPage(ev.comments)
				if ev.comments.HasMore == 0 {
					sawEnd = true
				}
			case eventReplies:
				added += col.addReplyPage(ev.comments)
			case eventDetail:
				// Detalhe repetido depois de capturado: ignora.
			}
		case <-timeout:
			return added, sawEnd, nil
		}
	}
}

// wireError traduz erro de status da API em falha do vídeo; credencial
// expirada passa direto, porque é fatal para a execução toda.
func (p *Pipeline) wireError(err error) error {
	if err == douyin.ErrAuthExpired {
		return err
	}
	if err == douyin.ErrRateLimited {
		p.rate.Penalize()
	}
	return &Failure{Reason: FailNetwork, Err: err}
}

// waitRiskCleared segura o pipeline até o humano resolver a verificação.
// Retorna false se a janela estourar.
func (p *Pipeline) waitRiskCleared(page *rod.Page) bool {
	p.rate.Penalize()
	p.log.Warn("🛑 risk-control detectado! Resolva a verificação no navegador...")

	deadline := time.Now().Add(p.opts.RiskWait)
	for time.Now().Before(deadline) {
		time.Sleep(3 * time.Second)
		if !p.risk.Present(page) {
			p.log.Info("✅ verificação resolvida")
			page.Timeout(10 * time.Second).WaitLoad()
			time.Sleep(2 * time.Second)
			return true
		}
	}
	return false
}

// scrollComments rola a área de comentários para a página pedir a próxima
// leva ao cursor.
func scrollComments(page *rod.Page) {
	page.Eval(`() => {
		const panel = document.querySelector('[data-e2e="comment-list"], div[class*="comment-mainContent"]');
		if (panel) { panel.scrollTop += 800; }
		else { window.scrollBy(0, 600); }
	}`)
}

// expandReplies clica nos botões de expandir respostas visíveis, o que
// dispara as chamadas do endpoint de reply.
func expandReplies(page *rod.Page) {
	btns, err := page.Timeout(2 * time.Second).ElementsX(`//span[contains(text(), "展开") or contains(text(), "查看")]`)
	if err != nil {
		return
	}
	for i, btn := range btns {
		if i >= 5 {
			break
		}
		btn.Eval("() => this.click()")
		time.Sleep(300 * time.Millisecond)
	}
	// Depois de expandir, rola um pouco para revelar mais botões.
	page.Eval(`() => { window.scrollBy(0, 400) }`)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
