package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"

	"mixcrawl/internal/douyin"
	"mixcrawl/internal/ratelimit"
	"mixcrawl/internal/riskcontrol"
	"mixcrawl/internal/session"
)

const (
	navigateTimeout = 30 * time.Second
	drainTimeout    = 2 * time.Second
	quietLimit      = 10 // rodadas de scroll sem vídeo novo até assumir fim de lista
	maxAttempts     = 3
	riskWait        = 5 * time.Minute
)

// Enumerator pagina a coleção até o fim. Restartável: uma nova chamada
// recomeça do topo e o dedupe absorve as páginas repetidas.
type Enumerator struct {
	session *session.Session
	rate    *ratelimit.Controller
	risk    *riskcontrol.Detector
	log     *log.Logger
}

// NewEnumerator liga o enumerador aos colaboradores compartilhados.
func NewEnumerator(s *session.Session, rate *ratelimit.Controller, risk *riskcontrol.Detector, logger *log.Logger) *Enumerator {
	return &Enumerator{session: s, rate: rate, risk: risk, log: logger}
}

// Enumerate rola a página da coleção interceptando as páginas da API até
// has_more=0 ou até a lista parar de crescer. Erros transitórios são
// retentados com backoff; credencial expirada sobe na hora.
func (e *Enumerator) Enumerate(ctx context.Context, collectionID string) (*Manifest, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		m, err := e.enumerateOnce(ctx, collectionID)
		if err == nil {
			return m, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, douyin.ErrAuthExpired) {
			return nil, err
		}
		lastErr = err
		e.log.Warnf("tentativa %d/%d falhou: %v", attempt, maxAttempts, err)
		e.rate.Penalize()
		e.rate.Wait(ratelimit.KindPage)
	}
	return nil, fmt.Errorf("enumeração esgotou as tentativas: %w", lastErr)
}

func (e *Enumerator) enumerateOnce(ctx context.Context, collectionID string) (*Manifest, error) {
	page, err := e.session.NewPage()
	if err != nil {
		return nil, err
	}
	defer page.Close()

	router := page.HijackRequests()
	defer router.Stop()

	events := make(chan *douyin.MixAwemeResponse, 16)
	authErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	// Cliente HTTP com timeout para o LoadResponse não travar as rotinas
	// do router para sempre.
	httpClient := &http.Client{Timeout: 30 * time.Second}

	router.MustAdd("*/aweme/v1/web/mix/aweme/*", func(hctx *rod.Hijack) {
		if err := hctx.LoadResponse(httpClient, true); err != nil {
			return
		}
		var resp douyin.MixAwemeResponse
		if err := json.Unmarshal(hctx.Response.Payload().Body, &resp); err != nil {
			// Resposta que não parseia é ignorada, não é erro.
			return
		}
		if resp.StatusCode == douyin.StatusAuthExpired {
			select {
			case authErr <- douyin.ErrAuthExpired:
			default:
			}
			return
		}
		select {
		case events <- &resp:
		case <-done:
		}
	})
	go router.Run()

	e.log.Infof("abrindo coleção %s", collectionID)
	if err := page.Timeout(navigateTimeout).Navigate(douyin.CollectionURL(collectionID)); err != nil {
		return nil, fmt.Errorf("erro navegando para a coleção: %w", err)
	}
	page.Timeout(15 * time.Second).WaitLoad()
	time.Sleep(2 * time.Second)

	if e.risk.Present(page) {
		if err := e.waitRiskCleared(page); err != nil {
			return nil, err
		}
	}

	b := newBuilder()
	quiet := 0

	for !b.done && quiet < quietLimit {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		e.rate.Wait(ratelimit.KindPage)
		page.Eval(`() => { window.scrollBy(0, 800) }`)

		added, err := e.drain(b, events, authErr)
		if err != nil {
			return nil, err
		}
		if added > 0 {
			quiet = 0
			e.log.Debugf("📊 %d vídeos enumerados", len(b.videos))
		} else {
			quiet++
			// Silêncio prolongado pode ser risk-control e não fim de lista.
			if quiet == quietLimit/2 && e.risk.Present(page) {
				if err := e.waitRiskCleared(page); err != nil {
					return nil, err
				}
				quiet = 0
			}
		}
	}

	if len(b.videos) == 0 {
		return nil, fmt.Errorf("nenhum vídeo interceptado para a coleção %s", collectionID)
	}

	e.log.Infof("✅ coleção completa: %d vídeos", len(b.videos))
	return &Manifest{CollectionID: collectionID, Videos: b.videos}, nil
}

// drain consome todos os pacotes já capturados, com uma espera curta pelo
// primeiro (a resposta do scroll demora um pouco a chegar).
func (e *Enumerator) drain(b *builder, events <-chan *douyin.MixAwemeResponse, authErr <-chan error) (int, error) {
	added := 0
	timeout := time.After(drainTimeout)
	for {
		select {
		case resp := <-events:
			added += b.addPage(resp)
			if b.done {
				return added, nil
			}
		case err := <-authErr:
			return added, err
		case <-timeout:
			return added, nil
		}
	}
}

// waitRiskCleared pausa a enumeração até o humano resolver a verificação
// na tela (ou até estourar a janela).
func (e *Enumerator) waitRiskCleared(page *rod.Page) error {
	e.rate.Penalize()
	e.log.Warn("🛑 risk-control na página da coleção! Resolva a verificação no navegador...")

	deadline := time.Now().Add(riskWait)
	for time.Now().Before(deadline) {
		time.Sleep(3 * time.Second)
		if !e.risk.Present(page) {
			e.log.Info("✅ verificação resolvida, retomando")
			page.Timeout(10 * time.Second).WaitLoad()
			time.Sleep(2 * time.Second)
			return nil
		}
	}
	return fmt.Errorf("risk-control não resolvido em %s", riskWait)
}
