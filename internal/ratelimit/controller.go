// Package ratelimit implementa o controle de ritmo compartilhado entre a
// enumeração da coleção e a extração de vídeos. Todo o tráfego passa por
// aqui para o padrão parecer uma navegação humana e não um bot.
package ratelimit

import (
	"math/rand"
	"sync"
	"time"
)

// Kind distingue a espera entre páginas (curta) da espera entre vídeos (longa).
type Kind int

const (
	KindPage Kind = iota
	KindVideo
)

const (
	maxFactor  = 8.0
	resetAfter = 5 // esperas limpas até voltar ao ritmo base
)

// Controller guarda o estado mutável de backoff. É o único recurso
// compartilhado entre componentes além da sessão do navegador.
type Controller struct {
	mu         sync.Mutex
	pageDelay  time.Duration
	videoDelay time.Duration
	factor     float64
	clean      int
	rng        *rand.Rand

	// sleep é injetável para os testes não dormirem de verdade.
	sleep func(time.Duration)
}

// New cria um Controller com os delays base configurados.
func New(pageDelay, videoDelay time.Duration) *Controller {
	return &Controller{
		pageDelay:  pageDelay,
		videoDelay: videoDelay,
		factor:     1.0,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:      time.Sleep,
	}
}

// Wait bloqueia o chamador pelo delay base vezes o fator de backoff atual,
// mais um jitter de até 30%. Esperas limpas suficientes zeram o backoff.
func (c *Controller) Wait(k Kind) {
	c.mu.Lock()
	base := c.pageDelay
	if k == KindVideo {
		base = c.videoDelay
	}
	d := time.Duration(float64(base) * c.factor)
	d += time.Duration(c.rng.Float64() * 0.3 * float64(d))

	if c.factor > 1.0 {
		c.clean++
		if c.clean >= resetAfter {
			c.factor = 1.0
			c.clean = 0
		}
	}
	sleep := c.sleep
	c.mu.Unlock()

	sleep(d)
}

// Penalize dobra o fator de backoff (teto maxFactor). Chamado quando algum
// componente detecta sinal de risk-control.
func (c *Controller) Penalize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factor *= 2
	if c.factor > maxFactor {
		c.factor = maxFactor
	}
	c.clean = 0
}

// Factor expõe o multiplicador atual (para log e teste).
func (c *Controller) Factor() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.factor
}
