package ratelimit

import (
	"testing"
	"time"
)

// newTestController injeta um sleep que só grava a duração, sem dormir.
func newTestController(page, video time.Duration) (*Controller, *[]time.Duration) {
	c := New(page, video)
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, &slept
}

func TestWaitUsesBaseDelayPerKind(t *testing.T) {
	c, slept := newTestController(100*time.Millisecond, 1*time.Second)

	c.Wait(KindPage)
	c.Wait(KindVideo)

	if len(*slept) != 2 {
		t.Fatalf("esperava 2 sleeps, veio %d", len(*slept))
	}
	// jitter adiciona de 0 a 30%
	if d := (*slept)[0]; d < 100*time.Millisecond || d > 130*time.Millisecond {
		t.Errorf("espera de página fora da faixa [100ms, 130ms]: %v", d)
	}
	if d := (*slept)[1]; d < 1*time.Second || d > 1300*time.Millisecond {
		t.Errorf("espera de vídeo fora da faixa [1s, 1.3s]: %v", d)
	}
}

func TestPenalizeDoublesAndCaps(t *testing.T) {
	c, _ := newTestController(time.Millisecond, time.Millisecond)

	c.Penalize()
	if f := c.Factor(); f != 2.0 {
		t.Errorf("fator após 1 penalidade = %v, esperado 2.0", f)
	}
	c.Penalize()
	c.Penalize()
	if f := c.Factor(); f != 8.0 {
		t.Errorf("fator após 3 penalidades = %v, esperado 8.0 (teto)", f)
	}
	c.Penalize()
	if f := c.Factor(); f != 8.0 {
		t.Errorf("fator não pode passar do teto, veio %v", f)
	}
}

func TestPenalizedWaitIsLonger(t *testing.T) {
	c, slept := newTestController(100*time.Millisecond, time.Second)

	c.Penalize()
	c.Wait(KindPage)

	if d := (*slept)[0]; d < 200*time.Millisecond {
		t.Errorf("espera penalizada deveria ser pelo menos 2x a base, veio %v", d)
	}
}

func TestFactorResetsAfterCleanWaits(t *testing.T) {
	c, _ := newTestController(time.Millisecond, time.Millisecond)

	c.Penalize()
	for i := 0; i < resetAfter; i++ {
		c.Wait(KindPage)
	}
	if f := c.Factor(); f != 1.0 {
		t.Errorf("fator deveria resetar após %d esperas limpas, veio %v", resetAfter, f)
	}
}

func TestPenaltyInterruptsCleanStreak(t *testing.T) {
	c, _ := newTestController(time.Millisecond, time.Millisecond)

	c.Penalize()
	c.Wait(KindPage)
	c.Wait(KindPage)
	c.Penalize() // zera a contagem de esperas limpas
	for i := 0; i < resetAfter-1; i++ {
		c.Wait(KindPage)
	}
	if f := c.Factor(); f == 1.0 {
		t.Error("fator não deveria resetar: a sequência limpa foi interrompida")
	}
}
