// Package engine orquestra uma execução completa: enumera a coleção,
// decide a faixa, extrai vídeo a vídeo, entrega ao sink e só então avança
// o checkpoint. Os colaboradores entram por interface para o fluxo poder
// ser testado com dublês.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"mixcrawl/internal/checkpoint"
	"mixcrawl/internal/douyin"
	"mixcrawl/internal/manifest"
	"mixcrawl/internal/pipeline"
	"mixcrawl/internal/ratelimit"
)

// Enumerator produz o manifest da coleção.
type Enumerator interface {
	Enumerate(ctx context.Context, collectionID string) (*manifest.Manifest, error)
}

// Extractor extrai um vídeo.
type Extractor interface {
	Extract(ctx context.Context, ref manifest.VideoRef) (*pipeline.ExtractionResult, error)
}

// Sink recebe resultados; nil de Accept significa entrega durável.
type Sink interface {
	Accept(res *pipeline.ExtractionResult) error
}

// CheckpointStore persiste progresso e falhas.
type CheckpointStore interface {
	Load(collectionID string) (*checkpoint.Checkpoint, error)
	Save(cp checkpoint.Checkpoint) error
	Advance(collectionID string, index int) error
	RecordFailure(f checkpoint.VideoFailure) error
}

// RateController dita o ritmo entre vídeos.
type RateController interface {
	Wait(k ratelimit.Kind)
	Penalize()
}

// DeliveryMarker é o marcador compartilhado de vídeos já entregues.
// Opcional: nil desliga a checagem.
type DeliveryMarker interface {
	Delivered(ctx context.Context, videoID string) bool
	Mark(ctx context.Context, videoID string)
}

// Options fixa a faixa pedida na linha de comando (0 = não pedido).
type Options struct {
	RangeStart int
	RangeEnd   int
}

// Summary é o balanço final da execução.
type Summary struct {
	RunID        string
	CollectionID string
	Total        int
	Succeeded    int
	Failed       int
	Skipped      int
	Comments     int
	Failures     []checkpoint.VideoFailure
}

// Engine amarra os colaboradores de uma execução.
type Engine struct {
	enum   Enumerator
	extr   Extractor
	sink   Sink
	store  CheckpointStore
	rate   RateController
	marker DeliveryMarker
	log    *log.Logger
}

// New monta o engine. marker pode ser nil.
func New(enum Enumerator, extr Extractor, sink Sink, store CheckpointStore, rate RateController, marker DeliveryMarker, logger *log.Logger) *Engine {
	return &Engine{enum: enum, extr: extr, sink: sink, store: store, rate: rate, marker: marker, log: logger}
}

// Run executa a coleção inteira (ou a faixa pedida) e retorna o balanço.
// Erro de credencial expirada e erro de sink abortam sem avançar o
// checkpoint; falha de vídeo é registrada e a execução segue.
func (e *Engine) Run(ctx context.Context, collectionID string, opts Options) (*Summary, error) {
	sum := &Summary{RunID: uuid.NewString(), CollectionID: collectionID}
	e.log.Infof("🚀 execução %s iniciada para a coleção %s", sum.RunID, collectionID)

	man, err := e.enum.Enumerate(ctx, collectionID)
	if err != nil {
		return sum, fmt.Errorf("enumeração falhou: %w", err)
	}

	cp, err := e.store.Load(collectionID)
	if err != nil {
		return sum, err
	}
	r := checkpoint.SelectRange(man.Size(), cp, opts.RangeStart, opts.RangeEnd)
	if r.Empty() {
		e.log.Info("✅ nada a fazer: faixa vazia (tudo já concluído?)")
		return sum, nil
	}
	sum.Total = r.Len()
	e.log.Infof("📋 %d vídeos na coleção, processando faixa [%d..%d]", man.Size(), r.Start, r.End)

	if err := e.store.Save(checkpoint.Checkpoint{
		CollectionID:       collectionID,
		LastCompletedIndex: r.Start - 1,
		RangeStart:         r.Start,
		RangeEnd:           r.End,
	}); err != nil {
		return sum, err
	}

	for idx := r.Start; idx <= r.End; idx++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		ref := man.Videos[idx-1]

		if e.marker != nil && e.marker.Delivered(ctx, ref.VideoID) {
			e.log.Infof("[%03d] ⏭️  %s já entregue, pulando", idx, ref.VideoID)
			sum.Skipped++
			if err := e.store.Advance(collectionID, idx); err != nil {
				return sum, err
			}
			continue
		}

		e.rate.Wait(ratelimit.KindVideo)

		res, err := e.extr.Extract(ctx, ref)
		if err != nil {
			if errors.Is(err, douyin.ErrAuthExpired) {
				// Fatal: sem credencial não adianta insistir. O checkpoint
				// fica onde está para a retomada após novo login.
				return sum, err
			}
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			var fail *pipeline.Failure
			reason := "error"
			if errors.As(err, &fail) {
				reason = string(fail.Reason)
				if fail.Reason == pipeline.FailRiskControl {
					e.rate.Penalize()
				}
			}
			e.log.Warnf("[%03d] ❌ %s falhou (%s): %v", idx, ref.VideoID, reason, err)
			vf := checkpoint.VideoFailure{
				CollectionID: collectionID,
				Index:        idx,
				VideoID:      ref.VideoID,
				Reason:       reason,
				Detail:       err.Error(),
			}
			if err := e.store.RecordFailure(vf); err != nil {
				return sum, err
			}
			sum.Failed++
			sum.Failures = append(sum.Failures, vf)
			// Falha é terminal para o vídeo: avança para não reprocessar
			// na retomada.
			if err := e.store.Advance(collectionID, idx); err != nil {
				return sum, err
			}
			continue
		}

		if err := e.sink.Accept(res); err != nil {
			// Sink fora do ar é fatal e o checkpoint NÃO avança: a
			// retomada reprocessa este vídeo.
			return sum, fmt.Errorf("sink recusou o vídeo %s: %w", ref.VideoID, err)
		}
		if e.marker != nil {
			e.marker.Mark(ctx, ref.VideoID)
		}
		if err := e.store.Advance(collectionID, idx); err != nil {
			return sum, err
		}
		sum.Succeeded++
		sum.Comments += len(res.Comments)
	}

	e.log.Infof("🏁 execução %s concluída: %d ok, %d falhas, %d pulados, %d comentários",
		sum.RunID, sum.Succeeded, sum.Failed, sum.Skipped, sum.Comments)
	return sum, nil
}
