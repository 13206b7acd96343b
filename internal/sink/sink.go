// Package sink entrega resultados de extração a um destino durável. O
// contrato é: Accept só retorna nil depois do resultado estar seguro no
// destino; o checkpoint avança em cima dessa garantia.
package sink

import "mixcrawl/internal/pipeline"

// Sink recebe um resultado completo por vídeo.
type Sink interface {
	// Accept persiste o resultado. Retornar nil significa "entregue e
	// durável" — erro aborta a execução sem avançar o checkpoint.
	Accept(res *pipeline.ExtractionResult) error
	// Close libera os recursos do destino.
	Close() error
}
