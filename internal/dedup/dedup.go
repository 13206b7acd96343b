// Package dedup marca vídeos já entregues num Redis compartilhado, para
// execuções paralelas (ou re-execuções com checkpoint apagado) não
// reprocessarem o mesmo vídeo.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "mixcrawl:delivered:"

// Marker registra entregas confirmadas com TTL.
type Marker struct {
	client *redis.Client
	ttl    time.Duration
	log    *log.Logger
}

// New conecta no Redis e valida com um ping.
func New(addr, password string, db int, ttl time.Duration, logger *log.Logger) (*Marker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("erro conectando ao Redis: %w", err)
	}

	logger.Infof("🔗 marcador de entrega conectado: %s (TTL %s)", addr, ttl)
	return &Marker{client: client, ttl: ttl, log: logger}, nil
}

// Delivered informa se o vídeo já foi entregue dentro do TTL. Erro de
// Redis vira "não entregue": na dúvida, reprocessa.
func (m *Marker) Delivered(ctx context.Context, videoID string) bool {
	n, err := m.client.Exists(ctx, keyPrefix+videoID).Result()
	if err != nil {
		m.log.Warnf("erro consultando marcador de %s: %v", videoID, err)
		return false
	}
	return n > 0
}

// Mark registra a entrega. Falha aqui não derruba a execução, só custa um
// reprocessamento futuro.
func (m *Marker) Mark(ctx context.Context, videoID string) {
	if err := m.client.Set(ctx, keyPrefix+videoID, time.Now().UTC().Format(time.RFC3339), m.ttl).Err(); err != nil {
		m.log.Warnf("erro marcando entrega de %s: %v", videoID, err)
	}
}

// Close fecha a conexão.
func (m *Marker) Close() error {
	return m.client.Close()
}
