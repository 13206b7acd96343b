package sink

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"mixcrawl/internal/pipeline"
)

// NATSSink publica cada resultado como uma mensagem JSON num stream
// JetStream com armazenamento em arquivo. O PubAck do JetStream é a
// confirmação de durabilidade que o contrato do Sink exige.
type NATSSink struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	log     *log.Logger
}

// NewNATS conecta, garante o stream e retorna o sink.
func NewNATS(url, stream, subject string, logger *log.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("erro conectando ao NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("erro obtendo contexto JetStream: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     stream,
		Subjects: []string{subject + ".>", subject},
		Storage:  nats.FileStorage,
	})
	// Ok se o stream já existe.
	if err != nil && !strings.Contains(err.Error(), "already in use") {
		nc.Close()
		return nil, fmt.Errorf("erro criando stream %s: %w", stream, err)
	}

	logger.Infof("📨 sink NATS pronto: stream=%s subject=%s", stream, subject)
	return &NATSSink{nc: nc, js: js, subject: subject, log: logger}, nil
}

// Accept publica o resultado e espera o ack do JetStream.
func (s *NATSSink) Accept(res *pipeline.ExtractionResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("erro serializando resultado: %w", err)
	}

	subj := fmt.Sprintf("%s.%s", s.subject, res.Video.VideoID)
	ack, err := s.js.Publish(subj, payload)
	if err != nil {
		return fmt.Errorf("erro publicando %s: %w", res.Video.VideoID, err)
	}

	s.log.Debugf("📨 %s publicado (seq %d)", res.Video.VideoID, ack.Sequence)
	return nil
}

// Close drena a conexão para não perder publicações em trânsito.
func (s *NATSSink) Close() error {
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return err
	}
	return nil
}
