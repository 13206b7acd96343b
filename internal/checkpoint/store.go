// Package checkpoint persiste o progresso de uma execução por coleção em
// SQLite, para a retomada recomeçar do primeiro vídeo não concluído em vez
// de refazer tudo.
package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Checkpoint é o progresso durável de uma coleção. LastCompletedIndex
// avança só depois do sink confirmar a entrega do vídeo.
type Checkpoint struct {
	CollectionID       string
	LastCompletedIndex int
	RangeStart         int
	RangeEnd           int
	UpdatedAt          time.Time
}

// VideoFailure registra um vídeo que falhou e foi pulado, para auditoria e
// reprocessamento manual.
type VideoFailure struct {
	CollectionID string
	Index        int
	VideoID      string
	Reason       string
	Detail       string
	At           time.Time
}

// Store encapsula o banco de checkpoints.
type Store struct {
	db *sql.DB
}

// Migrations nomeadas, executadas em ordem na abertura.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "create_checkpoints",
		sql: `CREATE TABLE IF NOT EXISTS checkpoints (
			collection_id        TEXT PRIMARY KEY,
			last_completed_index INTEGER NOT NULL,
			range_start          INTEGER NOT NULL,
			range_end            INTEGER NOT NULL,
			updated_at           TIMESTAMP NOT NULL
		)`,
	},
	{
		name: "create_video_failures",
		sql: `CREATE TABLE IF NOT EXISTS video_failures (
			collection_id TEXT NOT NULL,
			idx           INTEGER NOT NULL,
			video_id      TEXT NOT NULL,
			reason        TEXT NOT NULL,
			detail        TEXT NOT NULL DEFAULT '',
			failed_at     TIMESTAMP NOT NULL,
			PRIMARY KEY (collection_id, idx)
		)`,
	},
}

// Open abre (ou cria) o banco no caminho dado e aplica as migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("erro abrindo banco de checkpoints: %w", err)
	}
	// SQLite não gosta de escritores concorrentes no mesmo arquivo.
	db.SetMaxOpenConns(1)

	for _, m := range migrations {
		if _, err := db.Exec(m.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration %s falhou: %w", m.name, err)
		}
	}
	return &Store{db: db}, nil
}

// Load retorna o checkpoint da coleção, ou nil se nunca houve execução.
func (s *Store) Load(collectionID string) (*Checkpoint, error) {
	row := s.db.QueryRow(
		`SELECT last_completed_index, range_start, range_end, updated_at
		 FROM checkpoints WHERE collection_id = ?`, collectionID)

	cp := Checkpoint{CollectionID: collectionID}
	err := row.Scan(&cp.LastCompletedIndex, &cp.RangeStart, &cp.RangeEnd, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("erro lendo checkpoint: %w", err)
	}
	return &cp, nil
}

// Save grava (upsert) o checkpoint inteiro. Usado no início da execução
// para fixar a faixa escolhida.
func (s *Store) Save(cp Checkpoint) error {
	_, err := s.db.Exec(
		`INSERT INTO checkpoints (collection_id, last_completed_index, range_start, range_end, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection_id) DO UPDATE SET
			last_completed_index = excluded.last_completed_index,
			range_start          = excluded.range_start,
			range_end            = excluded.range_end,
			updated_at           = excluded.updated_at`,
		cp.CollectionID, cp.LastCompletedIndex, cp.RangeStart, cp.RangeEnd, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("erro gravando checkpoint: %w", err)
	}
	return nil
}

// Advance move o cursor para index, mas nunca para trás: retomadas que
// reprocessam um vídeo já confirmado não regridem o progresso.
func (s *Store) Advance(collectionID string, index int) error {
	_, err := s.db.Exec(
		`UPDATE checkpoints
		 SET last_completed_index = ?, updated_at = ?
		 WHERE collection_id = ? AND last_completed_index < ?`,
		index, time.Now().UTC(), collectionID, index)
	if err != nil {
		return fmt.Errorf("erro avançando checkpoint: %w", err)
	}
	return nil
}

// RecordFailure anota um vídeo pulado. Re-falha no mesmo índice sobrescreve
// o registro anterior.
func (s *Store) RecordFailure(f VideoFailure) error {
	_, err := s.db.Exec(
		`INSERT INTO video_failures (collection_id, idx, video_id, reason, detail, failed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(collection_id, idx) DO UPDATE SET
			video_id  = excluded.video_id,
			reason    = excluded.reason,
			detail    = excluded.detail,
			failed_at = excluded.failed_at`,
		f.CollectionID, f.Index, f.VideoID, f.Reason, f.Detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("erro registrando falha: %w", err)
	}
	return nil
}

// Failures lista as falhas registradas da coleção, em ordem de índice.
func (s *Store) Failures(collectionID string) ([]VideoFailure, error) {
	rows, err := s.db.Query(
		`SELECT idx, video_id, reason, detail, failed_at
		 FROM video_failures WHERE collection_id = ? ORDER BY idx`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("erro listando falhas: %w", err)
	}
	defer rows.Close()

	var out []VideoFailure
	for rows.Next() {
		f := VideoFailure{CollectionID: collectionID}
		if err := rows.Scan(&f.Index, &f.VideoID, &f.Reason, &f.Detail, &f.At); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Close fecha o banco.
func (s *Store) Close() error {
	return s.db.Close()
}
