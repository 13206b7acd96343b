package engine

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mixcrawl/internal/checkpoint"
	"mixcrawl/internal/douyin"
	"mixcrawl/internal/manifest"
	"mixcrawl/internal/pipeline"
	"mixcrawl/internal/ratelimit"
)

// --- dublês ---

type fakeEnumerator struct {
	man *manifest.Manifest
	err error
}

func (f *fakeEnumerator) Enumerate(ctx context.Context, collectionID string) (*manifest.Manifest, error) {
	return f.man, f.err
}

type fakeExtractor struct {
	extracted []int
	failAt    map[int]error // índice → erro
}

func (f *fakeExtractor) Extract(ctx context.Context, ref manifest.VideoRef) (*pipeline.ExtractionResult, error) {
	f.extracted = append(f.extracted, ref.Index)
	if err, ok := f.failAt[ref.Index]; ok {
		return nil, err
	}
	return &pipeline.ExtractionResult{
		Index: ref.Index,
		Video: pipeline.VideoRecord{VideoID: ref.VideoID, Title: ref.Title},
		Comments: []pipeline.CommentNode{
			{ID: fmt.Sprintf("c-%d", ref.Index), Level: pipeline.LevelL1},
		},
	}, nil
}

type fakeSink struct {
	accepted []string
	failAt   map[string]error
}

func (f *fakeSink) Accept(res *pipeline.ExtractionResult) error {
	if err, ok := f.failAt[res.Video.VideoID]; ok {
		return err
	}
	f.accepted = append(f.accepted, res.Video.VideoID)
	return nil
}

// memStore implementa CheckpointStore em memória para observar os avanços.
type memStore struct {
	cps      map[string]*checkpoint.Checkpoint
	failures []checkpoint.VideoFailure
	advances []int
}

func newMemStore() *memStore {
	return &memStore{cps: make(map[string]*checkpoint.Checkpoint)}
}

func (m *memStore) Load(id string) (*checkpoint.Checkpoint, error) {
	if cp, ok := m.cps[id]; ok {
		c := *cp
		return &c, nil
	}
	return nil, nil
}

func (m *memStore) Save(cp checkpoint.Checkpoint) error {
	c := cp
	m.cps[cp.CollectionID] = &c
	return nil
}

func (m *memStore) Advance(id string, index int) error {
	m.advances = append(m.advances, index)
	if cp, ok := m.cps[id]; ok && cp.LastCompletedIndex < index {
		cp.LastCompletedIndex = index
	}
	return nil
}

func (m *memStore) RecordFailure(f checkpoint.VideoFailure) error {
	m.failures = append(m.failures, f)
	return nil
}

type fakeMarker struct {
	delivered map[string]bool
	marked    []string
}

func (f *fakeMarker) Delivered(ctx context.Context, id string) bool { return f.delivered[id] }
func (f *fakeMarker) Mark(ctx context.Context, id string)           { f.marked = append(f.marked, id) }

func testMan(n int) *manifest.Manifest {
	m := &manifest.Manifest{CollectionID: "col1"}
	for i := 1; i <= n; i++ {
		m.Videos = append(m.Videos, manifest.VideoRef{Index: i, VideoID: fmt.Sprintf("v%d", i)})
	}
	return m
}

func quietRate() *ratelimit.Controller {
	return ratelimit.New(0, 0)
}

func newTestEngine(enum Enumerator, extr Extractor, s Sink, store CheckpointStore, marker DeliveryMarker) *Engine {
	return New(enum, extr, s, store, quietRate(), marker, log.New(os.Stderr))
}

// --- testes ---

func TestRunProcessesExactRange(t *testing.T) {
	extr := &fakeExtractor{}
	sk := &fakeSink{}
	store := newMemStore()
	e := newTestEngine(&fakeEnumerator{man: testMan(120)}, extr, sk, store, nil)

	sum, err := e.Run(context.Background(), "col1", Options{RangeStart: 25, RangeEnd: 99})
	require.NoError(t, err)

	assert.Equal(t, 75, sum.Total)
	assert.Equal(t, 75, sum.Succeeded)
	assert.Len(t, extr.extracted, 75)
	assert.Equal(t, 25, extr.extracted[0])
	assert.Equal(t, 99, extr.extracted[74])
	assert.Equal(t, 99, store.cps["col1"].LastCompletedIndex)
}

func TestRunVideoFailureIsRecordedAndSkipped(t *testing.T) {
	extr := &fakeExtractor{failAt: map[int]error{
		2: &pipeline.Failure{Reason: pipeline.FailRiskControl},
	}}
	sk := &fakeSink{}
	store := newMemStore()
	e := newTestEngine(&fakeEnumerator{man: testMan(3)}, extr, sk, store, nil)

	sum, err := e.Run(context.Background(), "col1", Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	// A execução segue para o vídeo seguinte.
	assert.Equal(t, []int{1, 2, 3}, extr.extracted)
	require.Len(t, store.failures, 1)
	assert.Equal(t, 2, store.failures[0].Index)
	assert.Equal(t, "risk_control", store.failures[0].Reason)
	// Falha também avança o checkpoint: retomada não reprocessa o vídeo ruim.
	assert.Equal(t, 3, store.cps["col1"].LastCompletedIndex)
}

func TestRunSinkFailureAbortsWithoutAdvancing(t *testing.T) {
	extr := &fakeExtractor{}
	sk := &fakeSink{failAt: map[string]error{"v2": fmt.Errorf("disco cheio")}}
	store := newMemStore()
	e := newTestEngine(&fakeEnumerator{man: testMan(3)}, extr, sk, store, nil)

	_, err := e.Run(context.Background(), "col1", Options{})
	require.Error(t, err)

	// v1 confirmado, v2 não: o checkpoint fica em 1 e a retomada
	// reprocessa o vídeo 2.
	assert.Equal(t, 1, store.cps["col1"].LastCompletedIndex)
	assert.Equal(t, []string{"v1"}, sk.accepted)
}

func TestRunAuthExpiredAbortsWithoutAdvancing(t *testing.T) {
	extr := &fakeExtractor{failAt: map[int]error{2: douyin.ErrAuthExpired}}
	sk := &fakeSink{}
	store := newMemStore()
	e := newTestEngine(&fakeEnumerator{man: testMan(5)}, extr, sk, store, nil)

	_, err := e.Run(context.Background(), "col1", Options{})
	require.ErrorIs(t, err, douyin.ErrAuthExpired)

	assert.Equal(t, 1, store.cps["col1"].LastCompletedIndex)
	// Nenhum vídeo depois do 2 foi tentado.
	assert.Equal(t, []int{1, 2}, extr.extracted)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	extr := &fakeExtractor{}
	sk := &fakeSink{}
	store := newMemStore()
	require.NoError(t, store.Save(checkpoint.Checkpoint{
		CollectionID: "col1", LastCompletedIndex: 3, RangeStart: 1, RangeEnd: 5,
	}))
	e := newTestEngine(&fakeEnumerator{man: testMan(5)}, extr, sk, store, nil)

	sum, err := e.Run(context.Background(), "col1", Options{})
	require.NoError(t, err)

	assert.Equal(t, []int{4, 5}, extr.extracted)
	assert.Equal(t, 2, sum.Succeeded)
}

func TestRunSkipsDeliveredVideos(t *testing.T) {
	extr := &fakeExtractor{}
	sk := &fakeSink{}
	store := newMemStore()
	marker := &fakeMarker{delivered: map[string]bool{"v2": true}}
	e := newTestEngine(&fakeEnumerator{man: testMan(3)}, extr, sk, store, marker)

	sum, err := e.Run(context.Background(), "col1", Options{})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3}, extr.extracted)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 2, sum.Succeeded)
	// Pulado também avança o checkpoint.
	assert.Equal(t, 3, store.cps["col1"].LastCompletedIndex)
	// Vídeos entregues agora ganham marca.
	assert.ElementsMatch(t, []string{"v1", "v3"}, marker.marked)
}

func TestRunEnumerationFailureTouchesNothing(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(&fakeEnumerator{err: fmt.Errorf("rede caiu")}, &fakeExtractor{}, &fakeSink{}, store, nil)

	_, err := e.Run(context.Background(), "col1", Options{})
	require.Error(t, err)
	assert.Empty(t, store.cps)
	assert.Empty(t, store.advances)
}

func TestRunEmptyRangeDoesNothing(t *testing.T) {
	extr := &fakeExtractor{}
	store := newMemStore()
	require.NoError(t, store.Save(checkpoint.Checkpoint{
		CollectionID: "col1", LastCompletedIndex: 5, RangeStart: 1, RangeEnd: 5,
	}))
	e := newTestEngine(&fakeEnumerator{man: testMan(5)}, extr, &fakeSink{}, store, nil)

	sum, err := e.Run(context.Background(), "col1", Options{})
	require.NoError(t, err)
	assert.Zero(t, sum.Total)
	assert.Empty(t, extr.extracted)
}
