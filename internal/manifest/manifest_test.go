package manifest

import (
	"testing"

	"mixcrawl/internal/douyin"
)

func page(ids []string, hasMore int) *douyin.MixAwemeResponse {
	resp := &douyin.MixAwemeResponse{HasMore: hasMore}
	for _, id := range ids {
		a := douyin.Aweme{AwemeID: id, Desc: "vídeo " + id}
		resp.AwemeList = append(resp.AwemeList, a)
	}
	return resp
}

func TestBuilderDedupesOverlappingPages(t *testing.T) {
	b := newBuilder()

	// A API reemite o último item da página anterior na página seguinte.
	if added := b.addPage(page([]string{"a", "b", "c"}, 1)); added != 3 {
		t.Errorf("primeira página: added = %d, esperado 3", added)
	}
	if added := b.addPage(page([]string{"c", "d", "e"}, 1)); added != 2 {
		t.Errorf("página com overlap: added = %d, esperado 2", added)
	}

	if len(b.videos) != 5 {
		t.Fatalf("total = %d, esperado 5", len(b.videos))
	}
}

func TestBuilderIndexesAreDenseAndOrdered(t *testing.T) {
	b := newBuilder()
	b.addPage(page([]string{"x", "y"}, 1))
	b.addPage(page([]string{"y", "z"}, 0))

	want := []string{"x", "y", "z"}
	for i, v := range b.videos {
		if v.Index != i+1 {
			t.Errorf("videos[%d].Index = %d, esperado %d", i, v.Index, i+1)
		}
		if v.VideoID != want[i] {
			t.Errorf("videos[%d].VideoID = %q, esperado %q", i, v.VideoID, want[i])
		}
	}
}

func TestBuilderStopsOnHasMoreZero(t *testing.T) {
	b := newBuilder()
	b.addPage(page([]string{"a"}, 1))
	if b.done {
		t.Error("has_more=1 não deveria encerrar")
	}
	b.addPage(page([]string{"b"}, 0))
	if !b.done {
		t.Error("has_more=0 deveria encerrar")
	}
}

func TestBuilderSkipsEmptyIDs(t *testing.T) {
	b := newBuilder()
	if added := b.addPage(page([]string{"", "a"}, 1)); added != 1 {
		t.Errorf("added = %d, esperado 1 (ID vazio descartado)", added)
	}
}
