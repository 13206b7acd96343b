// Package manifest enumera a lista ordenada de vídeos de uma coleção,
// rolando a página da coleção e interceptando as respostas paginadas da
// API mix/aweme.
package manifest

import (
	"mixcrawl/internal/douyin"
)

// VideoRef é um vídeo membro da coleção. Index é 1-based, denso e segue a
// ordem canônica da plataforma: é a chave de seleção de faixa e de
// checkpoint.
type VideoRef struct {
	Index        int    `json:"index"`
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	CommentCount int64  `json:"comment_count"` // dica para a extração dimensionar a paginação
}

// Manifest é a sequência completa, deduplicada por VideoID.
type Manifest struct {
	CollectionID string     `json:"collection_id"`
	Videos       []VideoRef `json:"videos"`
}

// Size retorna o total de vídeos enumerados.
func (m *Manifest) Size() int { return len(m.Videos) }

// builder acumula páginas da API deduplicando nos limites (a API reemite
// itens de borda entre páginas).
type builder struct {
	seen   map[string]bool
	videos []VideoRef
	done   bool
}

func newBuilder() *builder {
	return &builder{seen: make(map[string]bool)}
}

// addPage incorpora uma página da listagem e retorna quantos vídeos novos
// entraram. Marca o fim quando a API sinaliza has_more=0.
func (b *builder) addPage(resp *douyin.MixAwemeResponse) int {
	added := 0
	for _, a := range resp.AwemeList {
		if a.AwemeID == "" || b.seen[a.AwemeID] {
			continue
		}
		b.seen[a.AwemeID] = true
		b.videos = append(b.videos, VideoRef{
			Index:        len(b.videos) + 1,
			VideoID:      a.AwemeID,
			Title:        a.Desc,
			CommentCount: a.Statistics.CommentCount,
		})
		added++
	}
	if resp.HasMore == 0 {
		b.done = true
	}
	return added
}
