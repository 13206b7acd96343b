package pipeline

import "mixcrawl/internal/douyin"

// collector acumula comentários conforme as páginas interceptadas chegam.
// Mantém a ordem de chegada (ordem da fonte), deduplica por cid, aplica o
// teto configurado e garante a invariante de que todo L2 referencia um L1
// presente no mesmo resultado.
type collector struct {
	max      int
	seen     map[string]bool
	l1       map[string]bool // cids de L1 já aceitos
	expected map[string]int64
	comments []CommentNode
}

func newCollector(max int) *collector {
	return &collector{
		max:      max,
		seen:     make(map[string]bool),
		l1:       make(map[string]bool),
		expected: make(map[string]int64),
	}
}

// addCommentPage incorpora uma página do feed de primeiro nível. O feed às
// vezes mistura respostas (quando a UI expande inline); essas são roteadas
// como L2 se o pai já é conhecido, senão ignoradas.
func (c *collector) addCommentPage(resp *douyin.CommentListResponse) int {
	added := 0
	for i := range resp.Comments {
		cm := &resp.Comments[i]
		if c.full() {
			break
		}
		if cm.CID == "" || c.seen[cm.CID] {
			continue
		}
		if cm.IsReply() {
			if !c.l1[cm.ReplyID] {
				continue // resposta órfã: pai não coletado, descarta
			}
			c.seen[cm.CID] = true
			c.comments = append(c.comments, nodeFromComment(cm, LevelL2, cm.ReplyID))
			added++
			continue
		}
		c.seen[cm.CID] = true
		c.l1[cm.CID] = true
		if cm.ReplyTotal > 0 {
			c.expected[cm.CID] = cm.ReplyTotal
		}
		c.comments = append(c.comments, nodeFromComment(cm, LevelL1, ""))
		added++
	}
	return added
}

// addReplyPage incorpora uma página do endpoint de respostas. Toda entrada
// vira L2 com o pai vindo do reply_id; respostas de pais desconhecidos são
// descartadas para preservar a invariante.
func (c *collector) addReplyPage(resp *douyin.CommentListResponse) int {
	added := 0
	for i := range resp.Comments {
		cm := &resp.Comments[i]
		if c.full() {
			break
		}
		if cm.CID == "" || c.seen[cm.CID] {
			continue
		}
		if !c.l1[cm.ReplyID] {
			continue
		}
		c.seen[cm.CID] = true
		c.comments = append(c.comments, nodeFromComment(cm, LevelL2, cm.ReplyID))
		added++
	}
	return added
}

func (c *collector) full() bool {
	return len(c.comments) >= c.max
}

// pendingReplies estima quantas respostas anunciadas ainda não chegaram.
func (c *collector) pendingReplies() int64 {
	var want int64
	for _, n := range c.expected {
		want += n
	}
	var got int64
	for i := range c.comments {
		if c.comments[i].Level == LevelL2 {
			got++
		}
	}
	if got >= want {
		return 0
	}
	return want - got
}

// counts retorna os totais por nível, para log e cobertura.
func (c *collector) counts() (l1, l2 int) {
	for i := range c.comments {
		if c.comments[i].Level == LevelL1 {
			l1++
		} else {
			l2++
		}
	}
	return
}
