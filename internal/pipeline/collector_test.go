package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mixcrawl/internal/douyin"
)

func l1Comment(cid string, replies int64) douyin.Comment {
	c := douyin.Comment{CID: cid, Text: "comentário " + cid, ReplyTotal: replies}
	c.User.Nickname = "user_" + cid
	return c
}

func l2Comment(cid, parent string) douyin.Comment {
	c := douyin.Comment{CID: cid, Text: "resposta " + cid, ReplyID: parent}
	return c
}

func commentPage(hasMore int, cs ...douyin.Comment) *douyin.CommentListResponse {
	return &douyin.CommentListResponse{HasMore: hasMore, Comments: cs}
}

func TestCollectorKeepsArrivalOrderAndDedupes(t *testing.T) {
	c := newCollector(100)

	c.addCommentPage(commentPage(1, l1Comment("a", 0), l1Comment("b", 0)))
	// "b" repetido na fronteira da página seguinte
	added := c.addCommentPage(commentPage(0, l1Comment("b", 0), l1Comment("c", 0)))

	assert.Equal(t, 1, added)
	require.Len(t, c.comments, 3)
	assert.Equal(t, "a", c.comments[0].ID)
	assert.Equal(t, "b", c.comments[1].ID)
	assert.Equal(t, "c", c.comments[2].ID)
}

func TestCollectorEveryL2HasKnownParent(t *testing.T) {
	c := newCollector(100)

	c.addCommentPage(commentPage(1, l1Comment("p1", 2)))
	c.addReplyPage(commentPage(0, l2Comment("r1", "p1"), l2Comment("r2", "p1")))
	// resposta órfã: pai nunca coletado
	added := c.addReplyPage(commentPage(0, l2Comment("r3", "fantasma")))

	assert.Equal(t, 0, added, "resposta órfã deveria ser descartada")

	parents := map[string]bool{}
	for _, n := range c.comments {
		if n.Level == LevelL1 {
			parents[n.ID] = true
		}
	}
	for _, n := range c.comments {
		if n.Level == LevelL2 {
			assert.True(t, parents[n.ParentID], "L2 %s referencia pai %s ausente", n.ID, n.ParentID)
		}
	}
}

func TestCollectorInlineRepliesInFeed(t *testing.T) {
	c := newCollector(100)

	// O feed de primeiro nível às vezes traz respostas expandidas inline.
	c.addCommentPage(commentPage(1, l1Comment("p1", 1), l2Comment("r1", "p1")))

	l1, l2 := c.counts()
	assert.Equal(t, 1, l1)
	assert.Equal(t, 1, l2)
	assert.Equal(t, "p1", c.comments[1].ParentID)
}

func TestCollectorEnforcesCap(t *testing.T) {
	c := newCollector(5)

	var cs []douyin.Comment
	for i := 0; i < 10; i++ {
		cs = append(cs, l1Comment(fmt.Sprintf("c%d", i), 0))
	}
	c.addCommentPage(commentPage(1, cs...))

	assert.Len(t, c.comments, 5)
	assert.True(t, c.full())
}

func TestCollectorPendingReplies(t *testing.T) {
	c := newCollector(100)

	c.addCommentPage(commentPage(1, l1Comment("p1", 3), l1Comment("p2", 0)))
	assert.EqualValues(t, 3, c.pendingReplies())

	c.addReplyPage(commentPage(1, l2Comment("r1", "p1"), l2Comment("r2", "p1")))
	assert.EqualValues(t, 1, c.pendingReplies())

	c.addReplyPage(commentPage(0, l2Comment("r3", "p1")))
	assert.EqualValues(t, 0, c.pendingReplies())
}

func TestNodeFromCommentLevels(t *testing.T) {
	cm := l2Comment("r9", "p9")
	cm.ReplyToNickname = "alguém"
	n := nodeFromComment(&cm, LevelL2, "p9")

	assert.Equal(t, LevelL2, n.Level)
	assert.Equal(t, "p9", n.ParentID)
	assert.Equal(t, "alguém", n.ReplyToUser)

	top := l1Comment("t1", 0)
	tn := nodeFromComment(&top, LevelL1, "")
	assert.Equal(t, LevelL1, tn.Level)
	assert.Empty(t, tn.ParentID)
}
