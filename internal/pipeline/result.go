package pipeline

import (
	"time"

	"mixcrawl/internal/douyin"
)

// CommentLevel distingue comentário de primeiro nível de resposta.
type CommentLevel int

const (
	LevelL1 CommentLevel = 1
	LevelL2 CommentLevel = 2
)

func (l CommentLevel) String() string {
	if l == LevelL2 {
		return "L2"
	}
	return "L1"
}

// CommentNode é um comentário já normalizado. Depois da extração o nó é
// imutável: a posse passa inteira para o sink.
type CommentNode struct {
	ID          string       `json:"id"`
	AuthorID    string       `json:"author_id"`
	AuthorName  string       `json:"author_name"`
	Text        string       `json:"text"`
	LikeCount   int64        `json:"like_count"`
	ReplyCount  int64        `json:"reply_count"`
	CreatedAt   time.Time    `json:"created_at"`
	IPLocation  string       `json:"ip_location"`
	Level       CommentLevel `json:"level"`
	ParentID    string       `json:"parent_id,omitempty"`     // só em L2: cid do pai L1
	ReplyToUser string       `json:"reply_to_user,omitempty"` // só quando a resposta mira outro usuário
}

// VideoRecord são os metadados do vídeo capturados da resposta de detalhe.
type VideoRecord struct {
	VideoID         string    `json:"video_id"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	PublishedAt     time.Time `json:"published_at"`
	DurationSeconds int       `json:"duration_seconds"`
	AuthorName      string    `json:"author_name"`
	AuthorID        string    `json:"author_id"`
	LikeCount       int64     `json:"like_count"`
	FavoriteCount   int64     `json:"favorite_count"`
	ShareCount      int64     `json:"share_count"`
	PlayCount       int64     `json:"play_count"`
	CommentCount    int64     `json:"comment_count"`
}

// ExtractionResult é a saída de um vídeo: metadados + árvore de comentários
// em dois níveis, na ordem em que a fonte entregou.
type ExtractionResult struct {
	Index    int           `json:"index"` // posição 1-based na coleção
	Video    VideoRecord   `json:"video"`
	Comments []CommentNode `json:"comments"`
}

// recordFromAweme converte o payload de detalhe no VideoRecord.
func recordFromAweme(a *douyin.Aweme) VideoRecord {
	return VideoRecord{
		VideoID:         a.AwemeID,
		Title:           a.Desc,
		URL:             douyin.VideoURL(a.AwemeID),
		PublishedAt:     douyin.ParseTimestamp(a.CreateTime),
		DurationSeconds: int(a.Video.Duration / 1000),
		AuthorName:      a.Author.Nickname,
		AuthorID:        a.Author.SecUID,
		LikeCount:       a.Statistics.DiggCount,
		FavoriteCount:   a.Statistics.CollectCount,
		ShareCount:      a.Statistics.ShareCount,
		PlayCount:       a.Statistics.PlayCount,
		CommentCount:    a.Statistics.CommentCount,
	}
}

// nodeFromComment normaliza um comentário bruto da API.
func nodeFromComment(c *douyin.Comment, level CommentLevel, parentID string) CommentNode {
	n := CommentNode{
		ID:         c.CID,
		AuthorID:   c.User.UID,
		AuthorName: c.User.Nickname,
		Text:       c.Text,
		LikeCount:  c.DiggCount,
		ReplyCount: c.ReplyTotal,
		CreatedAt:  douyin.ParseTimestamp(c.CreateTime),
		IPLocation: c.IPLabel,
		Level:      level,
	}
	if level == LevelL2 {
		n.ParentID = parentID
		if c.ReplyToNickname != "" {
			n.ReplyToUser = c.ReplyToNickname
		}
	}
	return n
}
