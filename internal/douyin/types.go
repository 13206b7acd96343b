// Package douyin define os tipos de payload da API web interna do Douyin
// que o crawler intercepta via hijack do navegador. Os shapes seguem os
// JSONs reais dos endpoints mix/aweme, aweme/detail e comment/list.
package douyin

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Códigos de status retornados pela API web do Douyin.
const (
	StatusOK          = 0
	StatusRateLimited = 8    // frequência alta demais, fomos limitados
	StatusAuthExpired = 2053 // cookie expirado, precisa relogar
)

// Trechos de path usados para classificar respostas interceptadas.
const (
	PathMixAweme     = "/aweme/v1/web/mix/aweme/"
	PathAwemeDetail  = "/aweme/v1/web/aweme/detail/"
	PathCommentList  = "/aweme/v1/web/comment/list/"
	PathCommentReply = "/aweme/v1/web/comment/list/reply/"
)

var (
	// ErrAuthExpired indica que a sessão perdeu as credenciais no meio da
	// execução. É fatal: precisa de novo login fora do crawler.
	ErrAuthExpired = errors.New("credenciais da sessão expiraram (status 2053)")
	// ErrRateLimited indica que a API sinalizou limitação de frequência.
	ErrRateLimited = errors.New("api limitou a frequência de requisições (status 8)")
)

// MixAwemeResponse é uma página da listagem de vídeos de uma coleção.
type MixAwemeResponse struct {
	StatusCode int     `json:"status_code"`
	StatusMsg  string  `json:"status_msg"`
	Cursor     int64   `json:"cursor"`
	HasMore    int     `json:"has_more"`
	AwemeList  []Aweme `json:"aweme_list"`
}

// AwemeDetailResponse é a resposta do endpoint de detalhe de um vídeo.
type AwemeDetailResponse struct {
	StatusCode  int    `json:"status_code"`
	StatusMsg   string `json:"status_msg"`
	AwemeDetail *Aweme `json:"aweme_detail"`
}

// Aweme é um vídeo como a API devolve (tanto na listagem quanto no detalhe).
type Aweme struct {
	AwemeID    string `json:"aweme_id"`
	Desc       string `json:"desc"`
	CreateTime int64  `json:"create_time"`
	Author     struct {
		Nickname string `json:"nickname"`
		UID      string `json:"uid"`
		SecUID   string `json:"sec_uid"`
	} `json:"author"`
	Video struct {
		Duration int64 `json:"duration"` // milissegundos
	} `json:"video"`
	Statistics struct {
		DiggCount    int64 `json:"digg_count"`
		CommentCount int64 `json:"comment_count"`
		ShareCount   int64 `json:"share_count"`
		CollectCount int64 `json:"collect_count"`
		PlayCount    int64 `json:"play_count"`
	} `json:"statistics"`
}

// CommentListResponse é uma página de comentários (serve para os endpoints
// de primeiro nível e de respostas, o shape é o mesmo).
type CommentListResponse struct {
	StatusCode int       `json:"status_code"`
	StatusMsg  string    `json:"status_msg"`
	Cursor     int64     `json:"cursor"`
	HasMore    int       `json:"has_more"`
	Comments   []Comment `json:"comments"`
}

// Comment é um comentário bruto da API.
type Comment struct {
	CID             string `json:"cid"`
	Text            string `json:"text"`
	CreateTime      int64  `json:"create_time"`
	DiggCount       int64  `json:"digg_count"`
	ReplyTotal      int64  `json:"reply_comment_total"`
	ReplyID         string `json:"reply_id"`
	ReplyToUserID   string `json:"reply_to_userid"`
	ReplyToNickname string `json:"reply_to_nickname"`
	IPLabel         string `json:"ip_label"`
	User            struct {
		UID      string `json:"uid"`
		SecUID   string `json:"sec_uid"`
		Nickname string `json:"nickname"`
	} `json:"user"`
}

// IsReply diz se o comentário é uma resposta (nível 2). A API usa reply_id
// "0" ou vazio para comentários de primeiro nível.
func (c *Comment) IsReply() bool {
	if c.ReplyID != "" && c.ReplyID != "0" {
		return true
	}
	if c.ReplyToUserID != "" && c.ReplyToUserID != "0" {
		return true
	}
	return false
}

// Err converte o status_code de uma resposta em erro, quando for o caso.
func Err(statusCode int, statusMsg string) error {
	switch statusCode {
	case StatusOK:
		return nil
	case StatusAuthExpired:
		return ErrAuthExpired
	case StatusRateLimited:
		return ErrRateLimited
	default:
		return fmt.Errorf("api retornou status %d: %s", statusCode, statusMsg)
	}
}

// ParseTimestamp converte um timestamp da API em time.Time, aceitando
// segundos ou milissegundos (a API mistura as duas unidades).
func ParseTimestamp(ts int64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	if ts > 10_000_000_000 { // mais de 10 dígitos é milissegundo
		ts /= 1000
	}
	return time.Unix(ts, 0)
}

// VideoURL monta a URL canônica de um vídeo.
func VideoURL(awemeID string) string {
	return "https://www.douyin.com/video/" + awemeID
}

// CollectionURL monta a URL canônica de uma coleção (mix).
func CollectionURL(mixID string) string {
	return "https://www.douyin.com/collection/" + mixID
}

// MatchPath classifica o path de uma URL interceptada. Retorna string vazia
// quando o path não interessa ao crawler.
func MatchPath(urlPath string) string {
	switch {
	case strings.Contains(urlPath, PathCommentReply):
		return PathCommentReply
	case strings.Contains(urlPath, PathCommentList):
		return PathCommentList
	case strings.Contains(urlPath, PathAwemeDetail):
		return PathAwemeDetail
	case strings.Contains(urlPath, PathMixAweme):
		return PathMixAweme
	}
	return ""
}
