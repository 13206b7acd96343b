package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"mixcrawl/internal/pipeline"
)

// Caracteres proibidos em nome de arquivo (Windows inclusive, o CSV
// costuma ser aberto lá).
var unsafeFilenameRe = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]+`)

const maxTitleInFilename = 50

// CSVSink grava um arquivo CSV por vídeo, dentro de um diretório por
// coleção. O arquivo leva BOM UTF-8 para o Excel abrir chinês direito, e
// uma linha de vídeo seguida das linhas de comentário.
type CSVSink struct {
	dir string
	log *log.Logger
}

// NewCSV cria o diretório de saída da coleção e retorna o sink.
func NewCSV(baseDir, collectionID string, logger *log.Logger) (*CSVSink, error) {
	dir := filepath.Join(baseDir, collectionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("erro criando diretório de saída: %w", err)
	}
	return &CSVSink{dir: dir, log: logger}, nil
}

var csvHeader = []string{
	"row_type", "index", "video_id", "title", "url", "published_at",
	"duration_seconds", "author_id", "author_name",
	"like_count", "favorite_count", "share_count", "play_count", "comment_count",
	"comment_id", "comment_level", "parent_comment_id", "comment_author",
	"comment_text", "comment_likes", "comment_replies", "comment_created_at",
	"comment_ip_location", "reply_to_user",
}

// Accept escreve NNN/<título>_<id>.csv e só retorna nil depois do fsync.
func (s *CSVSink) Accept(res *pipeline.ExtractionResult) error {
	name := fmt.Sprintf("%03d_%s_%s.csv", res.Index, sanitizeFilename(res.Video.Title), res.Video.VideoID)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("erro criando %s: %w", name, err)
	}
	defer f.Close()

	// BOM UTF-8
	if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	if err := w.Write(videoRow(res)); err != nil {
		return err
	}
	for i := range res.Comments {
		if err := w.Write(commentRow(res, &res.Comments[i])); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("erro escrevendo %s: %w", name, err)
	}
	// Durável antes de confirmar: o checkpoint avança em cima deste nil.
	if err := f.Sync(); err != nil {
		return fmt.Errorf("erro sincronizando %s: %w", name, err)
	}

	s.log.Debugf("💾 %s (%d comentários)", name, len(res.Comments))
	return nil
}

func (s *CSVSink) Close() error { return nil }

// Dir expõe o diretório de saída, para o resumo final.
func (s *CSVSink) Dir() string { return s.dir }

func videoRow(res *pipeline.ExtractionResult) []string {
	v := res.Video
	return []string{
		"video", strconv.Itoa(res.Index), v.VideoID, v.Title, v.URL,
		formatTime(v.PublishedAt), strconv.Itoa(v.DurationSeconds),
		v.AuthorID, v.AuthorName,
		strconv.FormatInt(v.LikeCount, 10), strconv.FormatInt(v.FavoriteCount, 10),
		strconv.FormatInt(v.ShareCount, 10), strconv.FormatInt(v.PlayCount, 10),
		strconv.FormatInt(v.CommentCount, 10),
		"", "", "", "", "", "", "", "", "", "",
	}
}

func commentRow(res *pipeline.ExtractionResult, c *pipeline.CommentNode) []string {
	return []string{
		"comment", strconv.Itoa(res.Index), res.Video.VideoID, "", "", "", "", "", "",
		"", "", "", "", "",
		c.ID, c.Level.String(), c.ParentID, c.AuthorName,
		c.Text, strconv.FormatInt(c.LikeCount, 10), strconv.FormatInt(c.ReplyCount, 10),
		formatTime(c.CreatedAt), c.IPLocation, c.ReplyToUser,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

// sanitizeFilename troca caracteres proibidos por "_" e trunca títulos
// longos sem quebrar runas no meio.
func sanitizeFilename(title string) string {
	clean := unsafeFilenameRe.ReplaceAllString(title, "_")
	r := []rune(clean)
	if len(r) > maxTitleInFilename {
		r = r[:maxTitleInFilename]
	}
	if len(r) == 0 {
		return "sem_titulo"
	}
	return string(r)
}
