// Package resolver normaliza a entrada do usuário (ID numérico, link curto
// de compartilhamento ou URL completa) no ID canônico da coleção.
package resolver

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const maxRedirectHops = 5

var (
	// ErrInvalidIdentifier indica entrada que não casa com nenhum formato
	// reconhecido. Falha pré-voo: aborta a execução sem tocar checkpoint.
	ErrInvalidIdentifier = errors.New("identificador de coleção não reconhecido")
	// ErrRedirectFailure indica link curto que não resolveu dentro do
	// limite de redirects ou que aterrissou fora de uma coleção. Não há
	// retry: normalmente é um link expirado.
	ErrRedirectFailure = errors.New("link curto não resolveu para uma coleção")
)

// Kind é o formato classificado da entrada.
type Kind int

const (
	KindInvalid Kind = iota
	KindNumeric
	KindShortLink
	KindFullURL
)

var (
	digitsRe     = regexp.MustCompile(`^\d+$`)
	collectionRe = regexp.MustCompile(`collection/(\d+)`)
	mixParamRe   = regexp.MustCompile(`(?:mix_id|modal_id)=(\d+)`)
	videoPathRe  = regexp.MustCompile(`/video/(\d+)`)
)

// ResolvedCollection é a saída do resolver. VideoCount é só uma dica
// inicial; a enumeração é a autoridade sobre o tamanho real.
type ResolvedCollection struct {
	CollectionID string
	VideoCount   int
}

// Resolver segue redirects de links curtos via HTTP puro, sem navegador.
type Resolver struct {
	client *http.Client
	log    *log.Logger
}

// New cria um Resolver com o limite de redirects embutido no client.
func New(logger *log.Logger) *Resolver {
	return &Resolver{
		client: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirectHops {
					return fmt.Errorf("mais de %d redirects", maxRedirectHops)
				}
				return nil
			},
		},
		log: logger,
	}
}

// Classify identifica o formato da entrada sem tocar a rede.
func Classify(raw string) Kind {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return KindInvalid
	case digitsRe.MatchString(raw):
		return KindNumeric
	case strings.Contains(raw, "v.douyin.com"):
		return KindShortLink
	case strings.Contains(raw, "douyin.com") && extractID(raw) != "":
		return KindFullURL
	}
	return KindInvalid
}

// Resolve converte a entrada crua em ResolvedCollection.
func (r *Resolver) Resolve(raw string) (ResolvedCollection, error) {
	raw = strings.TrimSpace(raw)

	switch Classify(raw) {
	case KindNumeric:
		return ResolvedCollection{CollectionID: raw}, nil

	case KindFullURL:
		id := extractID(raw)
		r.log.Debugf("ID %s extraído direto da URL", id)
		return ResolvedCollection{CollectionID: id}, nil

	case KindShortLink:
		return r.resolveShortLink(raw)
	}

	return ResolvedCollection{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
}

// resolveShortLink segue os redirects do link de compartilhamento até a URL
// final e extrai o segmento numérico dela.
func (r *Resolver) resolveShortLink(shortURL string) (ResolvedCollection, error) {
	if !strings.HasPrefix(shortURL, "http://") && !strings.HasPrefix(shortURL, "https://") {
		shortURL = "https://" + shortURL
	}
	r.log.Debugf("resolvendo link curto: %s", shortURL)

	req, err := http.NewRequest(http.MethodGet, shortURL, nil)
	if err != nil {
		return ResolvedCollection{}, fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}
	// Sem User-Agent de navegador o encurtador devolve uma página de erro.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36")

	resp, err := r.client.Do(req)
	if err != nil {
		return ResolvedCollection{}, fmt.Errorf("%w: %v", ErrRedirectFailure, err)
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	r.log.Debugf("URL final após redirects: %s", finalURL)

	id := extractID(finalURL)
	if id == "" {
		return ResolvedCollection{}, fmt.Errorf("%w: URL final %s", ErrRedirectFailure, finalURL)
	}
	return ResolvedCollection{CollectionID: id}, nil
}

// extractID procura o segmento numérico da coleção numa URL, nos formatos
// que a plataforma usa: path de coleção, query mix_id/modal_id e, por
// último, path de vídeo (links curtos de coleção costumam cair num vídeo
// da própria coleção).
func extractID(u string) string {
	if m := collectionRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	if m := mixParamRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	if m := videoPathRe.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	return ""
}
