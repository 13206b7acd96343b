// Package riskcontrol detecta páginas de verificação/bloqueio da
// plataforma. Os marcadores são configuráveis porque o anti-bot muda os
// sinais sem aviso; os defaults vêm do que observamos em produção.
package riskcontrol

import (
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// Defaults observados nas páginas de verificação do Douyin.
var (
	DefaultSelectors = []string{
		"div[class*='captcha-verify']",
		"div[class*='secsdk-captcha']",
		"div[class*='verify-wrap']",
		`iframe[src*="captcha"]`,
		"#captcha_container",
		"div[class*='slidetounlock']",
	}
	DefaultURLPatterns = []string{"verify", "captcha"}
	DefaultTextMarkers = []string{"拖动滑块", "验证码", "安全验证"}
)

// Marcadores de vídeo removido/indisponível. Não é risk-control: o vídeo
// simplesmente não existe mais.
var missingMarkers = []string{
	"作品不存在",
	"视频不存在",
	"内容不存在",
	"该视频已删除",
	"该作品已删除",
	"页面不存在",
}

// Detector agrupa os marcadores ativos.
type Detector struct {
	selectors   []string
	urlPatterns []string
	textMarkers []string
}

// New cria um Detector; listas vazias caem nos defaults.
func New(selectors, urlPatterns, textMarkers []string) *Detector {
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	if len(urlPatterns) == 0 {
		urlPatterns = DefaultURLPatterns
	}
	if len(textMarkers) == 0 {
		textMarkers = DefaultTextMarkers
	}
	return &Detector{
		selectors:   selectors,
		urlPatterns: urlPatterns,
		textMarkers: textMarkers,
	}
}

// Present verifica se a página atual está sob risk-control.
func (d *Detector) Present(page *rod.Page) bool {
	info, _ := page.Info()
	urlStr := ""
	if info != nil {
		urlStr = strings.ToLower(info.URL)
	}

	for _, p := range d.urlPatterns {
		if strings.Contains(urlStr, p) {
			return true
		}
	}

	for _, sel := range d.selectors {
		if _, err := page.Timeout(1 * time.Second).Element(sel); err == nil {
			return true
		}
	}

	// Título é o sinal mais confiável contra falso positivo: a página de
	// verificação troca o título inteiro.
	if info != nil {
		for _, m := range d.textMarkers {
			if strings.Contains(info.Title, m) {
				return true
			}
		}
	}

	return false
}

// VideoMissing verifica se a página indica vídeo removido ou inexistente.
func (d *Detector) VideoMissing(page *rod.Page) bool {
	info, _ := page.Info()
	if info != nil {
		if strings.Contains(info.URL, "/error") || strings.Contains(info.URL, "/404") {
			return true
		}
		for _, m := range missingMarkers {
			if strings.Contains(info.Title, m) {
				return true
			}
		}
	}

	// Evidência positiva: se tem player, o vídeo existe.
	if _, err := page.Timeout(1 * time.Second).Element("video"); err == nil {
		return false
	}

	for _, sel := range []string{
		"div[class*='videoNotFound']",
		"div[class*='notFound']",
	} {
		if _, err := page.Timeout(500 * time.Millisecond).Element(sel); err == nil {
			return true
		}
	}

	// Sem prova nem contra-prova, assume que existe e deixa o resto do
	// pipeline decidir.
	return false
}
