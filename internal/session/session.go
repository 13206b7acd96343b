// Package session gerencia o contexto autenticado do navegador: launch do
// Chromium com estado persistente, injeção de cookies e espera de login.
// O engine adquire a sessão uma vez no boot e reaproveita até o fim.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrSessionUnavailable indica que o login não foi estabelecido dentro do
// tempo configurado. Falha pré-voo, aborta a execução inteira.
var ErrSessionUnavailable = errors.New("sessão não autenticada dentro do tempo limite")

const homeURL = "https://www.douyin.com/"

// Options controla a aquisição da sessão.
type Options struct {
	Headless  bool
	StateDir  string        // UserDataDir: mantém cookies e tokens entre execuções
	LoginWait time.Duration // orçamento de espera do login por QR code
	Cookies   [][2]string   // pares nome/valor vindos do config
}

// Session é o contexto de navegação compartilhado. Só a enumeração e o
// pipeline usam, nunca ao mesmo tempo: o loop do engine serializa tudo.
type Session struct {
	Browser *rod.Browser
	opts    Options
	log     *log.Logger
}

// Acquire sobe o navegador com estado persistente. O UserDataDir garante
// que cookies, localStorage e tokens de segurança sobrevivam entre
// execuções, evitando captchas repetidos.
func Acquire(opts Options, logger *log.Logger) (*Session, error) {
	path, _ := launcher.LookPath()

	l := launcher.New().
		Bin(path).
		UserDataDir(opts.StateDir).
		Leakless(false).
		Set("autoplay-policy", "no-user-gesture-required").
		Set("use-gl", "swiftshader").
		Set("disable-gpu").
		Set("no-sandbox")

	if opts.Headless {
		l = l.Set("headless", "new")
	} else {
		l = l.Headless(false)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("erro ao iniciar browser: %w", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("erro ao conectar no browser: %w", err)
	}

	s := &Session{Browser: browser, opts: opts, log: logger}

	if len(opts.Cookies) > 0 {
		if err := s.setCookies(opts.Cookies); err != nil {
			logger.Warnf("falha ao injetar cookies: %v", err)
		} else {
			logger.Debugf("%d cookies injetados", len(opts.Cookies))
		}
	}

	return s, nil
}

// NewPage abre uma aba nova já com stealth aplicado. Toda navegação do
// crawler passa por aqui.
func (s *Session) NewPage() (*rod.Page, error) {
	page, err := stealth.Page(s.Browser)
	if err != nil {
		return nil, fmt.Errorf("erro criando pagina stealth: %w", err)
	}
	return page, nil
}

// EnsureLogin navega até a home e confirma o estado logado. Se não estiver
// logado, espera o usuário escanear o QR code até estourar o orçamento.
func (s *Session) EnsureLogin() error {
	page, err := s.NewPage()
	if err != nil {
		return err
	}
	defer page.Close()

	if err := page.Timeout(30 * time.Second).Navigate(homeURL); err != nil {
		return fmt.Errorf("erro navegando para a home: %w", err)
	}
	page.Timeout(15 * time.Second).WaitLoad()
	time.Sleep(2 * time.Second)

	if s.isLoggedIn(page) {
		s.log.Info("✅ cookies válidos, sessão já logada")
		return nil
	}

	if s.opts.Headless {
		// Sem tela não tem como escanear QR code.
		return fmt.Errorf("%w: modo headless exige cookies válidos no config", ErrSessionUnavailable)
	}

	s.log.Warn("📱 não logado: escaneie o QR code no navegador")
	s.log.Warnf("aguardando login por até %s...", s.opts.LoginWait)

	deadline := time.Now().Add(s.opts.LoginWait)
	for time.Now().Before(deadline) {
		time.Sleep(2 * time.Second)
		if s.isLoggedIn(page) {
			s.log.Info("✅ login concluído!")
			s.persistCookies()
			return nil
		}
	}

	return ErrSessionUnavailable
}

// Close encerra o navegador. Erros aqui são só logados: o processo está
// terminando de qualquer jeito.
func (s *Session) Close() {
	if err := s.Browser.Close(); err != nil {
		s.log.Debugf("erro fechando browser: %v", err)
	}
}

func (s *Session) setCookies(pairs [][2]string) error {
	cookies := make([]*proto.NetworkCookieParam, 0, len(pairs))
	for _, p := range pairs {
		cookies = append(cookies, &proto.NetworkCookieParam{
			Name:   p[0],
			Value:  p[1],
			Domain: ".douyin.com",
			Path:   "/",
		})
	}
	return s.Browser.SetCookies(cookies)
}

// isLoggedIn procura sinais de sessão autenticada: o avatar do usuário ou
// o texto de logout no HTML.
func (s *Session) isLoggedIn(page *rod.Page) bool {
	if _, err := page.Timeout(2 * time.Second).Element(`img[class*="avatar"]`); err == nil {
		return true
	}
	html, err := page.HTML()
	if err != nil {
		return false
	}
	return strings.Contains(html, "退出登录")
}

// persistCookies salva os cookies pós-login no diretório de estado, para
// inspeção e reuso manual (o UserDataDir já persiste o resto).
func (s *Session) persistCookies() {
	cookies, err := s.Browser.GetCookies()
	if err != nil {
		return
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(s.opts.StateDir, "cookies_saved.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		s.log.Debugf("falha salvando cookies: %v", err)
		return
	}
	s.log.Debugf("💾 cookies salvos em %s", path)
}
