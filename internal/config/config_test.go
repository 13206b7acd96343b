package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil { // garante que não há config.yaml por perto
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldWD) })

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("sem config.yaml não deveria dar erro: %v", err)
	}
	if cfg.Crawl.MaxComments != 2000 {
		t.Errorf("MaxComments default = %d, esperado 2000", cfg.Crawl.MaxComments)
	}
	if cfg.Crawl.SleepSeconds != 3.0 {
		t.Errorf("SleepSeconds default = %v, esperado 3.0", cfg.Crawl.SleepSeconds)
	}
	if cfg.Checkpoint.Path != "checkpoints.db" {
		t.Errorf("Checkpoint.Path default = %q", cfg.Checkpoint.Path)
	}
}

func TestLoadConfigReadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
crawl:
  max_comments: 500
  sleep_seconds: 1.5
  output_dir: "resultados"
cookies: "sessionid=abc; ttwid=xyz"
redis:
  enabled: true
  address: "redis:6379"
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Crawl.MaxComments != 500 {
		t.Errorf("MaxComments = %d, esperado 500", cfg.Crawl.MaxComments)
	}
	if cfg.Crawl.OutputDir != "resultados" {
		t.Errorf("OutputDir = %q", cfg.Crawl.OutputDir)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Address != "redis:6379" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	// Campos não informados mantêm o default.
	if cfg.Nats.Stream != "MIXCRAWL" {
		t.Errorf("Nats.Stream = %q, esperado default", cfg.Nats.Stream)
	}
}

func TestLoadConfigAppliesFloors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
crawl:
  max_comments: -1
  sleep_seconds: 0.01
  page_delay_ms: 0
`)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Crawl.MaxComments != 2000 {
		t.Errorf("teto negativo deveria voltar ao default, veio %d", cfg.Crawl.MaxComments)
	}
	if cfg.Crawl.SleepSeconds < 0.2 {
		t.Errorf("sleep abaixo do piso: %v", cfg.Crawl.SleepSeconds)
	}
	if cfg.Crawl.PageDelayMS != 800 {
		t.Errorf("page_delay_ms zerado deveria voltar ao default, veio %d", cfg.Crawl.PageDelayMS)
	}
}

func TestParseCookieString(t *testing.T) {
	pairs := ParseCookieString("sessionid=abc123; ttwid= xyz ; vazio; =semvalor; a=b")
	want := [][2]string{{"sessionid", "abc123"}, {"ttwid", "xyz"}, {"", "semvalor"}, {"a", "b"}}
	if len(pairs) != len(want) {
		t.Fatalf("pares = %v", pairs)
	}
	for i, p := range pairs {
		if p != want[i] {
			t.Errorf("pares[%d] = %v, esperado %v", i, p, want[i])
		}
	}
}

func TestParseCookieStringEmpty(t *testing.T) {
	if pairs := ParseCookieString(""); pairs != nil {
		t.Errorf("string vazia deveria dar nil, veio %v", pairs)
	}
}
