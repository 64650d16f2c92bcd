package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// 清掉可能来自宿主环境的变量，确保走默认值分支
	for _, key := range []string{"PORT", "LISTEN_ADDR", "DATABASE_PATH", "IMAGE_GEN_INTERVAL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.ListenAddr != ":8080" {
		t.Fatalf("期望默认监听 :8080，实际 %q", cfg.ListenAddr)
	}
	if cfg.DatabasePath != "fablepress.db" {
		t.Fatalf("期望默认数据库路径，实际 %q", cfg.DatabasePath)
	}
	if cfg.ImageGenInterval != time.Second {
		t.Fatalf("期望默认插画发起间隔 1s，实际 %v", cfg.ImageGenInterval)
	}
}

func TestLoadImageGenInterval(t *testing.T) {
	t.Setenv("IMAGE_GEN_INTERVAL", "250ms")
	if cfg := Load(); cfg.ImageGenInterval != 250*time.Millisecond {
		t.Fatalf("期望 250ms，实际 %v", cfg.ImageGenInterval)
	}

	// 0 表示关闭节流
	t.Setenv("IMAGE_GEN_INTERVAL", "0s")
	if cfg := Load(); cfg.ImageGenInterval != 0 {
		t.Fatalf("期望 0，实际 %v", cfg.ImageGenInterval)
	}

	// 非法值回退默认
	t.Setenv("IMAGE_GEN_INTERVAL", "soon")
	if cfg := Load(); cfg.ImageGenInterval != time.Second {
		t.Fatalf("期望回退 1s，实际 %v", cfg.ImageGenInterval)
	}
}
