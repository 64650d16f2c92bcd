package service

import (
	"errors"
	"testing"

	"github.com/fablepress/internal/db"
)

func TestProfileServiceGetOrCreateFallback(t *testing.T) {
	gdb := setupSettingsTestDB(t)
	svc := NewProfileService(gdb)

	// 账号存在但资料缺行的兜底补建
	profile, err := svc.GetOrCreate(42, "oaky@example.com", "")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if profile.Name != "oaky" {
		t.Fatalf("expected name from email local part, got %q", profile.Name)
	}
	if profile.Role != "user" {
		t.Fatalf("expected default role user, got %q", profile.Role)
	}

	again, err := svc.GetOrCreate(42, "oaky@example.com", "ignored")
	if err != nil {
		t.Fatalf("second get or create: %v", err)
	}
	if again.ID != profile.ID {
		t.Fatalf("expected same profile row, got %d and %d", profile.ID, again.ID)
	}

	var count int64
	gdb.Model(&db.Profile{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 profile row, got %d", count)
	}
}

func TestProfileServiceGetOrCreateExplicitName(t *testing.T) {
	gdb := setupSettingsTestDB(t)
	svc := NewProfileService(gdb)

	profile, err := svc.GetOrCreate(7, "owl@example.com", "The Wise Owl")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if profile.Name != "The Wise Owl" {
		t.Fatalf("expected explicit name, got %q", profile.Name)
	}
}

func TestProfileServiceUpdate(t *testing.T) {
	gdb := setupSettingsTestDB(t)
	svc := NewProfileService(gdb)

	if _, err := svc.GetOrCreate(7, "owl@example.com", ""); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	name := "Night Owl"
	about := "I write stories about the forest."
	if _, err := svc.Update(7, ProfileInput{Name: &name, About: &about}); err != nil {
		t.Fatalf("update: %v", err)
	}

	loaded, err := svc.GetByUserID(7)
	if err != nil {
		t.Fatalf("reload profile: %v", err)
	}
	if loaded.Name != "Night Owl" || loaded.About != about {
		t.Fatalf("update not applied: %+v", loaded)
	}

	// 未显式传入的字段保持不变
	if _, err := svc.Update(7, ProfileInput{}); err != nil {
		t.Fatalf("empty update: %v", err)
	}
	loaded, _ = svc.GetByUserID(7)
	if loaded.Name != "Night Owl" {
		t.Fatalf("empty update must not clear fields, got %q", loaded.Name)
	}
}

func TestProfileServiceGetByUserIDNotFound(t *testing.T) {
	gdb := setupSettingsTestDB(t)
	svc := NewProfileService(gdb)

	if _, err := svc.GetByUserID(999); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}
