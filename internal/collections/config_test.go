package collections

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, dir, payload string) string {
	t.Helper()
	path := filepath.Join(dir, "collections.json")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), `{
		"collections": {
			"project": {"id": "col_proj", "ttl": "2m"},
			"person": {"id": "col_people"}
		}
	}`)

	entries, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	config := NewConfig(entries, quietLogger())

	if id, ok := config.CollectionID(KindProject); !ok || id != "col_proj" {
		t.Fatalf("unexpected project id: %q ok=%t", id, ok)
	}
	if ttl, ok := config.TTL(KindProject); !ok || ttl != 2*time.Minute {
		t.Fatalf("unexpected project ttl: %s ok=%t", ttl, ok)
	}
	if _, ok := config.TTL(KindPerson); ok {
		t.Fatalf("person has no ttl override")
	}

	configured := config.Configured()
	if len(configured) != 2 || configured[0] != KindProject || configured[1] != KindPerson {
		t.Fatalf("unexpected configured kinds: %v", configured)
	}
	unconfigured := config.Unconfigured()
	if len(unconfigured) != 3 {
		t.Fatalf("expected 3 unconfigured kinds, got %v", unconfigured)
	}
}

func TestLoadConfigFileRejectsUnknownKind(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), `{"collections": {"widget": {"id": "col_w"}}}`)
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestLoadConfigFileRejectsBadTTL(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), `{"collections": {"project": {"id": "col_p", "ttl": "soon"}}}`)
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatalf("expected error for unparseable ttl")
	}
}

func TestConfigReplaceIsAtomic(t *testing.T) {
	config := NewConfig(map[Kind]CollectionSettings{
		KindProject: {CollectionID: "old"},
	}, quietLogger())

	config.Replace(map[Kind]CollectionSettings{
		KindPerson: {CollectionID: "new"},
	})

	if _, ok := config.CollectionID(KindProject); ok {
		t.Fatalf("expected old mapping to be gone")
	}
	if id, ok := config.CollectionID(KindPerson); !ok || id != "new" {
		t.Fatalf("expected new mapping, got %q ok=%t", id, ok)
	}
}

func TestConfigWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, `{"collections": {"project": {"id": "col_v1"}}}`)

	entries, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	config := NewConfig(entries, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan struct{})
	go func() {
		_ = config.Watch(ctx, path)
		close(watchDone)
	}()

	// Give the watcher a moment to register before rewriting.
	time.Sleep(100 * time.Millisecond)
	writeConfigFile(t, dir, `{"collections": {"project": {"id": "col_v2"}}}`)

	deadline := time.Now().Add(3 * time.Second)
	for {
		if id, _ := config.CollectionID(KindProject); id == "col_v2" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("config was not reloaded after file change")
		}
		time.Sleep(20 * time.Millisecond)
	}

	// A broken rewrite keeps the previous mapping.
	writeConfigFile(t, dir, `{"collections": {`)
	time.Sleep(200 * time.Millisecond)
	if id, ok := config.CollectionID(KindProject); !ok || id != "col_v2" {
		t.Fatalf("expected previous mapping to survive a bad reload, got %q ok=%t", id, ok)
	}

	cancel()
	select {
	case <-watchDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not stop on cancellation")
	}
}
