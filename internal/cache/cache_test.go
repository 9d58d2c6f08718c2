package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				DBPath: filepath.Join(tempDir, "test.db"),
				TTL:    time.Hour,
			},
			wantErr: false,
		},
		{
			name: "default TTL",
			cfg: Config{
				DBPath: filepath.Join(tempDir, "test2.db"),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if cache != nil {
				cache.Close()
			}
		})
	}
}

func TestKey(t *testing.T) {
	key := Key("/data/Skyrim.esm", 12345, 67890)
	expected := "plugin:/data/Skyrim.esm:12345:67890"
	if key != expected {
		t.Errorf("Key() = %q, want %q", key, expected)
	}
}

func TestCache_SetGet(t *testing.T) {
	tempDir := t.TempDir()
	cache, err := New(Config{
		DBPath: filepath.Join(tempDir, "test.db"),
		TTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		entry := Entry{CRC: 0xDEADBEEF, NumOverrideRecords: 42}
		if err := cache.Set(ctx, "key1", entry); err != nil {
			t.Errorf("Set() error = %v", err)
		}

		result, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Errorf("Get() error = %v", err)
		}
		if result != entry {
			t.Errorf("Get() = %+v, want %+v", result, entry)
		}
	})

	t.Run("get non-existent", func(t *testing.T) {
		if _, err := cache.Get(ctx, "nonexistent"); err != ErrNotFound {
			t.Errorf("Get() error = %v, want %v", err, ErrNotFound)
		}
	})

	t.Run("update existing", func(t *testing.T) {
		entry := Entry{CRC: 0xCAFEBABE, NumOverrideRecords: 100}
		if err := cache.Set(ctx, "key1", entry); err != nil {
			t.Errorf("Set() error = %v", err)
		}

		result, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Errorf("Get() error = %v", err)
		}
		if result != entry {
			t.Errorf("Get() = %+v, want %+v", result, entry)
		}
	})
}

func TestCache_Expiration(t *testing.T) {
	tempDir := t.TempDir()
	cache, err := New(Config{
		DBPath: filepath.Join(tempDir, "test.db"),
		TTL:    50 * time.Millisecond, // Very short TTL for testing
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	entry := Entry{CRC: 1, NumOverrideRecords: 1}

	if err := cache.Set(ctx, "expiring", entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Should be retrievable immediately
	if _, err := cache.Get(ctx, "expiring"); err != nil {
		t.Errorf("Get() immediate error = %v", err)
	}

	// Wait for expiration
	time.Sleep(100 * time.Millisecond)

	// Should be expired now
	if _, err := cache.Get(ctx, "expiring"); err != ErrExpired {
		t.Errorf("Get() after expiration error = %v, want %v", err, ErrExpired)
	}
}

func TestCache_SetWithTTL(t *testing.T) {
	tempDir := t.TempDir()
	cache, err := New(Config{
		DBPath: filepath.Join(tempDir, "test.db"),
		TTL:    time.Hour, // Long default TTL
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	entry := Entry{CRC: 7, NumOverrideRecords: 3}

	// Set with short custom TTL
	if err := cache.SetWithTTL(ctx, "custom_ttl", entry, 50*time.Millisecond); err != nil {
		t.Fatalf("SetWithTTL() error = %v", err)
	}

	// Should be retrievable immediately
	if _, err := cache.Get(ctx, "custom_ttl"); err != nil {
		t.Errorf("Get() immediate error = %v", err)
	}

	// Wait for expiration
	time.Sleep(100 * time.Millisecond)

	// Should be expired now
	if _, err := cache.Get(ctx, "custom_ttl"); err != ErrExpired {
		t.Errorf("Get() after expiration error = %v, want %v", err, ErrExpired)
	}
}

func TestCache_Delete(t *testing.T) {
	tempDir := t.TempDir()
	cache, err := New(Config{
		DBPath: filepath.Join(tempDir, "test.db"),
		TTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	entry := Entry{CRC: 9, NumOverrideRecords: 2}

	if err := cache.Set(ctx, "to_delete", entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := cache.Delete(ctx, "to_delete"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}

	if _, err := cache.Get(ctx, "to_delete"); err != ErrNotFound {
		t.Errorf("Get() after delete error = %v, want %v", err, ErrNotFound)
	}
}

func TestCache_Cleanup(t *testing.T) {
	tempDir := t.TempDir()
	cache, err := New(Config{
		DBPath: filepath.Join(tempDir, "test.db"),
		TTL:    50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	entry := Entry{CRC: 3, NumOverrideRecords: 1}

	if err := cache.Set(ctx, "entry1", entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cache.Set(ctx, "entry2", entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Wait for expiration
	time.Sleep(100 * time.Millisecond)

	if err := cache.Cleanup(ctx); err != nil {
		t.Errorf("Cleanup() error = %v", err)
	}

	// Entries should be gone (not just expired)
	if _, err := cache.Get(ctx, "entry1"); err != ErrNotFound {
		t.Errorf("Get() after cleanup error = %v, want %v", err, ErrNotFound)
	}
}

func TestCache_CreateDirectory(t *testing.T) {
	tempDir := t.TempDir()
	nestedPath := filepath.Join(tempDir, "nested", "deep", "cache.db")

	cache, err := New(Config{
		DBPath: nestedPath,
		TTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cache.Close()

	// Verify directory was created
	dir := filepath.Dir(nestedPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("Directory %s was not created", dir)
	}
}
