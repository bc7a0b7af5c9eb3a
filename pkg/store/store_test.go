package store

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Kevin-Rudy/pingdeck/pkg/core"
)

// 编译期接口检查
var (
	_ core.Store = (*FileStore)(nil)
	_ core.Store = (*MemoryStore)(nil)
	_ core.Store = (*SQLiteStore)(nil)
)

func sampleEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{ID: "c1", Name: "Home Router", Address: "192.168.1.1", Custom: true},
		{ID: "c2", Name: "NAS", Address: "nas.local", Custom: true},
	}
}

// exerciseStore 对任意Store实现运行相同的读写检查
func exerciseStore(t *testing.T, s core.Store) {
	t.Helper()

	var missing []string
	found, err := s.Get("favorites", &missing)
	if err != nil {
		t.Fatalf("Get on missing key failed: %v", err)
	}
	if found {
		t.Error("Expected missing key to report not found")
	}

	if err := s.Set("custom_servers", sampleEndpoints()); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set("favorites", []string{"us-e", "c1"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var customs []core.Endpoint
	found, err = s.Get("custom_servers", &customs)
	if err != nil || !found {
		t.Fatalf("Get custom_servers: found=%v err=%v", found, err)
	}
	if len(customs) != 2 || customs[0].ID != "c1" || customs[1].Address != "nas.local" || !customs[0].Custom {
		t.Errorf("Unexpected customs round trip: %+v", customs)
	}

	var favorites []string
	if _, err := s.Get("favorites", &favorites); err != nil {
		t.Fatalf("Get favorites failed: %v", err)
	}
	if len(favorites) != 2 || favorites[0] != "us-e" || favorites[1] != "c1" {
		t.Errorf("Unexpected favorites: %v", favorites)
	}

	// 覆盖写入
	if err := s.Set("favorites", []string{}); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	favorites = nil
	if _, err := s.Get("favorites", &favorites); err != nil {
		t.Fatalf("Get after overwrite failed: %v", err)
	}
	if len(favorites) != 0 {
		t.Errorf("Expected empty favorites after overwrite, got %v", favorites)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCorruptValue(t *testing.T) {
	s := NewMemoryStore()
	s.SetRaw("favorites", []byte("{not: [valid"))

	var favorites []string
	if _, err := s.Get("favorites", &favorites); err == nil {
		t.Error("Expected decode error for corrupt value")
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.yaml")
	s := NewFileStore(path)
	exerciseStore(t, s)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected store file to exist: %v", err)
	}

	// 新实例从磁盘读取
	reopened := NewFileStore(path)
	var customs []core.Endpoint
	found, err := reopened.Get("custom_servers", &customs)
	if err != nil || !found {
		t.Fatalf("Reopened Get: found=%v err=%v", found, err)
	}
	if len(customs) != 2 {
		t.Errorf("Expected 2 customs after reopen, got %d", len(customs))
	}
}

func TestFileStorePreservesOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	a := NewFileStore(path)
	b := NewFileStore(path)

	if err := a.Set("custom_servers", sampleEndpoints()); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := b.Set("favorites", []string{"eu"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "custom_servers") || !strings.Contains(text, "favorites") {
		t.Errorf("Expected both keys in file, got:\n%s", text)
	}
}

func TestFileStoreNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(filepath.Join(dir, "store.yaml"))
	for i := 0; i < 5; i++ {
		if err := s.Set("favorites", []string{"us-e"}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("Temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	if err := os.WriteFile(path, []byte("custom_servers: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}

	var customs []core.Endpoint
	if _, err := NewFileStore(path).Get("custom_servers", &customs); err == nil {
		t.Error("Expected parse error for corrupt file")
	}
}

func TestDefaultPathHonorsXDG(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	want := filepath.Join(base, "pingdeck", "store.yaml")
	if got := DefaultPath(); got != want {
		t.Errorf("DefaultPath() = %q, want %q", got, want)
	}
	if got := NewFileStore("").Path(); got != want {
		t.Errorf("NewFileStore(\"\").Path() = %q, want %q", got, want)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "pingdeck.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()

	exerciseStore(t, s)
}

func TestSQLiteRunRecords(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "pingdeck.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	first := RunRecord{
		EndpointID: "us-e", Address: "dynamodb.us-east-1.amazonaws.com",
		StartedAt: base, EndedAt: base.Add(20 * time.Second),
		Samples: 3, Timeouts: 1, AvgMs: 25, MinMs: 20, MaxMs: 30, LossPct: 25,
	}
	second := RunRecord{
		EndpointID: "us-e", Address: "dynamodb.us-east-1.amazonaws.com",
		StartedAt: base.Add(time.Minute), EndedAt: base.Add(time.Minute + time.Second),
		Stopped: true, Timeouts: 2, AvgMs: math.NaN(), MinMs: math.NaN(), MaxMs: math.NaN(), LossPct: 100,
	}
	for _, r := range []RunRecord{first, second} {
		if err := s.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}

	runs, err := s.RecentRuns(ctx, "us-e", 10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if !runs[0].Stopped || !math.IsNaN(runs[0].AvgMs) {
		t.Errorf("Expected newest run first with absent latency, got %+v", runs[0])
	}
	if runs[1].AvgMs != 25 || runs[1].Samples != 3 || runs[1].LossPct != 25 {
		t.Errorf("Unexpected older run: %+v", runs[1])
	}

	other, err := s.RecentRuns(ctx, "eu", 10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected no runs for eu, got %d", len(other))
	}
}
