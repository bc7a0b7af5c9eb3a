package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
)

// runCommand 运行完整的CLI并返回标准输出
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := createCliApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{AppName}, args...))
	return out.String(), err
}

func TestAddRemoveFavoritePersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	flags := []string{"--store", StoreFile, "--store-path", path}

	out, err := runCommand(t, append(flags, "add", "Home", "192.168.1.1")...)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "custom-") {
		t.Fatalf("expected generated id in output, got %q", out)
	}
	id := strings.Fields(strings.TrimPrefix(out, "已添加 "))[0]

	if _, err := runCommand(t, append(flags, "fav", "eu")...); err != nil {
		t.Fatalf("fav: %v", err)
	}

	out, err = runCommand(t, append(flags, "list")...)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "*") {
		t.Errorf("list missing persisted changes:\n%s", out)
	}

	if _, err := runCommand(t, append(flags, "remove", "eu")...); err == nil {
		t.Error("removing a built-in endpoint should fail")
	}
	if _, err := runCommand(t, append(flags, "remove", id)...); err != nil {
		t.Fatalf("remove: %v", err)
	}
}

// TestMutationRefusedWhenStoreUnreadable 无法解码的存储不能被内置目标覆盖
func TestMutationRefusedWhenStoreUnreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.yaml")
	original := "custom_servers: 5\nfavorites:\n  - eu\n"
	if err := os.WriteFile(path, []byte(original), 0o600); err != nil {
		t.Fatal(err)
	}
	flags := []string{"--store", StoreFile, "--store-path", path}

	for _, args := range [][]string{
		{"add", "Home", "192.168.1.1"},
		{"fav", "us-e"},
		{"remove", "custom-1"},
	} {
		if _, err := runCommand(t, append(flags, args...)...); err == nil {
			t.Errorf("%v should be refused", args)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != original {
		t.Errorf("store was rewritten:\n%s", data)
	}

	// 只读命令仍然可用
	out, err := runCommand(t, append(flags, "list")...)
	if err != nil {
		t.Fatalf("list should still work: %v", err)
	}
	if !strings.Contains(out, "eu") {
		t.Errorf("expected built-ins in list output:\n%s", out)
	}
}
