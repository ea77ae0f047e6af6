package remote

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func writeCatalogFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "buttons.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCatalog(t *testing.T) {
	play := base64.StdEncoding.EncodeToString([]byte{0x26, 0x00, 0x50})
	pause := base64.StdEncoding.EncodeToString([]byte{0x26, 0x00, 0x51})
	path := writeCatalogFile(t, t.TempDir(), `
[buttons]
play = "`+play+`"
pause = "`+pause+`"
`)

	c, err := LoadCatalog(path, zap.NewNop())
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}

	code, ok := c.Code("play")
	if !ok || len(code) != 3 || code[2] != 0x50 {
		t.Errorf("Code(play) = %x, %v", code, ok)
	}
	if _, ok := c.Code("stop"); ok {
		t.Error("Code(stop) should be missing")
	}

	ids := c.Buttons()
	if len(ids) != 2 || ids[0] != "pause" || ids[1] != "play" {
		t.Errorf("Buttons() = %v, want sorted [pause play]", ids)
	}
}

func TestLoadCatalogBadBase64(t *testing.T) {
	path := writeCatalogFile(t, t.TempDir(), `
[buttons]
play = "not//valid!!"
`)
	if _, err := LoadCatalog(path, zap.NewNop()); err == nil {
		t.Error("LoadCatalog() should reject codes that are not base64")
	}
}

func TestLoadCatalogEmptyCode(t *testing.T) {
	path := writeCatalogFile(t, t.TempDir(), `
[buttons]
play = ""
`)
	if _, err := LoadCatalog(path, zap.NewNop()); err == nil {
		t.Error("LoadCatalog() should reject empty codes")
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.toml"), zap.NewNop()); err == nil {
		t.Error("LoadCatalog() should fail for a missing file")
	}
}

func TestReloadKeepsPreviousOnFailure(t *testing.T) {
	blob := base64.StdEncoding.EncodeToString([]byte{0x01})
	dir := t.TempDir()
	path := writeCatalogFile(t, dir, "[buttons]\nplay = \""+blob+"\"\n")

	c, err := LoadCatalog(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	writeCatalogFile(t, dir, "this is not toml [[[")
	c.reload()

	if _, ok := c.Code("play"); !ok {
		t.Error("failed reload must keep the previous codes")
	}
}

func TestWatchPicksUpChanges(t *testing.T) {
	blob := base64.StdEncoding.EncodeToString([]byte{0x01})
	dir := t.TempDir()
	path := writeCatalogFile(t, dir, "[buttons]\nplay = \""+blob+"\"\n")

	c, err := LoadCatalog(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	stop, err := c.Watch()
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer stop()

	writeCatalogFile(t, dir, "[buttons]\nplay = \""+blob+"\"\nstop = \""+blob+"\"\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.Code("stop"); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("watcher did not pick up the new button")
}
