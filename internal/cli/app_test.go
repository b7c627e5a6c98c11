package cli

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/genofetch/internal/config"
	"github.com/dmitrijs2005/genofetch/internal/logging"
)

func testApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.OutputDir = t.TempDir()

	out := &bytes.Buffer{}
	app := NewApp(cfg, logging.NewDiscard())
	app.out = out
	app.in = bufio.NewReader(strings.NewReader(""))
	return app, out
}

func TestSplitArgs(t *testing.T) {
	flagArgs, positionals := splitArgs(
		[]string{"-privkey", "my.sec", "file-1", "-o", "outdir", "-recipient=peer.pub", "file-2"},
		[]string{"-privkey", "-recipient"},
	)
	require.Equal(t, []string{"-privkey", "my.sec", "-recipient=peer.pub"}, flagArgs)
	require.Equal(t, []string{"file-1", "file-2"}, positionals)
}

func TestRun_UnknownCommand(t *testing.T) {
	app, out := testApp(t)
	err := app.Run(context.Background(), []string{"upload"})
	require.ErrorContains(t, err, "unknown command")
	require.Contains(t, out.String(), "usage:")
}

func TestRun_NoCommand(t *testing.T) {
	app, _ := testApp(t)
	err := app.Run(context.Background(), nil)
	require.Error(t, err)
}

func TestKeygenEncryptDecrypt(t *testing.T) {
	app, out := testApp(t)
	ctx := context.Background()
	dir := t.TempDir()

	prefix := filepath.Join(dir, "mykey")
	require.NoError(t, app.Run(ctx, []string{"keygen", "-prefix", prefix}))
	require.FileExists(t, prefix+".pub")
	require.FileExists(t, prefix+".sec")
	require.Contains(t, out.String(), "wrote")

	// refuses to clobber existing keys
	require.ErrorContains(t, app.Run(ctx, []string{"keygen", "-prefix", prefix}), "already exists")

	srcPath := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("payload"), 0o600))

	require.NoError(t, app.Run(ctx, []string{
		"encrypt", "-privkey", prefix + ".sec", "-recipient", prefix + ".pub", srcPath,
	}))
	require.FileExists(t, srcPath+".c4gh")

	require.NoError(t, app.Run(ctx, []string{
		"decrypt", "-privkey", prefix + ".sec", srcPath + ".c4gh",
	}))

	plain, err := os.ReadFile(filepath.Join(app.cfg.OutputDir, "data.txt"))
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), plain)
}

func TestDownload_RequiresFileIDs(t *testing.T) {
	app, _ := testApp(t)
	err := app.Run(context.Background(), []string{"download"})
	require.ErrorContains(t, err, "no file ids")
}

func TestDecrypt_MissingKeyFile(t *testing.T) {
	app, _ := testApp(t)
	err := app.Run(context.Background(), []string{"decrypt", "-privkey", "/nonexistent/key.sec", "some.c4gh"})
	require.Error(t, err)
}
