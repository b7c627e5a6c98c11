// Package cli implements the command-line front end: argument handling,
// interactive prompts for credentials and dispatch into the transfer service.
package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/genofetch/internal/api"
	"github.com/dmitrijs2005/genofetch/internal/config"
	"github.com/dmitrijs2005/genofetch/internal/crypt4gh"
	"github.com/dmitrijs2005/genofetch/internal/logging"
	"github.com/dmitrijs2005/genofetch/internal/transfer"
)

const usage = `usage: genofetch <command> [flags]

commands:
  download  -workpackage <id> [-pubkey key.pub] [-privkey key.sec] <file-id>...
  decrypt   [-privkey key.sec] <file.c4gh>...
  encrypt   [-privkey key.sec] -recipient <key.pub> <file>
  keygen    [-prefix key]
`

// App holds everything a command run needs.
type App struct {
	cfg *config.Config
	log logging.Logger
	in  *bufio.Reader
	out io.Writer

	// newService is a test seam around transfer.New.
	newService func(ctx context.Context, cfg *config.Config, creds transfer.Credentials, log logging.Logger) (*transfer.Service, error)
}

func NewApp(cfg *config.Config, log logging.Logger) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		in:         bufio.NewReader(os.Stdin),
		out:        os.Stdout,
		newService: transfer.New,
	}
}

// Run dispatches to the named command. The first argument selects the
// command; the rest are its flags and positionals.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("no command given")
	}

	switch args[0] {
	case "download":
		return a.runDownload(ctx, args[1:])
	case "decrypt":
		return a.runDecrypt(ctx, args[1:])
	case "encrypt":
		return a.runEncrypt(ctx, args[1:])
	case "keygen":
		return a.runKeygen(args[1:])
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *App) runDownload(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	pubPath := fs.String("pubkey", "key.pub", "Crypt4GH public key file")
	privPath := fs.String("privkey", "key.sec", "Crypt4GH private key file")
	workPackage := fs.String("workpackage", "", "work package id")

	flagArgs, fileIDs := splitArgs(args, []string{"-pubkey", "-privkey", "-workpackage"})
	if err := fs.Parse(flagArgs); err != nil {
		return err
	}
	if len(fileIDs) == 0 {
		return fmt.Errorf("no file ids given")
	}

	publicKey, err := crypt4gh.LoadPublicKey(*pubPath)
	if err != nil {
		return err
	}
	privateKey, err := crypt4gh.LoadPrivateKey(*privPath)
	if err != nil {
		return err
	}

	workPackageID := *workPackage
	if workPackageID == "" {
		if workPackageID, err = GetSimpleText(a.in, "Work package id", a.out); err != nil {
			return err
		}
	}
	token, err := GetSecret("Work package access token", a.out)
	if err != nil {
		return err
	}

	svc, err := a.newService(ctx, a.cfg, transfer.Credentials{
		WorkPackageID: workPackageID,
		AccessToken:   strings.TrimSpace(string(token)),
		PublicKey:     publicKey,
		PrivateKey:    privateKey,
	}, a.log)
	if err != nil {
		return err
	}
	defer svc.Close()

	if endpoint := os.Getenv("GENOFETCH_S3_ENDPOINT"); endpoint != "" {
		presigner, err := api.NewS3Presigner(ctx, endpoint)
		if err != nil {
			return err
		}
		svc.UseS3Presigner(presigner)
	}

	return svc.DownloadAll(ctx, fileIDs)
}

func (a *App) runDecrypt(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ContinueOnError)
	privPath := fs.String("privkey", "key.sec", "Crypt4GH private key file")

	flagArgs, files := splitArgs(args, []string{"-privkey"})
	if err := fs.Parse(flagArgs); err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files given")
	}

	privateKey, err := crypt4gh.LoadPrivateKey(*privPath)
	if err != nil {
		return err
	}

	for _, file := range files {
		out, err := transfer.DecryptFile(ctx, a.log, file, a.cfg.OutputDir, privateKey)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "decrypted %s -> %s\n", file, out)
	}
	return nil
}

func (a *App) runEncrypt(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	privPath := fs.String("privkey", "key.sec", "Crypt4GH private key file")
	recipientPath := fs.String("recipient", "", "recipient public key file")

	flagArgs, files := splitArgs(args, []string{"-privkey", "-recipient"})
	if err := fs.Parse(flagArgs); err != nil {
		return err
	}
	if *recipientPath == "" {
		return fmt.Errorf("no recipient key given")
	}
	if len(files) != 1 {
		return fmt.Errorf("exactly one input file expected")
	}

	privateKey, err := crypt4gh.LoadPrivateKey(*privPath)
	if err != nil {
		return err
	}
	recipient, err := crypt4gh.LoadPublicKey(*recipientPath)
	if err != nil {
		return err
	}

	out, err := transfer.EncryptFile(ctx, a.log, files[0], "", privateKey, recipient)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "encrypted %s -> %s\n", files[0], out)
	return nil
}

func (a *App) runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	prefix := fs.String("prefix", "key", "output path prefix")

	flagArgs, _ := splitArgs(args, []string{"-prefix"})
	if err := fs.Parse(flagArgs); err != nil {
		return err
	}

	pubPath, privPath := *prefix+".pub", *prefix+".sec"
	for _, p := range []string{pubPath, privPath} {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("key file %s already exists", p)
		}
	}

	public, private, err := crypt4gh.GenerateKeyPair()
	if err != nil {
		return err
	}
	if err := crypt4gh.SavePublicKey(pubPath, public); err != nil {
		return err
	}
	if err := crypt4gh.SavePrivateKey(privPath, private); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s and %s\n", pubPath, privPath)
	return nil
}

// splitArgs separates a command's own flags (with values) from positional
// arguments. Flags not in ownFlags belong to the global config layer and are
// dropped together with their values.
func splitArgs(args []string, ownFlags []string) (flagArgs, positionals []string) {
	own := make(map[string]struct{}, len(ownFlags))
	for _, f := range ownFlags {
		own[f] = struct{}{}
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			positionals = append(positionals, arg)
			continue
		}

		name := arg
		hasValue := strings.Contains(arg, "=")
		if hasValue {
			name = strings.SplitN(arg, "=", 2)[0]
		}
		_, mine := own[name]
		if mine {
			flagArgs = append(flagArgs, arg)
		}
		if !hasValue && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			if mine {
				flagArgs = append(flagArgs, args[i+1])
			}
			i++
		}
	}
	return flagArgs, positionals
}
