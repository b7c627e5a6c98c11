package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/genofetch/internal/crypt4gh"
	"github.com/dmitrijs2005/genofetch/internal/filex"
	"github.com/dmitrijs2005/genofetch/internal/logging"
)

// DecryptFile unpacks a downloaded .c4gh artifact into outputDir, dropping
// the suffix. The plaintext is assembled under a .part name and renamed only
// on success. The encrypted source is left untouched.
func DecryptFile(ctx context.Context, log logging.Logger, srcPath, outputDir string, privateKey [32]byte) (string, error) {
	base := filepath.Base(srcPath)
	if !strings.HasSuffix(base, EncryptedSuffix) {
		return "", fmt.Errorf("%s does not carry the %s suffix", srcPath, EncryptedSuffix)
	}

	outputDir, err := filex.EnsureDir(outputDir)
	if err != nil {
		return "", err
	}
	outPath := filepath.Join(outputDir, strings.TrimSuffix(base, EncryptedSuffix))
	if _, err := os.Stat(outPath); err == nil {
		return "", fmt.Errorf("output file %s already exists", outPath)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := filex.CreatePart(outPath)
	if err != nil {
		return "", err
	}

	n, err := crypt4gh.Decrypt(dst, src, privateKey)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		filex.Discard(outPath)
		return "", fmt.Errorf("decrypt %s: %w", srcPath, err)
	}
	if err := filex.Finish(outPath); err != nil {
		filex.Discard(outPath)
		return "", err
	}

	log.Info(ctx, "file decrypted", "source", srcPath, "output", outPath, "bytes", n)
	return outPath, nil
}

// EncryptFile writes a Crypt4GH container for srcPath addressed to
// readerPublic, placing it next to the source with the .c4gh suffix unless
// dstPath is given.
func EncryptFile(ctx context.Context, log logging.Logger, srcPath, dstPath string,
	writerPrivate, readerPublic [32]byte) (string, error) {
	if dstPath == "" {
		dstPath = srcPath + EncryptedSuffix
	}
	if _, err := os.Stat(dstPath); err == nil {
		return "", fmt.Errorf("output file %s already exists", dstPath)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := filex.CreatePart(dstPath)
	if err != nil {
		return "", err
	}

	err = crypt4gh.Encrypt(dst, src, writerPrivate, readerPublic)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		filex.Discard(dstPath)
		return "", fmt.Errorf("encrypt %s: %w", srcPath, err)
	}
	if err := filex.Finish(dstPath); err != nil {
		filex.Discard(dstPath)
		return "", err
	}

	log.Info(ctx, "file encrypted", "source", srcPath, "output", dstPath)
	return dstPath, nil
}
