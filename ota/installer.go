package ota

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Installer replaces the firmware binary at Path. The image is written
// next to it first and only renamed into place once its checksum
// matches; the previous binary is kept as Path+".prev".
type Installer struct {
	Path string
}

func NewInstaller(path string) *Installer {
	return &Installer{Path: path}
}

func (i *Installer) partPath() string { return i.Path + ".part" }
func (i *Installer) prevPath() string { return i.Path + ".prev" }

// Install reads exactly size bytes from r. progress, if not nil, is called
// with the number of bytes written so far. Errors are *CodedError values.
func (i *Installer) Install(r io.Reader, size int64, sum string, progress func(written int64)) (err error) {
	want, err := hex.DecodeString(strings.ToLower(sum))
	if err != nil || len(want) != sha256.Size {
		return codedf(BeginError, "invalid sha256 %q", sum)
	}
	f, err := os.OpenFile(i.partPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return codedf(BeginError, "create %s: %w", i.partPath(), err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(i.partPath())
		}
	}()

	h := sha256.New()
	w := &progressWriter{w: io.MultiWriter(f, h), report: progress}
	if _, err := io.CopyN(w, r, size); err != nil {
		return codedf(ReceiveError, "receive image: %w", err)
	}
	if got := h.Sum(nil); !bytes.Equal(got, want) {
		return codedf(EndError, "checksum mismatch: got %x", got)
	}
	if err := f.Sync(); err != nil {
		return codedf(EndError, "sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return codedf(EndError, "close: %w", err)
	}

	hadPrevious := true
	if err := os.Rename(i.Path, i.prevPath()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return codedf(EndError, "keep previous firmware: %w", err)
		}
		hadPrevious = false
	}
	if err := os.Rename(i.partPath(), i.Path); err != nil {
		if hadPrevious {
			if rerr := os.Rename(i.prevPath(), i.Path); rerr != nil {
				slog.Error("Failed to restore previous firmware", "error", rerr)
			}
		}
		return codedf(EndError, "activate firmware: %w", err)
	}
	slog.Info("Installed firmware", "path", i.Path, "size", size)
	return nil
}

// Rollback puts the previous firmware back in place.
func (i *Installer) Rollback() error {
	if err := os.Rename(i.prevPath(), i.Path); err != nil {
		return fmt.Errorf("rollback %s: %w", i.Path, err)
	}
	return nil
}

type progressWriter struct {
	w       io.Writer
	written int64
	report  func(int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.report != nil {
		p.report(p.written)
	}
	return n, err
}
