// Package fetch obtains and unpacks package sources: HTTP downloads
// with retries and checksum verification, and archive extraction.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/mholt/archiver/v3"
	"github.com/qiniu/x/log"
)

// Download fetches rawURL into destDir under the URL's base name and
// verifies its SHA-256 checksum. An existing file with a matching
// checksum is reused without touching the network. An empty checksum
// skips verification (git-free local mirrors, snapshot tarballs).
func Download(ctx context.Context, rawURL, sum, destDir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("download %s: no file name in URL", rawURL)
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, name)

	if _, err := os.Stat(dest); err == nil {
		if sum == "" {
			return dest, nil
		}
		got, err := fileSHA256(dest)
		if err == nil && got == sum {
			log.Debugf("reusing %s (checksum ok)", dest)
			return dest, nil
		}
		log.Warnf("existing %s has wrong checksum, re-downloading", dest)
		os.Remove(dest)
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 4

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("download %s: HTTP %d", rawURL, resp.StatusCode)
	}

	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	_, err = io.Copy(f, io.TeeReader(resp.Body, h))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(part)
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}

	if sum != "" {
		if got := hex.EncodeToString(h.Sum(nil)); got != sum {
			os.Remove(part)
			return "", fmt.Errorf("checksum mismatch for %s: got %s, want %s", name, got, sum)
		}
	}
	if err := os.Rename(part, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Extract unpacks an archive into destDir and returns the source root:
// destDir itself, or the single top-level directory when the archive
// follows the usual <name>-<version>/ tarball layout.
func Extract(archivePath, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	if err := archiver.Unarchive(archivePath, destDir); err != nil {
		return "", fmt.Errorf("extract %s: %w", archivePath, err)
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(destDir, entries[0].Name()), nil
	}
	return destDir, nil
}

// Checksum returns the hex SHA-256 of a file, for recipe authoring
// (mortar init fills it in for local sources).
func Checksum(path string) (string, error) {
	return fileSHA256(path)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
