package archive

import (
	"archive/zip"
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	errs "eaafetch/pkg/errors"
	"eaafetch/pkg/gallery"
	"eaafetch/pkg/logger"
	"eaafetch/pkg/retry"
	"eaafetch/pkg/storage"

	"golang.org/x/crypto/blake2b"
)

// DefaultChunkSize is the size of a single write while streaming an archive
const DefaultChunkSize = 100000

// Opener opens the body of a binary resource
type Opener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// File is one downloaded archive waiting for extraction
type File struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// Ingestor downloads archives into the output root and unpacks them there
type Ingestor struct {
	store     *storage.Manager
	opener    Opener
	chunkSize int
	retry     *retry.Config
	logger    logger.Logger
}

// Option customizes an Ingestor
type Option func(*Ingestor)

// WithChunkSize bounds the size of each write to disk
func WithChunkSize(n int) Option {
	return func(i *Ingestor) {
		if n > 0 {
			i.chunkSize = n
		}
	}
}

// WithRetry retries a download whose body failed mid-stream
func WithRetry(cfg *retry.Config) Option {
	return func(i *Ingestor) { i.retry = cfg }
}

// NewIngestor creates an ingestor writing through store
func NewIngestor(store *storage.Manager, opener Opener, log logger.Logger, opts ...Option) *Ingestor {
	if log == nil {
		log = logger.GetLogger()
	}
	i := &Ingestor{
		store:     store,
		opener:    opener,
		chunkSize: DefaultChunkSize,
		retry:     &retry.Config{MaxAttempts: 1},
		logger:    log,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Download streams the archive at directURL into destDir. The file is named
// after the parent path segment of downloadPageRef and only gets its final
// name once the body has been read completely; an interrupted download keeps
// its ".part" file.
func (i *Ingestor) Download(ctx context.Context, directURL, downloadPageRef, destDir string) (*File, error) {
	name, err := gallery.ArchiveName(downloadPageRef)
	if err != nil {
		return nil, err
	}
	finalPath := filepath.Join(destDir, name+".zip")

	return retry.DoWithResult(ctx, func(ctx context.Context) (*File, error) {
		return i.download(ctx, directURL, name, finalPath)
	}, i.retry)
}

func (i *Ingestor) download(ctx context.Context, directURL, name, finalPath string) (*File, error) {
	start := time.Now()
	body, err := i.opener.Open(ctx, directURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	out, err := i.store.CreatePartial(finalPath)
	if err != nil {
		return nil, err
	}

	digest, _ := blake2b.New256(nil)
	size, err := copyChunks(ctx, out, digest, body, i.chunkSize)
	closeErr := out.Close()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.NewFetchError(directURL, 0, fmt.Errorf("reading archive body: %w", err))
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close archive file: %w", closeErr)
	}

	if err := i.store.Commit(finalPath); err != nil {
		return nil, err
	}

	i.logger.DebugWithFields("Archive downloaded", map[string]interface{}{
		"archive":  name,
		"size":     size,
		"duration": time.Since(start),
	})

	return &File{
		Name:   name,
		Path:   finalPath,
		Size:   size,
		Digest: hex.EncodeToString(digest.Sum(nil)),
	}, nil
}

// copyChunks copies src to dst and h in reads of at most chunkSize bytes
func copyChunks(ctx context.Context, dst io.Writer, h hash.Hash, src io.Reader, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			h.Write(buf[:n])
			written += int64(n)
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// Local describes an archive already present in destDir, left behind by an
// earlier run whose extraction failed.
func (i *Ingestor) Local(downloadPageRef, destDir string) (*File, bool) {
	name, err := gallery.ArchiveName(downloadPageRef)
	if err != nil {
		return nil, false
	}
	p := filepath.Join(destDir, name+".zip")
	info, err := i.store.Fs().Stat(p)
	if err != nil || info.IsDir() {
		return nil, false
	}
	return &File{Name: name, Path: p, Size: info.Size()}, true
}

// ExtractAndDiscard unpacks every member of the archive into destDir,
// preserving relative paths, and deletes the archive. When any member fails
// the archive is kept and an extract error is returned.
func (i *Ingestor) ExtractAndDiscard(archive *File, destDir string) ([]string, error) {
	files, err := i.extract(archive.Path, destDir)
	if err != nil {
		return files, errs.NewExtractError(archive.Path, err)
	}

	if err := i.store.Fs().Remove(archive.Path); err != nil {
		return files, fmt.Errorf("failed to delete archive %s: %w", archive.Path, err)
	}

	i.logger.DebugWithFields("Archive extracted and removed", map[string]interface{}{
		"archive": archive.Name,
		"files":   len(files),
	})
	return files, nil
}

func (i *Ingestor) extract(archivePath, destDir string) ([]string, error) {
	fs := i.store.Fs()

	f, err := fs.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("reading zip directory: %w", err)
	}

	var files []string
	for _, member := range zr.File {
		rel, err := memberPath(member.Name)
		if err != nil {
			return files, err
		}
		target := filepath.Join(destDir, rel)

		if member.FileInfo().IsDir() {
			if err := fs.MkdirAll(target, 0755); err != nil {
				return files, err
			}
			continue
		}

		if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return files, err
		}
		if err := i.extractMember(member, target); err != nil {
			return files, fmt.Errorf("extracting %s: %w", member.Name, err)
		}
		files = append(files, rel)
	}
	return files, nil
}

func (i *Ingestor) extractMember(member *zip.File, target string) error {
	rc, err := member.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := i.store.Fs().Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// memberPath validates a zip member name and returns it as a relative OS path.
// Absolute names and names escaping the destination are rejected.
func memberPath(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("illegal member path %q", name)
	}
	return filepath.FromSlash(clean), nil
}
