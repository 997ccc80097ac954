package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	errs "eaafetch/pkg/errors"
	"eaafetch/pkg/fetch"
	"eaafetch/pkg/logger"
	"eaafetch/pkg/ratelimit"
	"eaafetch/pkg/storage"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	name string
	body string
}

func buildZip(t *testing.T, members ...member) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, m := range members {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// staticOpener serves fixed bodies keyed by URL
type staticOpener map[string][]byte

func (s staticOpener) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	body, ok := s[url]
	if !ok {
		return nil, errs.NewFetchError(url, http.StatusNotFound, nil)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// failingReader returns data and then a network error
type failingReader struct {
	data []byte
	read bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.read {
		f.read = true
		return copy(p, f.data), nil
	}
	return 0, errors.New("connection reset by peer")
}

func (f *failingReader) Close() error { return nil }

type brokenOpener struct{}

func (brokenOpener) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	return &failingReader{data: []byte("PK partial")}, nil
}

func newTestIngestor(opener Opener, opts ...Option) (*Ingestor, *storage.Manager) {
	store := storage.NewManagerWithFs(afero.NewMemMapFs(), "/out")
	store.CreateRoot(false)
	return NewIngestor(store, opener, logger.NewTestLogger(), opts...), store
}

func TestDownloadAndExtract(t *testing.T) {
	data := buildZip(t,
		member{"EAA1_lake.jpg", "jpeg-bytes"},
		member{"readme/notes.txt", "hello"},
	)
	ingestor, store := newTestIngestor(staticOpener{"http://files/lake.zip": data}, WithChunkSize(7))

	archive, err := ingestor.Download(context.Background(), "http://files/lake.zip",
		"http://gallery/media/lake-eyre/download", "/out")
	require.NoError(t, err)

	assert.Equal(t, "lake-eyre", archive.Name)
	assert.Equal(t, filepath.Join("/out", "lake-eyre.zip"), archive.Path)
	assert.Equal(t, int64(len(data)), archive.Size)
	assert.Len(t, archive.Digest, 64)
	assert.True(t, store.Exists(archive.Path))
	assert.False(t, store.Exists(archive.Path+storage.PartialSuffix))

	files, err := ingestor.ExtractAndDiscard(archive, "/out")
	require.NoError(t, err)
	assert.Equal(t, []string{"EAA1_lake.jpg", filepath.Join("readme", "notes.txt")}, files)

	assert.False(t, store.Exists(archive.Path), "archive must be deleted after extraction")
	content, err := afero.ReadFile(store.Fs(), "/out/EAA1_lake.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(content))
	content, err = afero.ReadFile(store.Fs(), "/out/readme/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestDownloadDigestIsStable(t *testing.T) {
	data := buildZip(t, member{"a.jpg", "a"})
	opener := staticOpener{"http://files/a.zip": data}

	small, _ := newTestIngestor(opener, WithChunkSize(3))
	large, _ := newTestIngestor(opener, WithChunkSize(1<<20))

	a, err := small.Download(context.Background(), "http://files/a.zip", "http://g/x/a/dl", "/out")
	require.NoError(t, err)
	b, err := large.Download(context.Background(), "http://files/a.zip", "http://g/x/a/dl", "/out")
	require.NoError(t, err)
	assert.Equal(t, a.Digest, b.Digest)
}

func TestDownloadFetchError(t *testing.T) {
	ingestor, store := newTestIngestor(staticOpener{})

	_, err := ingestor.Download(context.Background(), "http://files/missing.zip", "http://g/x/missing/dl", "/out")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrFetch)
	assert.False(t, store.Exists("/out/missing.zip"))
}

func TestDownloadKeepsPartialOnStreamFailure(t *testing.T) {
	ingestor, store := newTestIngestor(brokenOpener{})

	_, err := ingestor.Download(context.Background(), "http://files/b.zip", "http://g/x/b/dl", "/out")
	require.Error(t, err)
	assert.True(t, errs.IsRetryable(err))
	assert.False(t, store.Exists("/out/b.zip"))
	assert.True(t, store.Exists("/out/b.zip"+storage.PartialSuffix))
}

func TestDownloadInvalidPageRef(t *testing.T) {
	ingestor, _ := newTestIngestor(staticOpener{})

	_, err := ingestor.Download(context.Background(), "http://files/a.zip", "http://g/download", "/out")
	assert.ErrorIs(t, err, errs.ErrParse)
}

func TestDownloadThroughHTTP(t *testing.T) {
	data := buildZip(t, member{"x.jpg", "x"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/x.zip" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(data)
	}))
	defer server.Close()

	client := fetch.NewClient(5*time.Second, ratelimit.Unlimited{}, logger.NewTestLogger())
	ingestor, store := newTestIngestor(client)

	archive, err := ingestor.Download(context.Background(), server.URL+"/files/x.zip", server.URL+"/media/x/download", "/out")
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), archive.Size)

	_, err = ingestor.Download(context.Background(), server.URL+"/files/y.zip", server.URL+"/media/y/download", "/out")
	var fe *errs.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.Code)
	assert.False(t, store.Exists("/out/y.zip"))
}

func TestExtractKeepsArchiveOnFailure(t *testing.T) {
	ingestor, store := newTestIngestor(nil)
	fs := store.Fs()

	require.NoError(t, afero.WriteFile(fs, "/out/corrupt.zip", []byte("definitely not a zip"), 0644))
	_, err := ingestor.ExtractAndDiscard(&File{Name: "corrupt", Path: "/out/corrupt.zip"}, "/out")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrExtract)
	assert.True(t, store.Exists("/out/corrupt.zip"), "archive must survive a failed extraction")
}

func TestExtractRejectsEscapingMembers(t *testing.T) {
	ingestor, store := newTestIngestor(nil)
	fs := store.Fs()

	data := buildZip(t, member{"ok.jpg", "ok"}, member{"../../etc/evil", "x"})
	require.NoError(t, afero.WriteFile(fs, "/out/slip.zip", data, 0644))

	_, err := ingestor.ExtractAndDiscard(&File{Name: "slip", Path: "/out/slip.zip"}, "/out")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrExtract)
	assert.True(t, store.Exists("/out/slip.zip"))
	assert.False(t, store.Exists("/etc/evil"))
}

func TestLocal(t *testing.T) {
	ingestor, store := newTestIngestor(nil)
	require.NoError(t, afero.WriteFile(store.Fs(), "/out/left.zip", []byte("zip"), 0644))

	archive, ok := ingestor.Local("http://g/media/left/download", "/out")
	require.True(t, ok)
	assert.Equal(t, "left", archive.Name)
	assert.Equal(t, int64(3), archive.Size)

	_, ok = ingestor.Local("http://g/media/other/download", "/out")
	assert.False(t, ok)
}

func TestMemberPath(t *testing.T) {
	valid := map[string]string{
		"a.jpg":             "a.jpg",
		"EAA4_Final_JPGS/b": filepath.Join("EAA4_Final_JPGS", "b"),
		"./c/../d.jpg":      "d.jpg",
		`win\e.jpg`:         filepath.Join("win", "e.jpg"),
	}
	for name, want := range valid {
		got, err := memberPath(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}

	for _, name := range []string{"/etc/passwd", "../x", "a/../../x", ".", ""} {
		_, err := memberPath(name)
		assert.Error(t, err, name)
	}
}
