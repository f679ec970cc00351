package samples

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/aiff"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV16 writes interleaved 16-bit PCM with go-audio's encoder.
func writeWAV16(t *testing.T, path string, sampleRate, channels int, data []int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func fixtureDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeWAV16(t, filepath.Join(root, "static", "samples", "kick.wav"), 22050, 2, []int{0, 0, 16384, -16384, 32767, -32768})
	writeWAV16(t, filepath.Join(root, "static", "samples", "snare.wav"), 44100, 1, []int{1000, 2000, 3000})
	if err := os.WriteFile(filepath.Join(root, "static", "samples", "broken.wav"), []byte("not riff data at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestLoadDecodesWAV(t *testing.T) {
	repo := NewRepository(NewDirFetcher(fixtureDir(t)))
	buf, err := repo.Load(context.Background(), "/static/samples/kick.wav")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if buf.SampleRate() != 22050 || buf.NumChannels() != 2 || buf.Frames() != 3 {
		t.Fatalf("got %d Hz, %d ch, %d frames", buf.SampleRate(), buf.NumChannels(), buf.Frames())
	}
	want := [][]float32{{0, 0.5, 32767.0 / 32768}, {0, -0.5, -1}}
	for c := range want {
		for i, w := range want[c] {
			if got := buf.Channel(c)[i]; math.Abs(float64(got-w)) > 1e-6 {
				t.Fatalf("ch%d[%d] = %v, want %v", c, i, got, w)
			}
		}
	}
}

func TestLoadIsCached(t *testing.T) {
	repo := NewRepository(NewDirFetcher(fixtureDir(t)))
	ctx := context.Background()
	a, err := repo.Load(ctx, "/static/samples/snare.wav")
	if err != nil {
		t.Fatal(err)
	}
	b, err := repo.Load(ctx, "/static/samples/snare.wav")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("second load returned a different buffer")
	}
	if repo.Fetches() != 1 || repo.Len() != 1 {
		t.Fatalf("fetches = %d, cached = %d", repo.Fetches(), repo.Len())
	}
}

func TestConcurrentLoadsShareOneFetch(t *testing.T) {
	root := fixtureDir(t)
	dir := NewDirFetcher(root)
	var calls atomic.Int32
	slow := FetcherFunc(func(ctx context.Context, path string) ([]byte, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return dir.Fetch(ctx, path)
	})
	repo := NewRepository(slow)

	const n = 16
	var wg sync.WaitGroup
	bufs := make([]any, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bufs[i], errs[i] = repo.Load(context.Background(), "/static/samples/kick.wav")
		}()
	}
	wg.Wait()
	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("load %d: %v", i, errs[i])
		}
		if bufs[i] != bufs[0] {
			t.Fatalf("load %d returned a different buffer", i)
		}
	}
	if calls.Load() != 1 || repo.Fetches() != 1 {
		t.Fatalf("fetcher called %d times, counted %d, want 1", calls.Load(), repo.Fetches())
	}
}

func TestLoadErrors(t *testing.T) {
	root := fixtureDir(t)
	cases := []struct {
		name     string
		path     string
		sentinel error
		cause    error
		fetches  int64
	}{
		{"missing file", "/static/samples/nope.wav", ErrAssetFetch, fs.ErrNotExist, 1},
		{"traversal", "/static/../../etc/passwd.wav", ErrAssetFetch, ErrInvalidPath, 1},
		{"garbage bytes", "/static/samples/broken.wav", ErrAssetDecode, nil, 1},
		{"unknown extension", "/static/samples/kick.flac", ErrAssetDecode, ErrUnsupportedFormat, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := NewRepository(NewDirFetcher(root))
			_, err := repo.Load(context.Background(), tc.path)
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("err = %v, want %v", err, tc.sentinel)
			}
			if tc.cause != nil && !errors.Is(err, tc.cause) {
				t.Fatalf("err = %v, want cause %v", err, tc.cause)
			}
			if repo.Fetches() != tc.fetches {
				t.Fatalf("fetches = %d, want %d", repo.Fetches(), tc.fetches)
			}
			if repo.Len() != 0 {
				t.Fatalf("failed load was cached")
			}
		})
	}

	repo := NewRepository(NewDirFetcher(root))
	_, err := repo.Load(context.Background(), "/static/samples/nope.wav")
	var fe *AssetFetchError
	if !errors.As(err, &fe) || fe.Path != "/static/samples/nope.wav" {
		t.Fatalf("err = %v, want AssetFetchError with path", err)
	}
	_, _ = repo.Load(context.Background(), "/static/samples/nope.wav")
	if repo.Fetches() != 2 {
		t.Fatalf("failures must not be cached, fetches = %d", repo.Fetches())
	}
	_, err = repo.Load(context.Background(), "/static/samples/broken.wav")
	var de *AssetDecodeError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want AssetDecodeError", err)
	}
}

func TestCancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	root := fixtureDir(t)
	dir := NewDirFetcher(root)
	gate := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	repo := NewRepository(FetcherFunc(func(ctx context.Context, path string) ([]byte, error) {
		once.Do(func() { close(started) })
		<-gate
		return dir.Fetch(ctx, path)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := repo.Load(ctx, "/static/samples/snare.wav")
		errc <- err
	}()
	<-started
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled load err = %v", err)
	}
	close(gate)
	buf, err := repo.Load(context.Background(), "/static/samples/snare.wav")
	if err != nil {
		t.Fatalf("load after cancel: %v", err)
	}
	if buf.Frames() != 3 {
		t.Fatalf("frames = %d", buf.Frames())
	}
	if repo.Fetches() != 1 {
		t.Fatalf("fetches = %d, want 1", repo.Fetches())
	}
}

func TestHTTPFetcher(t *testing.T) {
	root := fixtureDir(t)
	srv := httptest.NewServer(http.FileServer(http.Dir(root)))
	defer srv.Close()

	repo := NewRepository(NewHTTPFetcher(srv.URL + "/"))
	buf, err := repo.Load(context.Background(), "/static/samples/snare.wav")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if buf.NumChannels() != 1 || buf.Frames() != 3 {
		t.Fatalf("got %d ch, %d frames", buf.NumChannels(), buf.Frames())
	}
	if _, err := repo.Load(context.Background(), "/static/samples/missing.wav"); !errors.Is(err, ErrAssetFetch) {
		t.Fatalf("404 err = %v", err)
	}
}

func TestPreload(t *testing.T) {
	repo := NewRepository(NewDirFetcher(fixtureDir(t)), WithPreloadLimit(2))
	err := repo.Preload(context.Background(), "/static/samples/kick.wav", "/static/samples/snare.wav", "/static/samples/kick.wav")
	if err != nil {
		t.Fatalf("preload: %v", err)
	}
	if repo.Len() != 2 || repo.Fetches() != 2 {
		t.Fatalf("cached %d, fetched %d", repo.Len(), repo.Fetches())
	}
	if err := repo.Preload(context.Background(), "/static/samples/snare.wav", "/static/samples/broken.wav"); !errors.Is(err, ErrAssetDecode) {
		t.Fatalf("preload err = %v", err)
	}
}

func TestAIFFDecoder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.aiff")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := aiff.NewEncoder(f, 8000, 16, 1)
	err = enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: 8000},
		Data:           []int{0, 8192, -8192, 16384},
		SourceBitDepth: 16,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := AIFFDecoder{}.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []float32{0, 0.25, -0.25, 0.5}
	if buf.SampleRate() != 8000 || buf.Frames() != len(want) {
		t.Fatalf("got %d Hz, %d frames", buf.SampleRate(), buf.Frames())
	}
	for i, w := range want {
		if buf.Channel(0)[i] != w {
			t.Fatalf("sample %d = %v, want %v", i, buf.Channel(0)[i], w)
		}
	}
}

func TestCompressedDecodersRejectGarbage(t *testing.T) {
	garbage := FetcherFunc(func(ctx context.Context, path string) ([]byte, error) {
		return []byte("definitely not a compressed audio stream"), nil
	})
	for _, p := range []string{"/static/samples/lead.mp3", "/static/samples/pad.ogg"} {
		t.Run(p, func(t *testing.T) {
			repo := NewRepository(garbage)
			_, err := repo.Load(context.Background(), p)
			var de *AssetDecodeError
			if !errors.As(err, &de) || !errors.Is(err, ErrAssetDecode) {
				t.Fatalf("err = %v, want AssetDecodeError", err)
			}
			if de.Path != p {
				t.Fatalf("path = %q, want %q", de.Path, p)
			}
			if repo.Len() != 0 {
				t.Fatal("failed decode was cached")
			}
		})
	}
}

func TestRegistryForPath(t *testing.T) {
	reg := DefaultRegistry()
	for _, p := range []string{"/a/b.wav", "/a/b.WAV", "x.aiff", "x.aif", "x.mp3", "x.ogg"} {
		if _, err := reg.ForPath(p); err != nil {
			t.Fatalf("%s: %v", p, err)
		}
	}
	if _, err := reg.ForPath("x.flac"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("flac err = %v", err)
	}
}
