// Package source resolves a module location and reads the module bytes.
//
// A location is either a filesystem path, a file:// URL or an http(s):// URL.
// Reads are single attempts: there is no retry and no fallback location.
package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-boot/errors"
)

// DefaultMaxBytes bounds a single module read (256MB).
const DefaultMaxBytes int64 = 256 << 20

// Kind classifies a location.
type Kind int

const (
	KindFile Kind = iota
	KindHTTP
)

func (k Kind) String() string {
	if k == KindHTTP {
		return "http"
	}
	return "file"
}

// Location is a parsed module location.
type Location struct {
	// Raw is the location exactly as configured.
	Raw string
	// Path is the filesystem path for KindFile, or the URL for KindHTTP.
	Path string
	Kind Kind
}

// Parse classifies a location string.
func Parse(location string) (Location, error) {
	if strings.TrimSpace(location) == "" {
		return Location{}, errors.InvalidInput(errors.PhaseFetch, "empty module location")
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || isDriveLetter(u.Scheme) {
		return Location{Raw: location, Path: location, Kind: KindFile}, nil
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return Location{}, errors.InvalidInput(errors.PhaseFetch, fmt.Sprintf("missing host in %q", location))
		}
		return Location{Raw: location, Path: u.String(), Kind: KindHTTP}, nil
	case "file":
		p := u.Path
		if u.Host != "" && u.Host != "localhost" {
			return Location{}, errors.Unsupported(errors.PhaseFetch, fmt.Sprintf("remote file host %q", u.Host))
		}
		if p == "" {
			p = u.Opaque
		}
		return Location{Raw: location, Path: filepath.FromSlash(p), Kind: KindFile}, nil
	default:
		return Location{}, errors.Unsupported(errors.PhaseFetch, fmt.Sprintf("location scheme %q", u.Scheme))
	}
}

// "C:\pkg\app.wasm" parses with scheme "c".
func isDriveLetter(scheme string) bool {
	return runtime.GOOS == "windows" && len(scheme) == 1
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client. Defaults to a pooled cleanhttp client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithMaxBytes bounds the size of a module. Non-positive values keep the default.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// Fetcher reads module bytes from a location.
type Fetcher struct {
	client   *http.Client
	logger   *zap.Logger
	maxBytes int64
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   cleanhttp.DefaultPooledClient(),
		logger:   zap.NewNop(),
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch reads the module at location.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	loc, err := Parse(location)
	if err != nil {
		return nil, err
	}

	var data []byte
	switch loc.Kind {
	case KindHTTP:
		data, err = f.fetchHTTP(ctx, loc)
	default:
		data, err = f.fetchFile(loc)
	}
	if err != nil {
		return nil, err
	}

	f.logger.Debug("module fetched",
		zap.String("location", loc.Raw),
		zap.Stringer("kind", loc.Kind),
		zap.Int("bytes", len(data)))
	return data, nil
}

func (f *Fetcher) fetchFile(loc Location) ([]byte, error) {
	file, err := os.Open(loc.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.PhaseFetch, errors.KindNotFound).
				Detail("module %q not found", loc.Raw).
				Value(loc.Raw).
				Cause(err).
				Build()
		}
		return nil, errors.Unreachable(loc.Raw, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, errors.Unreachable(loc.Raw, err)
	}
	if info.IsDir() {
		return nil, errors.Unreachable(loc.Raw, &fs.PathError{Op: "read", Path: loc.Path, Err: fmt.Errorf("is a directory")})
	}
	if info.Size() > f.maxBytes {
		return nil, errors.TooLarge(errors.PhaseFetch, "module "+loc.Raw, f.maxBytes)
	}

	return f.readLimited(loc, file)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, loc Location) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.Path, nil)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseFetch, err.Error())
	}
	req.Header.Set("Accept", "application/wasm")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Unreachable(loc.Raw, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.New(errors.PhaseFetch, errors.KindNotFound).
			Detail("GET %s: status %d", loc.Raw, resp.StatusCode).
			Value(resp.StatusCode).
			Build()
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.New(errors.PhaseFetch, errors.KindUnreachable).
			Detail("GET %s: status %d", loc.Raw, resp.StatusCode).
			Value(resp.StatusCode).
			Build()
	}

	if resp.ContentLength > f.maxBytes {
		return nil, errors.TooLarge(errors.PhaseFetch, "module "+loc.Raw, f.maxBytes)
	}

	return f.readLimited(loc, resp.Body)
}

func (f *Fetcher) readLimited(loc Location, r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, errors.Unreachable(loc.Raw, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errors.TooLarge(errors.PhaseFetch, "module "+loc.Raw, f.maxBytes)
	}
	return data, nil
}
