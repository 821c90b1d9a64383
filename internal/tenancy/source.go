package tenancy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// TokenSource yields a bearer token, or "" when it has none.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// EnvSource reads the token from an environment variable.
type EnvSource string

func (e EnvSource) Token(context.Context) (string, error) {
	if e == "" {
		return "", nil
	}
	return strings.TrimSpace(os.Getenv(string(e))), nil
}

// FileSource reads the token from a file; a missing file is not an error.
type FileSource string

func (f FileSource) Token(context.Context) (string, error) {
	if f == "" {
		return "", nil
	}
	data, err := os.ReadFile(string(f))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("tenancy: read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// FirstNonEmpty returns the first non-empty token among sources.
func FirstNonEmpty(ctx context.Context, sources ...TokenSource) (string, error) {
	for _, src := range sources {
		if src == nil {
			continue
		}
		tok, err := src.Token(ctx)
		if err != nil {
			return "", err
		}
		if tok != "" {
			return tok, nil
		}
	}
	return "", ErrNoToken
}

// Resolve reads the first available token and decodes it into a Session.
func Resolve(ctx context.Context, sources ...TokenSource) (Session, error) {
	tok, err := FirstNonEmpty(ctx, sources...)
	if err != nil {
		return Session{}, err
	}
	return ParseSession(tok)
}
