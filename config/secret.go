package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// SecretProvider resolves secret references. Implementations must be safe
// for concurrent use and must not log secret values.
type SecretProvider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
}

// SecretResolver resolves secretref:<provider>:<ref> values.
type SecretResolver struct {
	providers map[string]SecretProvider
}

// NewSecretResolver creates a resolver with the built-in env and file
// providers plus any extra providers. Later providers replace earlier ones
// with the same name.
func NewSecretResolver(providers ...SecretProvider) *SecretResolver {
	r := &SecretResolver{providers: make(map[string]SecretProvider)}
	r.Register(EnvProvider{})
	r.Register(FileProvider{})
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a provider.
func (r *SecretResolver) Register(p SecretProvider) {
	if p == nil {
		return
	}
	r.providers[p.Name()] = p
}

// ParseSecretRef parses a full secret reference of the form:
//
//	secretref:<provider>:<ref>
func ParseSecretRef(value string) (provider string, ref string, ok bool) {
	const prefix = "secretref:"
	if !strings.HasPrefix(value, prefix) {
		return "", "", false
	}
	provider, ref, found := strings.Cut(strings.TrimPrefix(value, prefix), ":")
	if !found || provider == "" || ref == "" {
		return "", "", false
	}
	return provider, ref, true
}

var inlineSecretRefPattern = regexp.MustCompile(`secretref:([^:\s]+):([^\s]+)`)

// Resolve replaces a full or inline secret reference in value. Values without
// references are returned unchanged.
func (r *SecretResolver) Resolve(ctx context.Context, value string) (string, error) {
	if provider, ref, ok := ParseSecretRef(value); ok {
		return r.resolveOne(ctx, provider, ref)
	}

	matches := inlineSecretRefPattern.FindAllStringSubmatchIndex(value, -1)
	out := value
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		resolved, err := r.resolveOne(ctx, out[m[2]:m[3]], out[m[4]:m[5]])
		if err != nil {
			return "", err
		}
		out = out[:m[0]] + resolved + out[m[1]:]
	}
	return out, nil
}

func (r *SecretResolver) resolveOne(ctx context.Context, name, ref string) (string, error) {
	p, ok := r.providers[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	v, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("secret %s: %w", name, err)
	}
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptySecret, name)
	}
	return v, nil
}

// EnvProvider resolves a reference as an environment variable name.
type EnvProvider struct{}

// Name returns "env".
func (EnvProvider) Name() string { return "env" }

// Resolve returns the variable's value.
func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, ref)
	}
	return v, nil
}

// FileProvider resolves a reference as a file path, such as a mounted
// secret. Trailing newlines are trimmed.
type FileProvider struct{}

// Name returns "file".
func (FileProvider) Name() string { return "file" }

// Resolve reads the file.
func (FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	b, err := os.ReadFile(ref)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}
