package gitprovider

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrUnsupportedRemote is returned for remotes that cannot carry HTTPS
// token credentials, such as local paths and file:// URLs.
var ErrUnsupportedRemote = errors.New("remote is not an https or ssh url")

// ParseRemote extracts host, owner and name from a git remote URL. It
// accepts https://, http://, ssh:// and scp-like git@host:owner/repo forms.
// Credentials are dropped from the returned CloneURL; an ssh username
// without a password is kept.
func ParseRemote(raw string) (RepoRef, error) {
	raw = strings.TrimSpace(raw)
	u, err := remoteURL(raw)
	if err != nil {
		return RepoRef{}, err
	}

	p := strings.Trim(u.Path, "/")
	p = strings.TrimSuffix(p, ".git")
	dir, name := path.Split(p)
	owner := strings.Trim(dir, "/")
	if owner == "" || name == "" {
		return RepoRef{}, fmt.Errorf("remote %q: expected <host>/<owner>/<repo>", redactURL(raw))
	}

	clean := *u
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword || u.Scheme == "http" || u.Scheme == "https" {
			clean.User = nil
		}
	}
	return RepoRef{
		Host:     u.Hostname(),
		Owner:    owner,
		Name:     name,
		CloneURL: clean.String(),
	}, nil
}

// AuthenticatedURL rewrites remote to an HTTPS URL carrying username and
// token. SSH and plain http:// remotes are upgraded to HTTPS on the same
// host so the token never travels in cleartext; the path is preserved.
func AuthenticatedURL(remote, username, token string) (string, error) {
	return authenticatedURL(remote, username, token, false)
}

// InsecureAuthenticatedURL is AuthenticatedURL except that an http://
// remote keeps its scheme. The token is then sent unencrypted, so it is
// only for self-hosted instances without TLS.
func InsecureAuthenticatedURL(remote, username, token string) (string, error) {
	return authenticatedURL(remote, username, token, true)
}

// IsPlainHTTP reports whether remote is an http:// URL.
func IsPlainHTTP(remote string) bool {
	u, err := url.Parse(strings.TrimSpace(remote))
	return err == nil && u.Scheme == "http"
}

func authenticatedURL(remote, username, token string, allowHTTP bool) (string, error) {
	u, err := remoteURL(strings.TrimSpace(remote))
	if err != nil {
		return "", err
	}
	out := url.URL{
		Scheme: "https",
		User:   url.UserPassword(username, token),
		Host:   u.Hostname(),
		Path:   u.Path,
	}
	switch {
	case u.Scheme == "https", u.Scheme == "http" && allowHTTP:
		out.Scheme = u.Scheme
		out.Host = u.Host
	case u.Scheme == "http" && u.Port() != "" && u.Port() != "80":
		out.Host = u.Host
	}
	if !strings.HasPrefix(out.Path, "/") {
		out.Path = "/" + out.Path
	}
	return out.String(), nil
}

func remoteURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, errors.New("empty remote url")
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse remote %q: %w", redactURL(raw), err)
		}
		switch u.Scheme {
		case "https", "http", "ssh", "git+ssh":
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedRemote, u.Scheme)
		}
		if u.Hostname() == "" {
			return nil, fmt.Errorf("remote %q has no host", redactURL(raw))
		}
		return u, nil
	}

	// scp-like syntax: [user@]host:path
	at := strings.Index(raw, "@")
	colon := strings.Index(raw, ":")
	if colon <= 0 || (at >= 0 && at > colon) || strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, ".") {
		return nil, ErrUnsupportedRemote
	}
	host := raw[at+1 : colon]
	u := &url.URL{Scheme: "ssh", Host: host, Path: "/" + strings.TrimPrefix(raw[colon+1:], "/")}
	if at > 0 {
		u.User = url.User(raw[:at])
	}
	return u, nil
}

// redactURL hides any password in raw for error messages.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
