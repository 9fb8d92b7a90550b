package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// JoinPath joins path segments onto base, keeping any path base already has
func JoinPath(base string, paths ...string) (string, error) {
	u, err := join(base, paths...)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// WithQuery joins p onto base and replaces the query with q
func WithQuery(base, p string, q url.Values) (string, error) {
	u, err := join(base, p)
	if err != nil {
		return "", err
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func join(base string, paths ...string) (*url.URL, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	u.Path = path.Join(append([]string{u.Path}, paths...)...)
	if len(paths) > 0 && strings.HasSuffix(paths[len(paths)-1], "/") {
		u.Path += "/"
	}
	if u.Path == "." {
		u.Path = ""
	}
	return u, nil
}
