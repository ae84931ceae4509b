// Package credentials owns the Token/Credentials Store (spec §4.2): the
// per-platform header/cookie bag supplied to Marketplace Clients, and a
// TTL-cached validity check that never caches a transient failure as
// "invalid".
package credentials

import (
	"fmt"
	"os"
	"strings"

	"github.com/sawpanic/skinmarket/internal/model"
)

// Bag is the set of request decorations a Marketplace Client attaches to
// every outbound call for one platform.
type Bag struct {
	Headers map[string]string
	Cookies map[string]string
}

// Source supplies a Bag for a platform. EnvSource is the only
// implementation: credentials are never persisted by this process, only
// read from the environment at startup (spec §4.2 "supplied externally").
type Source interface {
	Load(platform model.Platform) (Bag, error)
}

// EnvSource reads SKINMONITOR_<PLATFORM>_HEADER_<NAME> and
// SKINMONITOR_<PLATFORM>_COOKIE_<NAME> environment variables.
type EnvSource struct {
	prefix string
}

// NewEnvSource creates an EnvSource. prefix defaults to "SKINMONITOR" if empty.
func NewEnvSource(prefix string) *EnvSource {
	if prefix == "" {
		prefix = "SKINMONITOR"
	}
	return &EnvSource{prefix: strings.ToUpper(prefix)}
}

func (s *EnvSource) Load(platform model.Platform) (Bag, error) {
	bag := Bag{Headers: map[string]string{}, Cookies: map[string]string{}}
	headerPrefix := fmt.Sprintf("%s_%s_HEADER_", s.prefix, platform)
	cookiePrefix := fmt.Sprintf("%s_%s_COOKIE_", s.prefix, platform)

	for _, env := range os.Environ() {
		kv := strings.SplitN(env, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, value := kv[0], kv[1]
		switch {
		case strings.HasPrefix(key, headerPrefix):
			name := headerNameFromEnv(strings.TrimPrefix(key, headerPrefix))
			bag.Headers[name] = value
		case strings.HasPrefix(key, cookiePrefix):
			name := strings.TrimPrefix(key, cookiePrefix)
			bag.Cookies[name] = value
		}
	}

	if len(bag.Headers) == 0 && len(bag.Cookies) == 0 {
		return bag, fmt.Errorf("no credentials found for platform %s (expected %s* / %s* env vars)", platform, headerPrefix, cookiePrefix)
	}
	return bag, nil
}

// headerNameFromEnv turns "USER_AGENT" into "User-Agent"-ish casing; HTTP
// header names are canonicalized by net/http anyway, so this just has to
// be a stable, readable key.
func headerNameFromEnv(envSuffix string) string {
	parts := strings.Split(strings.ToLower(envSuffix), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "-")
}
