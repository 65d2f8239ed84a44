package envutil

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/trackchat-backend/internal/platform/logger"
)

// Source resolves a key to a raw value. The process environment wins; Fallback
// (typically a parsed config file) is consulted when the variable is unset.
type Source struct {
	Fallback map[string]string
	Log      *logger.Logger
}

func (s Source) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v), true
	}
	if s.Fallback != nil {
		if v, ok := s.Fallback[key]; ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

func (s Source) String(key, def string) string {
	v, ok := s.lookup(key)
	if !ok || v == "" {
		s.debug(key, "default", def)
		return def
	}
	return v
}

func (s Source) Int(key string, def int) int {
	v, ok := s.lookup(key)
	if !ok || v == "" {
		s.debug(key, "default", def)
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		s.warn(key, err, def)
		return def
	}
	return i
}

func (s Source) Float(key string, def float64) float64 {
	v, ok := s.lookup(key)
	if !ok || v == "" {
		s.debug(key, "default", def)
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		s.warn(key, err, def)
		return def
	}
	return f
}

func (s Source) Bool(key string, def bool) bool {
	v, ok := s.lookup(key)
	if !ok || v == "" {
		s.debug(key, "default", def)
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		s.warn(key, nil, def)
		return def
	}
}

// Duration accepts Go duration strings ("45s") or a bare number of seconds.
func (s Source) Duration(key string, def time.Duration) time.Duration {
	v, ok := s.lookup(key)
	if !ok || v == "" {
		s.debug(key, "default", def)
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		s.warn(key, err, def)
		return def
	}
	return d
}

func (s Source) List(key string, def []string) []string {
	v, ok := s.lookup(key)
	if !ok || v == "" {
		return def
	}
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s Source) debug(key string, kv ...interface{}) {
	if s.Log != nil {
		s.Log.Debug("Config value not set, using default", append([]interface{}{"env_var", key}, kv...)...)
	}
}

func (s Source) warn(key string, err error, def interface{}) {
	if s.Log != nil {
		s.Log.Warn("Config value invalid, using default", "env_var", key, "error", err, "default", def)
	}
}
