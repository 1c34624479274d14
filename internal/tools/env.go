package tools

import "os"

// LookupFunc resolves an environment variable the way os.LookupEnv does.
type LookupFunc func(key string) (string, bool)

// OSLookup reads the process environment.
func OSLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapLookup serves lookups from a fixed map, mostly for tests.
func MapLookup(env map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

// Getenv returns the value for key, or "" when unset.
func (f LookupFunc) Getenv(key string) string {
	if f == nil {
		return ""
	}
	v, _ := f(key)
	return v
}
