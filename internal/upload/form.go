package upload

import (
	"strings"

	"github.com/danmuck/cictl/internal/artifacts"
)

// FormField pairs a form field name with the file sent under it.
type FormField struct {
	Name string
	Path string
}

// CurlArg renders the field as a curl -F value.
func (f FormField) CurlArg() string {
	return f.Name + "=@" + f.Path
}

func FormFields(list []artifacts.Artifact) []FormField {
	out := make([]FormField, 0, len(list))
	for _, a := range list {
		out = append(out, FormField{Name: a.Name, Path: a.Path})
	}
	return out
}

// CurlArgs builds `-L -v --user U:P -F f1 -F f2 ... URL`. A configured CA
// bundle adds `--cacert FILE` before the form fields.
func CurlArgs(cfg Config, fields []FormField) []string {
	return curlArgs(cfg.userinfo(), cfg, fields)
}

// RedactedCurlArgs is CurlArgs with the password masked, for logs.
func RedactedCurlArgs(cfg Config, fields []FormField) []string {
	user := cfg.User + ":***"
	return curlArgs(user, cfg, fields)
}

func curlArgs(userinfo string, cfg Config, fields []FormField) []string {
	args := make([]string, 0, 7+2*len(fields))
	args = append(args, "-L", "-v", "--user", userinfo)
	if ca := strings.TrimSpace(cfg.CAFile); ca != "" {
		args = append(args, "--cacert", ca)
	}
	for _, f := range fields {
		args = append(args, "-F", f.CurlArg())
	}
	return append(args, cfg.URL)
}
