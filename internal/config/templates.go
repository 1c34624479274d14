package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "project", "ci":
		return projectTemplate, nil
	case "sink":
		return sinkTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const projectTemplate = `# cictl project configuration

[bootstrap]
strict = false

[bootstrap.brew]
update = true
taps = []
packages = []
bootstrap_if_missing = false

[bootstrap.xvfb]
enabled = true
script = "/etc/init.d/xvfb"
display = ":99.0"
settle = "3s"

[bootstrap.choco]
packages = []

[upload]
# url and credentials usually come from UPLOAD_URL, UPLOAD_USER, UPLOAD_PASS
url = ""
suffixes = [".zip"]
transport = "http"
attempts = 1
backoff = "2s"
max_backoff = "30s"
rate_limit = 0.0
timeout = "10m"
pushgateway = ""
strict = false
# extra CA bundle for private https endpoints
ca_file = ""
`

const sinkTemplate = `id = "cictl-sink"
addr = ":9300"
storage_dir = "local/artifacts"
cors_origins = ["http://localhost:3000"]
max_upload_bytes = 2147483648
tls_cert_file = ""
tls_key_file = ""

[accounts]
ci = "change-me"
`
