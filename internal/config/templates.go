package config

import (
	"fmt"
	"os"
)

// WriteTemplate writes the annotated default configuration to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(Template), 0o600)
}

const Template = `# processing host the terminal connects to
[host]
host = "127.0.0.1"
port = 16677

[transport]
connect_timeout = "10s"
disconnect_timeout = "10s"
write_timeout = "10s"
reconnect_attempts = 3
reconnect_backoff = "0s"
max_frame_bytes = 8192
# "0s" disables keep-alive messages
keep_alive_interval = "0s"
keep_alive_mti = "0800"
# 0 keeps the whole session history
max_transactions = 0
clear_on_host_change = false

[api]
enabled = true
listen = "127.0.0.1:7777"
wait_timeout = "10s"
wait_remote_response = true
hide_secrets = true
hide_internal_flags = false
secret_fields = ["2", "35", "45", "52"]
token = ""
cors_origins = ["http://localhost:3000"]
rate_limit = 0.0
rate_burst = 20
late_answer_ttl = "1m"

[specification]
path = "signal.spec.json"
`
