package testingh

import (
	"github.com/ory/dockertest/docker"
)

const (
	ClickhouseDB       = "capirelay_test"
	ClickhouseUser     = "su"
	ClickhousePassword = "su"
)

// NewClickhouse starts a server with ClickhouseDB owned by ClickhouseUser and
// hands the native protocol address to connectFn.
func NewClickhouse(connectFn func(addr string) error) (*Container, error) {
	return start(image{
		name:       "clickhouse",
		repository: "clickhouse/clickhouse-server",
		tag:        envOr("CLICKHOUSE_IMAGE_TAG", "latest-alpine"),
		port:       "9000/tcp",
		env: []string{
			"CLICKHOUSE_DB=" + ClickhouseDB,
			"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT=1",
			"CLICKHOUSE_USER=" + ClickhouseUser,
			"CLICKHOUSE_PASSWORD=" + ClickhousePassword,
		},
		ulimits: []docker.ULimit{{Name: "nofile", Soft: 262144, Hard: 262144}},
	}, connectFn)
}
