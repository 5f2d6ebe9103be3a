package testingh

import (
	"fmt"
)

// NewRedpanda starts a single-node broker advertised on the published port.
// REDPANDA_IMAGE_TAG overrides the image tag.
func NewRedpanda(connectFn func(broker string) error) (*Container, error) {
	return start(image{
		name:       "redpanda",
		repository: "redpandadata/redpanda",
		tag:        envOr("REDPANDA_IMAGE_TAG", "latest"),
		port:       "9092/tcp",
		cmd: func(hostPort int) []string {
			return []string{
				"redpanda start",
				"--overprovisioned",
				"--smp 1",
				"--memory 1G",
				"--reserve-memory 0M",
				"--node-id 0",
				"--check=false",
				fmt.Sprintf("--advertise-kafka-addr %s:%d", hostName, hostPort),
			}
		},
	}, connectFn)
}
