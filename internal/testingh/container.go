// Package testingh starts throwaway docker dependencies for integration suites.
package testingh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/ory/dockertest"
	"github.com/ory/dockertest/docker"
)

// ErrDockerUnavailable lets integration suites skip on hosts without docker.
var ErrDockerUnavailable = errors.New("docker daemon is not reachable")

var hostName = os.Getenv("OVERRIDE_HOSTNAME")

func init() {
	if hostName == "" {
		hostName = "localhost"
	}
}

type image struct {
	name       string
	repository string
	tag        string
	port       docker.Port
	env        []string
	// cmd receives the host port the container is published on.
	cmd     func(hostPort int) []string
	ulimits []docker.ULimit
}

type Container struct {
	resource *dockertest.Resource
	addr     string
}

// Addr is host:port of the published service port.
func (c *Container) Addr() string {
	return c.addr
}

func (c *Container) Purge() error {
	return c.resource.Close()
}

// start runs img and retries connectFn with the published address until it
// succeeds or the pool gives up.
func start(img image, connectFn func(addr string) error) (*Container, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDockerUnavailable, err)
	}
	if err = pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDockerUnavailable, err)
	}
	pool.MaxWait = 2 * time.Minute

	hostPort, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("could not get free hostPort: %w", err)
	}

	opts := &dockertest.RunOptions{
		Repository: img.repository,
		Tag:        img.tag,
		Env:        img.env,
		Auth: docker.AuthConfiguration{
			Username: os.Getenv("ARTIFACTORY_USER"),
			Password: os.Getenv("ARTIFACTORY_PWD"),
		},
		PortBindings: map[docker.Port][]docker.PortBinding{
			img.port: {{
				HostIP:   hostName,
				HostPort: strconv.Itoa(hostPort),
			}},
		},
	}
	if img.cmd != nil {
		opts.Cmd = img.cmd(hostPort)
	}

	resource, err := pool.RunWithOptions(opts, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
		config.Ulimits = img.ulimits
	})
	if err != nil {
		return nil, fmt.Errorf("could not create %s container: %w", img.name, err)
	}

	c := &Container{
		resource: resource,
		addr:     fmt.Sprintf("%s:%s", hostName, resource.GetPort(string(img.port))),
	}
	if err = pool.Retry(func() error {
		return connectFn(c.addr)
	}); err != nil {
		_ = resource.Close()
		return nil, fmt.Errorf("could not connect to %s: %w", img.name, err)
	}

	return c, nil
}

func freePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
