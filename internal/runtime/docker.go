// Package runtime adapts the local container runtime for the orchestrator.
// The engine's own lifecycle (stopping dockerd) goes through the init
// system, not through here; by the time that happens this client is done.
package runtime

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Docker drives the container runtime through the Docker Engine API.
type Docker struct {
	cli *client.Client
}

func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "connect to container runtime")
	}
	return &Docker{cli: cli}, nil
}

// List returns the names of all running containers.
func (d *Docker) List(ctx context.Context) ([]string, error) {
	summaries, err := d.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "list containers")
	}
	names := make([]string, 0, len(summaries))
	for _, s := range summaries {
		if len(s.Names) == 0 {
			names = append(names, s.ID)
			continue
		}
		names = append(names, strings.TrimPrefix(s.Names[0], "/"))
	}
	return names, nil
}

// Kill sends SIGKILL to a named container.
func (d *Docker) Kill(ctx context.Context, name string) error {
	if err := d.cli.ContainerKill(ctx, name, "SIGKILL"); err != nil {
		return errors.Wrapf(err, "kill container %s", name)
	}
	return nil
}

// Stop gracefully stops a named container.
func (d *Docker) Stop(ctx context.Context, name string) error {
	if err := d.cli.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		return errors.Wrapf(err, "stop container %s", name)
	}
	return nil
}

// CopyInto copies a host file into a container directory. The Engine API
// takes a tar stream, so the file is wrapped in a single-entry archive.
func (d *Docker) CopyInto(ctx context.Context, name, hostPath, containerPath string) error {
	f, err := os.Open(hostPath)
	if err != nil {
		return errors.Wrapf(err, "open %s", hostPath)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "stat %s", hostPath)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: filepath.Base(hostPath),
		Mode: 0o644,
		Size: st.Size(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrap(err, "write tar header")
	}
	if _, err := io.Copy(tw, f); err != nil {
		return errors.Wrapf(err, "archive %s", hostPath)
	}
	if err := tw.Close(); err != nil {
		return errors.Wrap(err, "finish tar archive")
	}

	if err := d.cli.CopyToContainer(ctx, name, containerPath, &buf, container.CopyToContainerOptions{}); err != nil {
		return errors.Wrapf(err, "copy %s into %s:%s", hostPath, name, containerPath)
	}
	return nil
}

func (d *Docker) Close() error {
	return d.cli.Close()
}
