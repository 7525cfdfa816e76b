// Package docker implements a provider for local container infrastructure:
// networks, volumes, and containers managed through the Docker Engine API.
package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cairnhq/cairn/pkg/provider"
)

type Provider struct {
	mu     sync.Mutex
	client *client.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	return p.ensureClient()
}

func (p *Provider) ensureClient() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("failed to create Docker client: %w", err)
	}
	p.client = cli
	return nil
}

func (p *Provider) Schema(resourceType string) (*provider.ResourceSchema, error) {
	switch resourceType {
	case "docker_network":
		return &provider.ResourceSchema{
			ForcesReplacement: []string{"name", "driver", "internal"},
			Computed:          []string{"id"},
		}, nil
	case "docker_volume":
		return &provider.ResourceSchema{
			ForcesReplacement: []string{"name", "driver"},
			Computed:          []string{"id"},
		}, nil
	case "docker_container":
		// The engine API has no in-place reconfigure; everything except
		// labels means a new container.
		return &provider.ResourceSchema{
			ForcesReplacement: []string{"name", "image", "command", "env", "ports", "networks", "restart"},
			Computed:          []string{"id"},
		}, nil
	default:
		return nil, fmt.Errorf("docker provider does not support resource type %q", resourceType)
	}
}

func (p *Provider) Create(ctx context.Context, resourceType string, desired map[string]any) (map[string]any, error) {
	if err := p.ensureClient(); err != nil {
		return nil, provider.NewPermanent(err)
	}

	switch resourceType {
	case "docker_network":
		return p.createNetwork(ctx, desired)
	case "docker_volume":
		return p.createVolume(ctx, desired)
	case "docker_container":
		return p.createContainer(ctx, desired)
	}
	return nil, fmt.Errorf("docker provider does not support resource type %q", resourceType)
}

func (p *Provider) Read(ctx context.Context, resourceType, id string, prior map[string]any) (map[string]any, error) {
	if err := p.ensureClient(); err != nil {
		return nil, provider.NewPermanent(err)
	}

	switch resourceType {
	case "docker_network":
		return p.readNetwork(ctx, id)
	case "docker_volume":
		return p.readVolume(ctx, id)
	case "docker_container":
		return p.readContainer(ctx, id)
	}
	return nil, fmt.Errorf("docker provider does not support resource type %q", resourceType)
}

func (p *Provider) Update(ctx context.Context, resourceType, id string, desired, prior map[string]any) (map[string]any, error) {
	// All meaningful attribute changes force replacement, so an update
	// reaching the provider has nothing to do.
	return prior, nil
}

func (p *Provider) Delete(ctx context.Context, resourceType, id string, prior map[string]any) error {
	if err := p.ensureClient(); err != nil {
		return provider.NewPermanent(err)
	}

	switch resourceType {
	case "docker_network":
		if err := p.client.NetworkRemove(ctx, id); err != nil && !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to remove network %s: %w", id, err)
		}
		return nil
	case "docker_volume":
		if err := p.client.VolumeRemove(ctx, id, true); err != nil && !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to remove volume %s: %w", id, err)
		}
		return nil
	case "docker_container":
		stopTimeout := 10 // seconds
		_ = p.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &stopTimeout})
		if err := p.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to remove container %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("docker provider does not support resource type %q", resourceType)
}

func (p *Provider) createNetwork(ctx context.Context, desired map[string]any) (map[string]any, error) {
	name := strAttr(desired, "name")
	driver := strAttr(desired, "driver")
	if driver == "" {
		driver = "bridge"
	}

	resp, err := p.client.NetworkCreate(ctx, name, types.NetworkCreate{
		Driver:   driver,
		Internal: boolAttr(desired, "internal"),
		Labels:   strMapAttr(desired, "labels"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create network %s: %w", name, err)
	}

	return map[string]any{
		"id":     resp.ID,
		"name":   name,
		"driver": driver,
	}, nil
}

func (p *Provider) readNetwork(ctx context.Context, id string) (map[string]any, error) {
	nw, err := p.client.NetworkInspect(ctx, id, types.NetworkInspectOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to inspect network %s: %w", id, err)
	}
	return map[string]any{
		"id":     nw.ID,
		"name":   nw.Name,
		"driver": nw.Driver,
	}, nil
}

func (p *Provider) createVolume(ctx context.Context, desired map[string]any) (map[string]any, error) {
	vol, err := p.client.VolumeCreate(ctx, volume.CreateOptions{
		Name:   strAttr(desired, "name"),
		Driver: strAttr(desired, "driver"),
		Labels: strMapAttr(desired, "labels"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create volume: %w", err)
	}
	return map[string]any{
		"id":     vol.Name,
		"name":   vol.Name,
		"driver": vol.Driver,
	}, nil
}

func (p *Provider) readVolume(ctx context.Context, id string) (map[string]any, error) {
	vol, err := p.client.VolumeInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to inspect volume %s: %w", id, err)
	}
	return map[string]any{
		"id":     vol.Name,
		"name":   vol.Name,
		"driver": vol.Driver,
	}, nil
}

func (p *Provider) createContainer(ctx context.Context, desired map[string]any) (map[string]any, error) {
	name := strAttr(desired, "name")
	img := strAttr(desired, "image")

	reader, err := p.client.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	io.Copy(io.Discard, reader)
	reader.Close()

	portBindings := nat.PortMap{}
	for hostPort, containerPort := range strMapAttr(desired, "ports") {
		cp := nat.Port(containerPort)
		if !strings.Contains(containerPort, "/") {
			cp = nat.Port(containerPort + "/tcp")
		}
		portBindings[cp] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: hostPort}}
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        strListAttr(desired, "volumes"),
	}
	if networks := strListAttr(desired, "networks"); len(networks) > 0 {
		hostConfig.NetworkMode = container.NetworkMode(networks[0])
	}
	if restart := strAttr(desired, "restart"); restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyMode(restart)}
	}

	cfg := &container.Config{
		Image:  img,
		Cmd:    strListAttr(desired, "command"),
		Env:    envList(strMapAttr(desired, "env")),
		Labels: strMapAttr(desired, "labels"),
	}

	resp, err := p.client.ContainerCreate(ctx, cfg, hostConfig, &network.NetworkingConfig{}, &v1.Platform{}, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", name, err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, (&provider.OpError{Err: fmt.Errorf("failed to start container %s: %w", name, err)}).
			WithPartial(map[string]any{"id": resp.ID})
	}

	return map[string]any{
		"id":    resp.ID,
		"name":  name,
		"image": img,
	}, nil
}

func (p *Provider) readContainer(ctx context.Context, id string) (map[string]any, error) {
	inspect, err := p.client.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to inspect container %s: %w", id, err)
	}
	out := map[string]any{
		"id":    inspect.ID,
		"name":  strings.TrimPrefix(inspect.Name, "/"),
		"image": inspect.Config.Image,
	}
	if inspect.State != nil {
		out["status"] = inspect.State.Status
	}
	return out, nil
}

func strAttr(attrs map[string]any, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func boolAttr(attrs map[string]any, key string) bool {
	b, _ := attrs[key].(bool)
	return b
}

func strListAttr(attrs map[string]any, key string) []string {
	raw, _ := attrs[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func strMapAttr(attrs map[string]any, key string) map[string]string {
	raw, _ := attrs[key].(map[string]any)
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
