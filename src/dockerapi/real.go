package dockerapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
)

// composeServiceLabel is set by compose on every container it manages.
const composeServiceLabel = "com.docker.compose.service"

// RealClient implements Client against a local Docker daemon. List, save,
// load, export, pull and inspect go through the Docker SDK; compose
// orchestration and volume payload streaming shell out to the docker CLI.
type RealClient struct {
	c *client.Client

	// dockerBin is the CLI binary used for compose and volume streaming.
	dockerBin string
}

// Connect creates a RealClient from the ambient Docker environment
// (DOCKER_HOST et al.), negotiating the API version with the daemon.
func Connect() (*RealClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &RealClient{c: cli, dockerBin: "docker"}, nil
}

func (r *RealClient) Ping(ctx context.Context) error {
	if _, err := r.c.Ping(ctx); err != nil {
		return fmt.Errorf("cannot reach docker daemon: %w", err)
	}
	return nil
}

func (r *RealClient) ListImages(ctx context.Context) ([]Image, error) {
	imgs, err := r.c.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]Image, 0, len(imgs))
	for _, img := range imgs {
		out = append(out, Image{ID: img.ID, Tags: img.RepoTags})
	}
	return out, nil
}

func (r *RealClient) ListContainers(ctx context.Context) ([]Container, error) {
	ctrs, err := r.c.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, err
	}
	out := make([]Container, 0, len(ctrs))
	for _, c := range ctrs {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, Container{
			ID:     c.ID,
			Name:   name,
			Image:  c.Image,
			State:  c.State,
			Labels: c.Labels,
		})
	}
	return out, nil
}

func (r *RealClient) ListNetworks(ctx context.Context) ([]Network, error) {
	nets, err := r.c.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]Network, 0, len(nets))
	for _, n := range nets {
		out = append(out, Network{Name: n.Name, Driver: n.Driver})
	}
	return out, nil
}

func (r *RealClient) ListVolumes(ctx context.Context) ([]Volume, error) {
	resp, err := r.c.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return nil, err
	}
	out := make([]Volume, 0, len(resp.Volumes))
	for _, v := range resp.Volumes {
		out = append(out, Volume{Name: v.Name, Driver: v.Driver, Mountpoint: v.Mountpoint})
	}
	return out, nil
}

func (r *RealClient) PullImage(ctx context.Context, ref string) error {
	rdr, err := r.c.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer rdr.Close()
	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rdr); err != nil {
		return err
	}
	log.Debug("pulled image", "ref", ref)
	return nil
}

func (r *RealClient) SaveImage(ctx context.Context, refs []string, w io.Writer) error {
	rdr, err := r.c.ImageSave(ctx, refs)
	if err != nil {
		return err
	}
	defer rdr.Close()
	_, err = io.Copy(w, rdr)
	return err
}

func (r *RealClient) LoadImage(ctx context.Context, rd io.Reader) error {
	resp, err := r.c.ImageLoad(ctx, rd, client.ImageLoadWithQuiet(true))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

func (r *RealClient) ExportContainer(ctx context.Context, name string, w io.Writer) error {
	rdr, err := r.c.ContainerExport(ctx, name)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return &NotFoundError{Resource: "container", Name: name}
		}
		return err
	}
	defer rdr.Close()
	_, err = io.Copy(w, rdr)
	return err
}

// ExportVolume streams the volume's contents as an uncompressed tar by
// mounting it read-only into a throwaway helper container.
func (r *RealClient) ExportVolume(ctx context.Context, name string, w io.Writer) error {
	cmd := exec.CommandContext(ctx, r.dockerBin, "run", "--rm",
		"-v", name+":/volume:ro", "alpine",
		"tar", "-C", "/volume", "-cf", "-", ".")
	var stderr bytes.Buffer
	cmd.Stdout = w
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("export volume %s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ImportVolume re-fills a volume from a tar stream produced by ExportVolume.
func (r *RealClient) ImportVolume(ctx context.Context, name string, rd io.Reader) error {
	cmd := exec.CommandContext(ctx, r.dockerBin, "run", "--rm", "-i",
		"-v", name+":/volume", "alpine",
		"tar", "-C", "/volume", "-xf", "-")
	var stderr bytes.Buffer
	cmd.Stdin = rd
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("import volume %s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (r *RealClient) CreateNetwork(ctx context.Context, name, driver string) error {
	if driver == "" {
		driver = "bridge"
	}
	_, err := r.c.NetworkCreate(ctx, name, network.CreateOptions{Driver: driver})
	if err != nil && cerrdefs.IsConflict(err) {
		return &ConflictError{Resource: "network", Name: name}
	}
	return err
}

func (r *RealClient) CreateVolume(ctx context.Context, name string) error {
	// VolumeCreate is idempotent for an existing name with no diverging
	// options, so no conflict mapping is needed here.
	_, err := r.c.VolumeCreate(ctx, volume.CreateOptions{Name: name})
	return err
}

func (r *RealClient) ComposeUp(ctx context.Context, composeFile, workDir string) error {
	cmd := exec.CommandContext(ctx, r.dockerBin, "compose", "-f", composeFile, "up", "-d")
	cmd.Dir = workDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	log.Debug("running compose up", "file", composeFile, "dir", workDir)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("compose up: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (r *RealClient) ServiceStatus(ctx context.Context, containerName string) (ServiceState, error) {
	resp, err := r.c.ContainerInspect(ctx, containerName)
	if err != nil {
		if !cerrdefs.IsNotFound(err) {
			return ServiceState{}, err
		}
		// Compose may have named the container differently; fall back to
		// the service label before reporting the service as absent.
		ctrs, lerr := r.c.ContainerList(ctx, container.ListOptions{
			All:     true,
			Filters: filters.NewArgs(filters.Arg("label", composeServiceLabel+"="+containerName)),
		})
		if lerr != nil {
			return ServiceState{}, lerr
		}
		if len(ctrs) == 0 {
			return ServiceState{}, nil
		}
		resp, err = r.c.ContainerInspect(ctx, ctrs[0].ID)
		if err != nil {
			return ServiceState{}, err
		}
	}

	st := ServiceState{Exists: true}
	if resp.State != nil {
		st.Running = resp.State.Running
		if resp.State.Health != nil {
			st.Health = resp.State.Health.Status
		}
	}
	return st, nil
}
