package dockerapi

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// FakeClient is an in-memory Client for unit tests. State fields are
// exported so tests can seed and inspect them directly; the *Calls fields
// record mutating operations in order.
type FakeClient struct {
	Images     map[string]Image // keyed by primary tag
	Containers map[string]Container
	Networks   map[string]Network
	Volumes    map[string][]byte // name -> exported payload

	// Error injection.
	PullErr   map[string]error
	SaveErr   error
	ExportErr error
	PingErr   error

	// Call records.
	Pulled          []string
	Saved           [][]string
	Loaded          int
	CreatedNetworks []string
	CreatedVolumes  []string
	ImportedVolumes []string
	ComposeUps      []ComposeUpCall

	// StatusSeq holds per-container state sequences consumed one element
	// per ServiceStatus call; the last element repeats once exhausted.
	StatusSeq map[string][]ServiceState
	statusIdx map[string]int
}

// ComposeUpCall records one ComposeUp invocation.
type ComposeUpCall struct {
	File string
	Dir  string
}

func NewFake() *FakeClient {
	return &FakeClient{
		Images:     map[string]Image{},
		Containers: map[string]Container{},
		Networks:   map[string]Network{},
		Volumes:    map[string][]byte{},
		PullErr:    map[string]error{},
		StatusSeq:  map[string][]ServiceState{},
		statusIdx:  map[string]int{},
	}
}

// AddImage seeds an image under the given ref.
func (f *FakeClient) AddImage(ref string) {
	f.Images[ref] = Image{ID: "sha256:" + ref, Tags: []string{ref}}
}

// AddContainer seeds a container.
func (f *FakeClient) AddContainer(name, image, state string) {
	f.Containers[name] = Container{ID: "id-" + name, Name: name, Image: image, State: state}
}

// AddVolume seeds a volume with payload bytes standing in for its tar.
func (f *FakeClient) AddVolume(name string, payload []byte) {
	f.Volumes[name] = payload
}

func (f *FakeClient) Ping(ctx context.Context) error { return f.PingErr }

func (f *FakeClient) ListImages(ctx context.Context) ([]Image, error) {
	out := make([]Image, 0, len(f.Images))
	for _, img := range f.Images {
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tags[0] < out[j].Tags[0] })
	return out, nil
}

func (f *FakeClient) ListContainers(ctx context.Context) ([]Container, error) {
	out := make([]Container, 0, len(f.Containers))
	for _, c := range f.Containers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeClient) ListNetworks(ctx context.Context) ([]Network, error) {
	out := make([]Network, 0, len(f.Networks))
	for _, n := range f.Networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeClient) ListVolumes(ctx context.Context) ([]Volume, error) {
	out := make([]Volume, 0, len(f.Volumes))
	for name := range f.Volumes {
		out = append(out, Volume{Name: name, Driver: "local"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *FakeClient) PullImage(ctx context.Context, ref string) error {
	if err := f.PullErr[ref]; err != nil {
		return err
	}
	f.Pulled = append(f.Pulled, ref)
	f.AddImage(ref)
	return nil
}

func (f *FakeClient) SaveImage(ctx context.Context, refs []string, w io.Writer) error {
	if f.SaveErr != nil {
		return f.SaveErr
	}
	for _, ref := range refs {
		if _, ok := f.Images[ref]; !ok {
			return &NotFoundError{Resource: "image", Name: ref}
		}
	}
	f.Saved = append(f.Saved, refs)
	_, err := fmt.Fprintf(w, "image-tar:%v", refs)
	return err
}

func (f *FakeClient) LoadImage(ctx context.Context, r io.Reader) error {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	f.Loaded++
	return nil
}

func (f *FakeClient) ExportContainer(ctx context.Context, name string, w io.Writer) error {
	if f.ExportErr != nil {
		return f.ExportErr
	}
	c, ok := f.Containers[name]
	if !ok {
		return &NotFoundError{Resource: "container", Name: name}
	}
	_, err := fmt.Fprintf(w, "container-tar:%s", c.Name)
	return err
}

func (f *FakeClient) ExportVolume(ctx context.Context, name string, w io.Writer) error {
	payload, ok := f.Volumes[name]
	if !ok {
		return &NotFoundError{Resource: "volume", Name: name}
	}
	_, err := w.Write(payload)
	return err
}

func (f *FakeClient) ImportVolume(ctx context.Context, name string, r io.Reader) error {
	if _, ok := f.Volumes[name]; !ok {
		return &NotFoundError{Resource: "volume", Name: name}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.Volumes[name] = data
	f.ImportedVolumes = append(f.ImportedVolumes, name)
	return nil
}

func (f *FakeClient) CreateNetwork(ctx context.Context, name, driver string) error {
	if _, ok := f.Networks[name]; ok {
		return &ConflictError{Resource: "network", Name: name}
	}
	if driver == "" {
		driver = "bridge"
	}
	f.Networks[name] = Network{Name: name, Driver: driver}
	f.CreatedNetworks = append(f.CreatedNetworks, name)
	return nil
}

func (f *FakeClient) CreateVolume(ctx context.Context, name string) error {
	if _, ok := f.Volumes[name]; !ok {
		f.Volumes[name] = nil
	}
	f.CreatedVolumes = append(f.CreatedVolumes, name)
	return nil
}

func (f *FakeClient) ComposeUp(ctx context.Context, composeFile, workDir string) error {
	f.ComposeUps = append(f.ComposeUps, ComposeUpCall{File: composeFile, Dir: workDir})
	return nil
}

func (f *FakeClient) ServiceStatus(ctx context.Context, containerName string) (ServiceState, error) {
	if seq, ok := f.StatusSeq[containerName]; ok && len(seq) > 0 {
		i := f.statusIdx[containerName]
		if i >= len(seq) {
			i = len(seq) - 1
		} else {
			f.statusIdx[containerName]++
		}
		return seq[i], nil
	}
	c, ok := f.Containers[containerName]
	if !ok {
		return ServiceState{}, nil
	}
	return ServiceState{Exists: true, Running: c.State == "running"}, nil
}
