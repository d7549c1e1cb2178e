package composefile_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compose-migrate/src/composefile"
)

const basicCompose = `
services:
  web:
    image: nginx:latest
    container_name: web
    ports:
      - "80:80"
    volumes:
      - webdata:/usr/share/nginx/html
    networks:
      - frontend
  db:
    image: postgres:16
    volumes:
      - dbdata:/var/lib/postgresql/data
volumes:
  webdata:
  dbdata:
networks:
  frontend:
`

func TestParseReader_Basic(t *testing.T) {
	inv, err := composefile.ParseReader(strings.NewReader(basicCompose), "demo")
	require.NoError(t, err)

	require.Len(t, inv.Services, 2)
	assert.Equal(t, "web", inv.Services[0].Name)
	assert.Equal(t, "nginx:latest", inv.Services[0].Image)
	assert.Equal(t, "web", inv.Services[0].ContainerName)
	assert.Equal(t, []string{"webdata"}, inv.Services[0].Volumes)
	assert.Equal(t, []string{"frontend"}, inv.Services[0].Networks)

	assert.Equal(t, "db", inv.Services[1].Name)
	// no container_name: compose v2 default naming applies
	assert.Equal(t, "demo-db-1", inv.Services[1].ContainerName)

	assert.Equal(t, []string{"dbdata", "webdata"}, inv.VolumeNames())
	assert.Equal(t, []string{"frontend"}, inv.NetworkNames())
	assert.Equal(t, []string{"nginx:latest", "postgres:16"}, inv.ImageRefs())
}

func TestParseReader_EveryServiceHasImage(t *testing.T) {
	inv, err := composefile.ParseReader(strings.NewReader(basicCompose), "demo")
	require.NoError(t, err)
	for _, svc := range inv.Services {
		assert.NotEmpty(t, svc.Image, "service %s", svc.Name)
	}
}

func TestParseReader_MissingImage(t *testing.T) {
	doc := `
services:
  broken:
    build: .
`
	_, err := composefile.ParseReader(strings.NewReader(doc), "demo")
	require.Error(t, err)
	var perr *composefile.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "broken")
}

func TestParseReader_NoServices(t *testing.T) {
	doc := `
volumes:
  data:
`
	_, err := composefile.ParseReader(strings.NewReader(doc), "demo")
	var perr *composefile.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "services")
}

func TestParseReader_NotYAML(t *testing.T) {
	_, err := composefile.ParseReader(strings.NewReader("{{{ not yaml"), "demo")
	var perr *composefile.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseReader_BindSources(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "nginx.conf")
	require.NoError(t, os.WriteFile(conf, []byte("server {}\n"), 0o644))

	doc := `
services:
  web:
    image: nginx:latest
    volumes:
      - ` + conf + `:/etc/nginx/nginx.conf:ro
      - /does/not/exist:/missing
      - webdata:/data
volumes:
  webdata:
`
	inv, err := composefile.ParseReader(strings.NewReader(doc), "demo")
	require.NoError(t, err)
	require.Len(t, inv.Services, 1)
	// only host paths that actually exist are inventoried
	assert.Equal(t, []string{conf}, inv.Services[0].BindSources)
	assert.Equal(t, []string{"webdata"}, inv.Services[0].Volumes)
}

func TestParseReader_LongVolumeSyntax(t *testing.T) {
	doc := `
services:
  db:
    image: postgres:16
    volumes:
      - type: volume
        source: dbdata
        target: /var/lib/postgresql/data
volumes:
  dbdata:
`
	inv, err := composefile.ParseReader(strings.NewReader(doc), "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"dbdata"}, inv.Services[0].Volumes)
}

func TestParseReader_NetworkMappingForm(t *testing.T) {
	doc := `
services:
  app:
    image: app:1
    networks:
      backend:
        aliases:
          - app.internal
networks:
  backend:
`
	inv, err := composefile.ParseReader(strings.NewReader(doc), "demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"backend"}, inv.Services[0].Networks)
}

func TestParse_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docker-compose.yml")
	require.NoError(t, os.WriteFile(path, []byte(basicCompose), 0o644))

	inv, err := composefile.Parse(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), inv.Project)
	assert.Len(t, inv.Services, 2)
}

func TestParse_FileMissing(t *testing.T) {
	_, err := composefile.Parse("/no/such/compose.yml")
	var perr *composefile.ParseError
	require.ErrorAs(t, err, &perr)
}
