package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/knitplan/internal/blueprint"
	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

const demo = `
namespace: demo
adminACL: ["1.2.3.4/32"]
machines:
  base:
    provider: Amazon
    cpu: {min: 2}
    ram: 4
    githubKeys: [octocat]
masters: [{machine: base}]
workers: [{machine: base, count: 3}]
containers:
  - name: web
    image: nginx
    replicas: 2
    env:
      A: plain
      B: {secret: api-key}
      C: {runtime: host.ip}
    placement: {provider: Amazon}
  - name: db
    image: {name: postgres, dockerfile: "FROM postgres:16"}
    command: [postgres, -c, fsync=off]
loadBalancers:
  - {name: web-lb, containers: [web]}
connections:
  - {from: [public], to: [web-lb], ports: 80}
  - {from: [web], to: [db], ports: "5432"}
  - {from: [web], to: [db], ports: "8000-8080"}
  - {from: [db], to: [web], ports: {min: 9000, max: 9001}}
`

type fakeKeys map[string][]string

func (f fakeKeys) Keys(_ context.Context, user string) ([]string, error) {
	keys, ok := f[user]
	if !ok {
		return nil, errors.New("no such user")
	}
	return keys, nil
}

func compile(t *testing.T, doc string, keys KeySource) (*spec.Deployment, error) {
	t.Helper()
	parsed, err := ParseBytes([]byte(doc))
	require.NoError(t, err)
	return Compile(context.Background(), parsed, keys)
}

func TestCompileDemo(t *testing.T) {
	d, err := compile(t, demo, fakeKeys{"octocat": {"ssh-ed25519 AAAA"}})
	require.NoError(t, err)

	assert.Equal(t, "demo", d.Namespace)
	assert.Equal(t, []string{"1.2.3.4/32"}, d.AdminACL)

	require.Len(t, d.Machines, 4)
	assert.Equal(t, blueprint.RoleMaster, d.Machines[0].Role)
	for _, m := range d.Machines[1:] {
		assert.Equal(t, blueprint.RoleWorker, m.Role)
	}
	assert.Equal(t, "t2.medium", d.Machines[0].Size)
	assert.Equal(t, []string{"ssh-ed25519 AAAA"}, d.Machines[0].SSHKeys)

	require.Len(t, d.Containers, 3)
	assert.Equal(t, "web", d.Containers[0].Hostname)
	assert.Equal(t, "web1", d.Containers[1].Hostname)
	assert.Equal(t, "db", d.Containers[2].Hostname)
	assert.Equal(t, spec.Secret("api-key"), d.Containers[0].Env["B"])
	assert.Equal(t, blueprint.HostIP, d.Containers[1].Env["C"])
	assert.Equal(t, spec.Image{Name: "postgres", Dockerfile: "FROM postgres:16"}, d.Containers[2].Image)
	assert.Equal(t, []string{"postgres", "-c", "fsync=off"}, d.Containers[2].Command)

	assert.Len(t, d.Placements, 2)
	assert.Equal(t, []spec.LoadBalancer{{Name: "web-lb", Hostnames: []string{"web", "web1"}}}, d.LoadBalancers)

	require.Len(t, d.Connections, 4)
	assert.Equal(t, spec.Connection{From: []string{"public"}, To: []string{"web-lb"}, MinPort: 80, MaxPort: 80}, d.Connections[0])
	assert.Equal(t, []string{"web", "web1"}, d.Connections[1].From)
	assert.Equal(t, 5432, d.Connections[1].MaxPort)
	assert.Equal(t, 8000, d.Connections[2].MinPort)
	assert.Equal(t, 8080, d.Connections[2].MaxPort)
	assert.Equal(t, 9001, d.Connections[3].MaxPort)
}

func TestCompileIsDeterministic(t *testing.T) {
	keys := fakeKeys{"octocat": {"ssh-ed25519 AAAA"}}
	first, err := compile(t, demo, keys)
	require.NoError(t, err)
	second, err := compile(t, demo, keys)
	require.NoError(t, err)

	a, err := spec.Encode(first)
	require.NoError(t, err)
	b, err := spec.Encode(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestParseRejectsUnknownFields(t *testing.T) {
	for _, doc := range []string{
		"namespce: demo\n",
		"containers: [{name: web, image: nginx, replica: 2}]\n",
		"containers: [{name: web, image: {name: nginx, file: x}}]\n",
		"connections: [{from: [a], to: [b], ports: [80]}]\n",
		"connections: [{from: [a], to: [b], ports: 80-x}]\n",
	} {
		_, err := ParseBytes([]byte(doc))
		assert.Error(t, err, doc)
	}

	_, err := ParseBytes(nil)
	assert.Error(t, err)
}

func TestCompileErrors(t *testing.T) {
	base := `
machines:
  m: {provider: Amazon}
masters: [{machine: m}]
workers: [{machine: m}]
`
	tests := []struct {
		name  string
		doc   string
		stage blueprint.Stage
	}{
		{
			name:  "unknown machine option",
			doc:   "machines:\n  m: {provider: Amazon, sise: t2.micro}\nmasters: [{machine: m}]\nworkers: [{machine: m}]\n",
			stage: blueprint.StageConstruct,
		},
		{
			name:  "unknown provider",
			doc:   "machines:\n  m: {provider: Azure}\nmasters: [{machine: m}]\nworkers: [{machine: m}]\n",
			stage: blueprint.StageSize,
		},
		{
			name:  "no workers",
			doc:   "machines:\n  m: {provider: Amazon}\nmasters: [{machine: m}]\n",
			stage: blueprint.StageConstruct,
		},
		{
			name:  "missing ports",
			doc:   base + "containers: [{name: a, image: x}]\nconnections: [{from: [a], to: [a]}]\n",
			stage: blueprint.StageTopology,
		},
		{
			name:  "public port range",
			doc:   base + "containers: [{name: a, image: x}]\nconnections: [{from: [public], to: [a], ports: 80-81}]\n",
			stage: blueprint.StageTopology,
		},
		{
			name:  "load balancer source",
			doc:   base + "containers: [{name: a, image: x}]\nloadBalancers: [{name: lb, containers: [a]}]\nconnections: [{from: [lb], to: [a], ports: 80}]\n",
			stage: blueprint.StageTopology,
		},
		{
			name:  "uppercase namespace",
			doc:   "namespace: MyNS\n" + base,
			stage: blueprint.StageValidate,
		},
		{
			name:  "namespace outside a dns label",
			doc:   "namespace: ../../../tmp/evil\n" + base,
			stage: blueprint.StageValidate,
		},
		{
			name:  "conflicting dockerfiles",
			doc:   base + "containers:\n  - {name: a, image: {name: app, dockerfile: one}}\n  - {name: b, image: {name: app, dockerfile: two}}\n",
			stage: blueprint.StageValidate,
		},
		{
			name:  "invalid hostname",
			doc:   base + "containers: [{name: a, hostname: Web_1, image: x}]\n",
			stage: blueprint.StageConstruct,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compile(t, tt.doc, nil)
			require.Error(t, err)
			assert.True(t, blueprint.IsStage(err, tt.stage), err.Error())
		})
	}
}

func TestCompileReferenceErrors(t *testing.T) {
	base := "machines:\n  m: {provider: Amazon}\nmasters: [{machine: m}]\nworkers: [{machine: m}]\n"
	for _, doc := range []string{
		"machines:\n  m: {provider: Amazon}\nmasters: [{machine: x}]\nworkers: [{machine: m}]\n",
		base + "containers: [{name: a, image: x}]\nconnections: [{from: [ghost], to: [a], ports: 80}]\n",
		base + "loadBalancers: [{name: lb, containers: [ghost]}]\n",
		base + "containers: [{name: a, image: x}, {name: a, image: y}]\n",
		"machines:\n  m: {provider: Amazon, githubKeys: [nobody]}\nmasters: [{machine: m}]\nworkers: [{machine: m}]\n",
	} {
		_, err := compile(t, doc, fakeKeys{})
		assert.Error(t, err, doc)
	}

	_, err := compile(t, "machines:\n  m: {provider: Amazon, githubKeys: [octocat]}\n", nil)
	assert.ErrorContains(t, err, "no key source")
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blueprint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(demo), 0o644))

	doc, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", doc.Namespace)
	assert.Len(t, doc.Containers, 2)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
