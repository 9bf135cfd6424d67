package blueprint

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

func (s *BlueprintTestSuite) TestHostnameUniquing() {
	var names []string
	for i := 0; i < 3; i++ {
		names = append(names, s.newContainer("red", "nginx").Hostname())
	}
	s.Equal([]string{"red", "red1", "red2"}, names)
}

func (s *BlueprintTestSuite) TestHostnameSharedWithLoadBalancers() {
	s.newContainer("web", "nginx")
	lb, err := s.Context.NewLoadBalancer("web", nil)
	s.Require().NoError(err)
	s.Equal("web1", lb.Name())
	s.Equal("web1.q", lb.DNSName())
}

func (s *BlueprintTestSuite) TestInvalidHostname() {
	for _, name := range []string{"", "-web", "web-", "my_host", "MyHost", strings.Repeat("a", 254)} {
		_, err := s.Context.NewContainer(name, Image{Name: "nginx"}, ContainerOptions{})
		s.requireStage(err, StageConstruct)
	}

	_, err := s.Context.NewLoadBalancer("Bad_LB", nil)
	s.requireStage(err, StageConstruct)
}

func (s *BlueprintTestSuite) TestContainerRequiresImageName() {
	_, err := s.Context.NewContainer("web", Image{}, ContainerOptions{})
	s.requireStage(err, StageConstruct)
}

func (s *BlueprintTestSuite) TestContainerCopiesOptions() {
	cmd := []string{"run"}
	env := map[string]spec.Value{"A": spec.Literal("1")}
	c, err := s.Context.NewContainer("web", Image{Name: "nginx"}, ContainerOptions{Command: cmd, Env: env})
	s.Require().NoError(err)

	cmd[0] = "changed"
	env["B"] = spec.Literal("2")

	s.Equal([]string{"run"}, c.Command())
	s.Equal(map[string]spec.Value{"A": spec.Literal("1")}, c.Env())
	s.NotNil(c.FilepathToContent())
}

func (s *BlueprintTestSuite) TestContainerClone() {
	c, err := s.Context.NewContainer("web", Image{Name: "nginx"}, ContainerOptions{Command: []string{"run"}})
	s.Require().NoError(err)
	c.PlaceOn(PlacementOptions{Region: "us-west-1"})

	cp, err := c.Clone()
	s.Require().NoError(err)
	s.Equal("web1", cp.Hostname())
	s.NotEqual(c.refID, cp.refID)
	s.Equal(c.Command(), cp.Command())
	s.Equal(c.Image(), cp.Image())
	s.Empty(cp.Placements())

	replicas, err := c.Replicate(2)
	s.Require().NoError(err)
	s.Len(replicas, 2)
	s.Equal("web2", replicas[0].Hostname())
	s.Equal("web3", replicas[1].Hostname())
}

func (s *BlueprintTestSuite) TestWithEnv() {
	c, err := s.Context.NewContainer("web", Image{Name: "nginx"}, ContainerOptions{
		Env: map[string]spec.Value{"A": spec.Literal("1")},
	})
	s.Require().NoError(err)

	cp, err := c.WithEnv(map[string]spec.Value{"B": spec.Secret("b")})
	s.Require().NoError(err)
	s.Equal(map[string]spec.Value{"B": spec.Secret("b")}, cp.Env())
	s.Equal(map[string]spec.Value{"A": spec.Literal("1")}, c.Env())

	c.SetEnv("C", HostIP)
	s.Equal(HostIP, c.Env()["C"])
}

func (s *BlueprintTestSuite) TestPlaceOn() {
	c := s.newContainer("web", "nginx")
	c.PlaceOn(PlacementOptions{Provider: "Amazon", FloatingIP: "1.2.3.4"})
	s.Equal([]spec.Placement{{
		TargetContainer: "web",
		Provider:        "Amazon",
		FloatingIP:      "1.2.3.4",
	}}, c.Placements())
}

func (s *BlueprintTestSuite) TestDeployRejectsForeignContext() {
	infra := s.newInfrastructure(InfrastructureOptions{})

	other := NewContext()
	c, err := other.NewContainer("web", Image{Name: "nginx"}, ContainerOptions{})
	s.Require().NoError(err)
	s.requireStage(c.Deploy(infra), StageConstruct)

	lb, err := other.NewLoadBalancer("lb", nil)
	s.Require().NoError(err)
	s.requireStage(lb.Deploy(infra), StageConstruct)
	s.requireStage(lb.Deploy(nil), StageConstruct)
}

func (s *BlueprintTestSuite) TestNewLoadBalancerRejectsNil() {
	c := s.newContainer("web", "nginx")
	_, err := s.Context.NewLoadBalancer("lb", []*Container{c, nil})
	s.requireStage(err, StageConstruct)
	s.Contains(err.Error(), "index 1")
}

func (s *BlueprintTestSuite) TestIdentitySameReference() {
	c := s.newContainer("web", "nginx")
	s.Require().NoError(assignIDs([]*Container{c, c}))

	h, err := c.hash()
	s.Require().NoError(err)
	sum := sha1.Sum([]byte(h + "0"))
	s.Equal(hex.EncodeToString(sum[:]), c.ID())
}

func (s *BlueprintTestSuite) TestIdentityDistinctInstances() {
	a := s.newContainer("web", "nginx")
	b := s.newContainer("web", "nginx")
	s.NotEqual(a.Hostname(), b.Hostname())

	// Force equal content; only the refID tells them apart.
	b.hostname = a.hostname
	ha, err := a.hash()
	s.Require().NoError(err)
	hb, err := b.hash()
	s.Require().NoError(err)
	s.Require().Equal(ha, hb)

	s.Require().NoError(assignIDs([]*Container{b, a}))
	s.NotEqual(a.ID(), b.ID())

	first, second := a.ID(), b.ID()
	s.Require().NoError(assignIDs([]*Container{a, b, a}))
	s.Equal(first, a.ID())
	s.Equal(second, b.ID())
}

func (s *BlueprintTestSuite) TestIdentityDependsOnContent() {
	a, err := s.Context.NewContainer("a", Image{Name: "nginx"}, ContainerOptions{Command: []string{"x"}})
	s.Require().NoError(err)
	b, err := s.Context.NewContainer("b", Image{Name: "nginx"}, ContainerOptions{Command: []string{"x"}})
	s.Require().NoError(err)

	s.Require().NoError(assignIDs([]*Container{a, b}))
	s.NotEqual(a.ID(), b.ID())
	s.Len(a.ID(), 40)
}
