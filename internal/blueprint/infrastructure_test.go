package blueprint

import (
	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

func (s *BlueprintTestSuite) TestRenderWithoutInfrastructure() {
	out, err := s.Context.Render()
	s.Require().NoError(err)
	s.Equal("{}", string(out))
}

func (s *BlueprintTestSuite) TestRenderIsDeterministic() {
	s.buildDemo()
	first, err := s.Context.Render()
	s.Require().NoError(err)

	again, err := s.Context.Render()
	s.Require().NoError(err)
	s.Equal(string(first), string(again))

	s.Context.Reset()
	s.buildDemo()
	second, err := s.Context.Render()
	s.Require().NoError(err)
	s.Equal(string(first), string(second))
}

func (s *BlueprintTestSuite) TestCompileDemo() {
	s.buildDemo()
	d, err := s.Context.Infrastructure().Compile()
	s.Require().NoError(err)

	s.Equal("demo", d.Namespace)
	s.Equal([]string{"10.0.0.0/8"}, d.AdminACL)

	s.Require().Len(d.Machines, 2)
	s.Equal(RoleMaster, d.Machines[0].Role)
	s.Equal(RoleWorker, d.Machines[1].Role)
	s.Equal("us-west-1", d.Machines[0].Region)
	s.Equal("t2.small", d.Machines[0].Size)
	s.Equal([]string{}, d.Machines[0].SSHKeys)

	hostnames := make([]string, 0, len(d.Containers))
	for _, c := range d.Containers {
		hostnames = append(hostnames, c.Hostname)
		s.Len(c.ID, 40)
	}
	s.Equal([]string{"web", "web1", "web2", "db"}, hostnames)
	s.Equal([]spec.LoadBalancer{{Name: "web-lb", Hostnames: []string{"web", "web1", "web2"}}}, d.LoadBalancers)
	s.Equal([]spec.Placement{{TargetContainer: "web", Provider: "Amazon"}}, d.Placements)
	s.Len(d.Connections, 4)
	s.Equal(spec.Secret("db-password"), d.Containers[3].Env["PASSWORD"])

	out, err := spec.Encode(d)
	s.Require().NoError(err)
	decoded, err := spec.Decode(out)
	s.Require().NoError(err)
	reencoded, err := spec.Encode(decoded)
	s.Require().NoError(err)
	s.Equal(string(out), string(reencoded))
}

func (s *BlueprintTestSuite) TestCompileEmptyInfrastructure() {
	infra := s.newInfrastructure(InfrastructureOptions{})
	d, err := infra.Compile()
	s.Require().NoError(err)

	s.Equal(DefaultNamespace, d.Namespace)
	s.NotNil(d.Containers)
	s.NotNil(d.LoadBalancers)
	s.NotNil(d.Connections)
	s.NotNil(d.Placements)
	s.NotNil(d.AdminACL)

	out, err := spec.Encode(d)
	s.Require().NoError(err)
	s.Contains(string(out), `"containers":[]`)
	s.Contains(string(out), `"adminACL":[]`)
}

func (s *BlueprintTestSuite) TestDeploySameReferenceTwice() {
	infra := s.newInfrastructure(InfrastructureOptions{})
	c := s.newContainer("web", "nginx")
	alias := c
	s.Require().NoError(c.Deploy(infra))
	s.Require().NoError(alias.Deploy(infra))

	d, err := infra.Compile()
	s.Require().NoError(err)
	s.Len(d.Containers, 1)
	s.Len(infra.Containers(), 1)
}

func (s *BlueprintTestSuite) TestSecondInfrastructure() {
	s.newInfrastructure(InfrastructureOptions{})
	m := s.newMachine("Amazon", "")
	_, err := s.Context.NewInfrastructure([]*Machine{m}, []*Machine{m}, InfrastructureOptions{})
	s.requireStage(err, StageInfrastructure)

	s.Context.Reset()
	s.Nil(s.Context.Infrastructure())
	s.newInfrastructure(InfrastructureOptions{})
}

func (s *BlueprintTestSuite) TestInfrastructureRequiresMachines() {
	m := s.newMachine("Amazon", "")

	_, err := s.Context.NewInfrastructure(nil, []*Machine{m}, InfrastructureOptions{})
	s.requireStage(err, StageConstruct)

	_, err = s.Context.NewInfrastructure([]*Machine{m}, nil, InfrastructureOptions{})
	s.requireStage(err, StageConstruct)

	_, err = s.Context.NewInfrastructure([]*Machine{m}, []*Machine{m, nil}, InfrastructureOptions{})
	s.requireStage(err, StageConstruct)
	s.Contains(err.Error(), "index 1")

	s.Nil(s.Context.Infrastructure())
}

func (s *BlueprintTestSuite) TestInfrastructureTagsClones() {
	m := s.newMachine("Amazon", "")
	infra, err := s.Context.NewInfrastructure([]*Machine{m}, m.Replicate(2), InfrastructureOptions{})
	s.Require().NoError(err)

	s.Empty(m.Role())
	machines := infra.Machines()
	s.Require().Len(machines, 3)
	s.Equal(RoleMaster, machines[0].Role())
	s.Equal(RoleWorker, machines[2].Role())
	s.NotSame(m, machines[0])
}

func (s *BlueprintTestSuite) TestCompileRejections() {
	tests := []struct {
		name    string
		build   func()
		message string
	}{
		{
			name: "uppercase namespace",
			build: func() {
				s.newInfrastructure(InfrastructureOptions{Namespace: "MyNS"})
			},
			message: "MyNS",
		},
		{
			name: "namespace with path separators",
			build: func() {
				s.newInfrastructure(InfrastructureOptions{Namespace: "../../../tmp/evil"})
			},
			message: "../../../tmp/evil",
		},
		{
			name: "namespace with dots",
			build: func() {
				s.newInfrastructure(InfrastructureOptions{Namespace: "demo.prod"})
			},
			message: "demo.prod",
		},
		{
			name: "duplicate hostname",
			build: func() {
				infra := s.newInfrastructure(InfrastructureOptions{})
				a := s.newContainer("web", "nginx")
				b := s.newContainer("web", "nginx")
				b.hostname = "web"
				s.Require().NoError(a.Deploy(infra))
				s.Require().NoError(b.Deploy(infra))
			},
			message: `"web"`,
		},
		{
			name: "reserved hostname",
			build: func() {
				infra := s.newInfrastructure(InfrastructureOptions{})
				s.Require().NoError(s.newContainer(spec.PublicInternet, "nginx").Deploy(infra))
			},
			message: "reserved",
		},
		{
			name: "undeployed endpoint",
			build: func() {
				infra := s.newInfrastructure(InfrastructureOptions{})
				web := s.newContainer("web", "nginx")
				ghost := s.newContainer("ghost", "nginx")
				s.Require().NoError(web.Deploy(infra))
				s.Require().NoError(ghost.AllowFrom(Endpoints(web), spec.Port(80)))
			},
			message: `"ghost"`,
		},
		{
			name: "conflicting dockerfiles",
			build: func() {
				infra := s.newInfrastructure(InfrastructureOptions{})
				a, err := s.Context.NewContainer("a", Image{Name: "app", Dockerfile: "FROM alpine"}, ContainerOptions{})
				s.Require().NoError(err)
				b, err := s.Context.NewContainer("b", Image{Name: "app", Dockerfile: "FROM debian"}, ContainerOptions{})
				s.Require().NoError(err)
				s.Require().NoError(a.Deploy(infra))
				s.Require().NoError(b.Deploy(infra))
			},
			message: "app has differing Dockerfiles",
		},
		{
			name: "mixed providers",
			build: func() {
				amazon := s.newMachine("Amazon", "")
				google := s.newMachine("Google", "")
				_, err := s.Context.NewInfrastructure([]*Machine{amazon}, []*Machine{google}, InfrastructureOptions{})
				s.Require().NoError(err)
			},
			message: "same provider and region",
		},
		{
			name: "mixed regions",
			build: func() {
				west := s.newMachine("Amazon", "us-west-1")
				east := s.newMachine("Amazon", "us-east-1")
				_, err := s.Context.NewInfrastructure([]*Machine{west}, []*Machine{east}, InfrastructureOptions{})
				s.Require().NoError(err)
			},
			message: "same provider and region",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Context.Reset()
			tt.build()
			_, err := s.Context.Render()
			s.requireStage(err, StageValidate)
			s.Contains(err.Error(), tt.message)
		})
	}
}
