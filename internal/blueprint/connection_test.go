package blueprint

import (
	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

func (s *BlueprintTestSuite) TestAllowTrafficAppendsOneRecord() {
	web := s.newContainer("web", "nginx")
	db := s.newContainer("db", "postgres")

	ports, err := spec.NewRange(80, 81)
	s.Require().NoError(err)
	s.Require().NoError(s.Context.AllowTraffic(Endpoints(web), Endpoints(db), ports))

	s.Equal([]spec.Connection{{
		From:    []string{"web"},
		To:      []string{"db"},
		MinPort: 80,
		MaxPort: 81,
	}}, s.Context.Connections())
}

func (s *BlueprintTestSuite) TestAllowTrafficKeepsCallOrder() {
	a := s.newContainer("a", "nginx")
	b := s.newContainer("b", "nginx")
	lb, err := s.Context.NewLoadBalancer("lb", []*Container{b})
	s.Require().NoError(err)

	s.Require().NoError(b.AllowFrom(Endpoints(a), spec.Port(1)))
	s.Require().NoError(lb.AllowFrom(Endpoints(PublicInternet), spec.Port(443)))
	s.Require().NoError(s.Context.AllowTraffic(Endpoints(a), Endpoints(PublicInternet), spec.Port(53)))

	conns := s.Context.Connections()
	s.Require().Len(conns, 3)
	s.Equal([]string{"b"}, conns[0].To)
	s.Equal([]string{spec.PublicInternet}, conns[1].From)
	s.Equal([]string{"lb"}, conns[1].To)
	s.Equal(53, conns[2].MinPort)
}

func (s *BlueprintTestSuite) TestAllowTrafficRejections() {
	web := s.newContainer("web", "nginx")
	lb, err := s.Context.NewLoadBalancer("lb", []*Container{web})
	s.Require().NoError(err)
	wide, err := spec.NewRange(80, 81)
	s.Require().NoError(err)
	var nilContainer *Container

	tests := []struct {
		name    string
		src     []Connectable
		dst     []Connectable
		ports   spec.Range
		message string
	}{
		{
			name:    "missing ports",
			src:     Endpoints(web),
			dst:     Endpoints(web),
			ports:   spec.Range{},
			message: "a port or port range is required",
		},
		{
			name:    "unbounded ports",
			src:     Endpoints(web),
			dst:     Endpoints(web),
			ports:   spec.AtLeast(80),
			message: "a port or port range is required",
		},
		{
			name:    "nil endpoint",
			src:     Endpoints(web, nil),
			dst:     Endpoints(web),
			ports:   spec.Port(80),
			message: "index 1",
		},
		{
			name:    "typed nil endpoint",
			src:     Endpoints(web),
			dst:     Endpoints(nilContainer),
			ports:   spec.Port(80),
			message: "index 0",
		},
		{
			name:    "load balancer source",
			src:     Endpoints(web, lb),
			dst:     Endpoints(web),
			ports:   spec.Port(80),
			message: "index 1",
		},
		{
			name:    "public destination with range",
			src:     Endpoints(web),
			dst:     Endpoints(PublicInternet),
			ports:   wide,
			message: "public internet",
		},
		{
			name:    "public source with range",
			src:     Endpoints(PublicInternet),
			dst:     Endpoints(lb),
			ports:   wide,
			message: "public internet",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := s.Context.AllowTraffic(tt.src, tt.dst, tt.ports)
			s.requireStage(err, StageTopology)
			s.Contains(err.Error(), tt.message)
		})
	}
	s.Empty(s.Context.Connections())
}
