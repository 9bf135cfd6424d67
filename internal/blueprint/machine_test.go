package blueprint

import (
	"github.com/atvirokodosprendimai/knitplan/internal/spec"
)

func (s *BlueprintTestSuite) TestNewMachineResolvesSize() {
	m, err := s.Context.NewMachine(MachineOptions{
		Provider: "Amazon",
		CPU:      spec.Exactly(2),
		RAM:      spec.Exactly(8),
		SSHKeys:  []string{"ssh-rsa AAAA"},
	})
	s.Require().NoError(err)
	s.Equal("t2.large", m.Size)
	s.Equal(2, m.CPU)
	s.Equal(8.0, m.RAM)
	s.Equal("us-west-1", m.Region)
	s.Empty(m.Role())
}

func (s *BlueprintTestSuite) TestNewMachinePinnedSize() {
	m, err := s.Context.NewMachine(MachineOptions{Provider: "Google", Size: "n1-standard-1", Region: "europe-west1-b"})
	s.Require().NoError(err)
	s.Equal("n1-standard-1", m.Size)
	s.Equal("europe-west1-b", m.Region)

	_, err = s.Context.NewMachine(MachineOptions{Provider: "Amazon", Size: "t2.micro", RAM: spec.AtLeast(2)})
	s.requireStage(err, StageSize)

	_, err = s.Context.NewMachine(MachineOptions{Provider: "Amazon", Size: "huge"})
	s.requireStage(err, StageSize)
}

func (s *BlueprintTestSuite) TestNewMachineVagrant() {
	m, err := s.Context.NewMachine(MachineOptions{Provider: "Vagrant", CPU: spec.Exactly(2)})
	s.Require().NoError(err)
	s.Equal("1,2", m.Size)
	s.Equal("", m.Region)
}

func (s *BlueprintTestSuite) TestNewMachineProviderErrors() {
	_, err := s.Context.NewMachine(MachineOptions{})
	s.requireStage(err, StageConstruct)
	s.Contains(err.Error(), "provider")

	_, err = s.Context.NewMachine(MachineOptions{Provider: "Azure"})
	s.requireStage(err, StageSize)
}

func (s *BlueprintTestSuite) TestMachineClone() {
	m := s.newMachine("Amazon", "")
	m.SSHKeys = []string{"key"}

	cp := m.Clone()
	s.NotEqual(m.refID, cp.refID)
	s.Equal(m.Size, cp.Size)

	cp.SSHKeys[0] = "other"
	s.Equal([]string{"key"}, m.SSHKeys)

	s.Len(m.Replicate(3), 3)
}
