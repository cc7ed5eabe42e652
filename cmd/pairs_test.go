package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fracture.dev/pkg/fracture/internal/domain"
	domainmocks "fracture.dev/pkg/fracture/internal/domain/mocks"
	m "fracture.dev/pkg/fracture/internal/model"
)

func TestPairsCmd_UsesCoverageFlags(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newPairsCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	mockWorkflow.On("Pairs", mock.Anything, mock.MatchedBy(func(args domain.PairsArgs) bool {
		return args.Schema == m.Path("msg.yaml") && args.CostMode == "order" && args.Output == m.Path("pairs-out")
	})).Return(nil)

	cmd.SetArgs([]string{"pairs", "--schema", "msg.yaml", "--cost-mode", "order", "-o", "pairs-out"})
	err := cmd.Execute()
	require.NoError(t, err)
}

func TestPairsCmd_RejectsArgs(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newPairsCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	cmd.SetArgs([]string{"pairs", "extra"})
	err := cmd.Execute()
	require.Error(t, err)
}
