package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fracture.dev/pkg/fracture/internal/domain"
	domainmocks "fracture.dev/pkg/fracture/internal/domain/mocks"
	m "fracture.dev/pkg/fracture/internal/model"
)

func TestApplyCmd_PassesPatchFile(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newApplyCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	mockWorkflow.On("Apply", mock.Anything, domain.ApplyArgs{
		Base:        m.Path("base.hex"),
		Patches:     m.Path("case.cbor"),
		FrameOffset: 8,
		Output:      m.Path("patched.hex"),
	}).Return(nil)

	cmd.SetArgs([]string{"apply", "--frame-offset", "8", "--out", "patched.hex", "base.hex", "case.cbor"})
	err := cmd.Execute()
	require.NoError(t, err)
}

func TestApplyCmd_ReturnsWorkflowError(t *testing.T) {
	mockWorkflow := domainmocks.NewMockWorkflow(t)

	cmd := newRootCmd()
	cmd.AddCommand(newApplyCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	originalWorkflow := workflow
	workflow = mockWorkflow
	defer func() { workflow = originalWorkflow }()

	wantErr := errors.New("patch past end")
	mockWorkflow.On("Apply", mock.Anything, mock.Anything).Return(wantErr)

	cmd.SetArgs([]string{"apply", "--frame-offset", "0", "base.hex", "case_offset.txt"})
	err := cmd.Execute()
	require.ErrorIs(t, err, wantErr)
}

func TestApplyCmd_NeedsTwoArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.AddCommand(newApplyCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	cmd.SetArgs([]string{"apply", "base.hex"})
	err := cmd.Execute()
	require.Error(t, err)
}
