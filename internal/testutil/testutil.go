// Package testutil provides test doubles shared by package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/shinyhost/internal/domain/shiny"
)

// MockController is a mock implementation of the supervisor controls.
type MockController struct {
	mock.Mock
}

// Start mocks the Start method.
func (m *MockController) Start(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// Stop mocks the Stop method.
func (m *MockController) Stop() error {
	args := m.Called()
	return args.Error(0)
}

// Status mocks the Status method.
func (m *MockController) Status() shiny.Status {
	args := m.Called()
	return args.Get(0).(shiny.Status)
}

// MockDiagnoser is a mock implementation of the diagnostic runner.
type MockDiagnoser struct {
	mock.Mock
}

// Run mocks the Run method.
func (m *MockDiagnoser) Run(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// NewMockController creates a controller whose expectations are asserted
// when the test ends.
func NewMockController(t *testing.T) *MockController {
	t.Helper()
	m := new(MockController)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// NewMockDiagnoser creates a diagnoser with no default behavior.
func NewMockDiagnoser(t *testing.T) *MockDiagnoser {
	t.Helper()
	m := new(MockDiagnoser)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}
