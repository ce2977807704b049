package orchestrator

import (
	"context"
	"time"

	"github.com/bestyec/DevFlowCheck/internal/complexity"
	"github.com/bestyec/DevFlowCheck/internal/tracker"
	"github.com/bestyec/DevFlowCheck/internal/verify"
	"github.com/stretchr/testify/mock"
)

type mockTracker struct {
	mock.Mock
}

func (m *mockTracker) Next(ctx context.Context) (tracker.NextTask, bool, error) {
	args := m.Called()
	return args.Get(0).(tracker.NextTask), args.Bool(1), args.Error(2)
}

func (m *mockTracker) Show(ctx context.Context, id string) (tracker.Details, error) {
	args := m.Called(id)
	return args.Get(0).(tracker.Details), args.Error(1)
}

func (m *mockTracker) AnalyzeComplexity(ctx context.Context, id string) error {
	return m.Called(id).Error(0)
}

func (m *mockTracker) Expand(ctx context.Context, id, prompt string) error {
	return m.Called(id, prompt).Error(0)
}

func (m *mockTracker) SetStatus(ctx context.Context, id, status string) error {
	return m.Called(id, status).Error(0)
}

type mockGate struct {
	mock.Mock
}

func (m *mockGate) EvaluateFile(path, taskID string) complexity.Decision {
	return m.Called(path, taskID).Get(0).(complexity.Decision)
}

type mockAgent struct {
	mock.Mock
}

func (m *mockAgent) Apply(ctx context.Context, prompt string) error {
	return m.Called(prompt).Error(0)
}

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) RunLint(ctx context.Context) verify.Result {
	return m.Called().Get(0).(verify.Result)
}

func (m *mockVerifier) RunTests(ctx context.Context) verify.Result {
	return m.Called().Get(0).(verify.Result)
}

type mockCommitter struct {
	mock.Mock
}

func (m *mockCommitter) Commit(ctx context.Context, id, title string) error {
	return m.Called(id, title).Error(0)
}

// fixture bundles a controller with its mocked collaborators.
type fixture struct {
	tracker   *mockTracker
	gate      *mockGate
	agent     *mockAgent
	verifier  *mockVerifier
	committer *mockCommitter
}

const reportPath = "scripts/task-complexity-report.json"

func newFixture() *fixture {
	return &fixture{
		tracker:   new(mockTracker),
		gate:      new(mockGate),
		agent:     new(mockAgent),
		verifier:  new(mockVerifier),
		committer: new(mockCommitter),
	}
}

func (f *fixture) deps() Deps {
	return Deps{
		Tracker:    f.tracker,
		Gate:       f.gate,
		ReportPath: reportPath,
		Agent:      f.agent,
		Verifier:   f.verifier,
		Committer:  f.committer,
	}
}

func (f *fixture) assertExpectations(t mock.TestingT) {
	f.tracker.AssertExpectations(t)
	f.gate.AssertExpectations(t)
	f.agent.AssertExpectations(t)
	f.verifier.AssertExpectations(t)
	f.committer.AssertExpectations(t)
}

var (
	passing = verify.Result{Succeeded: true, Output: "ok  \tgithub.com/example/app\t0.012s"}
	failing = verify.Result{Succeeded: false, Output: "--- FAIL: TestParse (0.00s)\n    parse_test.go:12: want 9, got 0"}
)

// expectTask sets up next, show and analyze-complexity for task id with the
// given complexity decision.
func (f *fixture) expectTask(id, title string, decision complexity.Decision) {
	f.tracker.On("Next").Return(tracker.NextTask{ID: id, Title: title}, true, nil).Once()
	f.tracker.On("Show", id).Return(tracker.Details{
		Title:        title,
		Details:      "Implement the thing.",
		TestStrategy: "Unit tests.",
	}, nil).Once()
	f.tracker.On("AnalyzeComplexity", id).Return(nil).Once()
	f.gate.On("EvaluateFile", reportPath, id).Return(decision).Once()
}

var testTime = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
