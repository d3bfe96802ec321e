package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wardenhq/warden/backend/internal/workflow"
)

const sampleGraph = `
id: default
name: Default Workflow
stations:
  - id: implement
    name: Implement
    position: 0
    agent_id: claude
    step_prompt: "fix the bug"
  - id: review
    name: Review
    position: 1
    agent_id: codex
    is_terminator: true
transitions:
  - source_station: implement
    target_station: review
    condition: on_success
`

func TestParseWorkflowGraphBuildsStationsAndTransitions(t *testing.T) {
	graph, err := ParseWorkflowGraph([]byte(sampleGraph))
	if err != nil {
		t.Fatalf("ParseWorkflowGraph: %v", err)
	}
	st, ok := graph.Station("implement")
	if !ok || st.AgentID != "claude" {
		t.Fatalf("expected implement station with agent claude, got %+v ok=%v", st, ok)
	}
	tr, ok := graph.Successor("implement", true)
	if !ok || tr.TargetStation != "review" {
		t.Fatalf("expected successor review, got %+v ok=%v", tr, ok)
	}
}

func TestParseWorkflowGraphRejectsMissingID(t *testing.T) {
	if _, err := ParseWorkflowGraph([]byte("name: no id\n")); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestWatchWorkflowGraphReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.yaml")
	if err := os.WriteFile(path, []byte(sampleGraph), 0o644); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *workflow.Graph, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initial, err := WatchWorkflowGraph(ctx, path, func(g *workflow.Graph) {
		reloaded <- g
	})
	if err != nil {
		t.Fatalf("WatchWorkflowGraph: %v", err)
	}
	if _, ok := initial.Station("implement"); !ok {
		t.Fatal("expected initial graph to contain the implement station")
	}

	updated := `
id: default
name: Default Workflow
stations:
  - id: implement
    name: Implement
    position: 0
    agent_id: claude
  - id: deploy
    name: Deploy
    position: 1
    is_terminator: true
transitions:
  - source_station: implement
    target_station: deploy
`
	time.Sleep(50 * time.Millisecond) // let the watcher's Add settle before writing
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case g := <-reloaded:
		if _, ok := g.Station("deploy"); !ok {
			t.Fatal("expected reloaded graph to contain the deploy station")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for workflow graph reload")
	}
}
