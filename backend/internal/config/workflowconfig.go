package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/backend/internal/workflow"
)

// workflowYAML is the on-disk shape of a workflow-graph definition file.
type workflowYAML struct {
	ID          string           `yaml:"id"`
	Name        string           `yaml:"name"`
	Stations    []stationYAML    `yaml:"stations"`
	Transitions []transitionYAML `yaml:"transitions"`
}

type stationYAML struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	Position     int     `yaml:"position"`
	AgentID      string  `yaml:"agent_id"`
	StepPrompt   string  `yaml:"step_prompt"`
	X            float64 `yaml:"x"`
	Y            float64 `yaml:"y"`
	IsTerminator bool    `yaml:"is_terminator"`
}

type transitionYAML struct {
	SourceStation string `yaml:"source_station"`
	TargetStation string `yaml:"target_station"`
	Condition     string `yaml:"condition"`
	Label         string `yaml:"label"`
}

// ParseWorkflowGraph parses a YAML workflow-graph definition into a
// *workflow.Graph. Transitions are assigned sequential CreatedAt timestamps
// in file order so Graph.Successor's tie-break is deterministic and matches
// the order the operator wrote them in.
func ParseWorkflowGraph(data []byte) (*workflow.Graph, error) {
	var doc workflowYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse workflow graph: %w", err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("config: workflow graph: id is required")
	}

	stations := make([]workflow.Station, 0, len(doc.Stations))
	for _, s := range doc.Stations {
		stations = append(stations, workflow.Station{
			ID:           s.ID,
			WorkflowID:   doc.ID,
			Name:         s.Name,
			Position:     s.Position,
			AgentID:      s.AgentID,
			StepPrompt:   s.StepPrompt,
			X:            s.X,
			Y:            s.Y,
			IsTerminator: s.IsTerminator,
		})
	}

	base := time.Unix(0, 0).UTC()
	transitions := make([]workflow.Transition, 0, len(doc.Transitions))
	for i, tr := range doc.Transitions {
		transitions = append(transitions, workflow.Transition{
			WorkflowID:    doc.ID,
			SourceStation: tr.SourceStation,
			TargetStation: tr.TargetStation,
			Condition:     workflow.Condition(tr.Condition),
			Label:         tr.Label,
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		})
	}

	wf := workflow.Workflow{ID: doc.ID, Name: doc.Name}
	return workflow.NewGraph(wf, stations, transitions), nil
}

// LoadWorkflowGraph reads and parses the workflow graph at path.
func LoadWorkflowGraph(path string) (*workflow.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read workflow graph %s: %w", path, err)
	}
	return ParseWorkflowGraph(data)
}

// WorkflowWatcher reloads a workflow graph file on change and hands the
// freshly-parsed *workflow.Graph to onReload. Modeled on a
// credentials-file watcher: watch the parent directory so atomic
// write-then-rename saves (the common editor/deploy pattern) are observed,
// filter events down to the target file's basename.
type WorkflowWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*workflow.Graph)
}

// WatchWorkflowGraph loads path once synchronously, then starts a watcher
// goroutine that reloads and invokes onReload whenever the file changes.
// The goroutine exits when ctx is cancelled.
func WatchWorkflowGraph(ctx context.Context, path string, onReload func(*workflow.Graph)) (*workflow.Graph, error) {
	graph, err := LoadWorkflowGraph(path)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config: workflow graph hot-reload disabled", "err", err)
		return graph, nil
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		slog.Warn("config: workflow graph hot-reload disabled", "err", err)
		return graph, nil
	}

	ww := &WorkflowWatcher{path: path, watcher: w, onReload: onReload}
	go ww.watchLoop(ctx)
	return graph, nil
}

func (w *WorkflowWatcher) watchLoop(ctx context.Context) {
	defer func() { _ = w.watcher.Close() }()
	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			graph, err := LoadWorkflowGraph(w.path)
			if err != nil {
				slog.Warn("config: workflow graph reload failed; keeping previous graph", "path", w.path, "err", err)
				continue
			}
			slog.Info("config: workflow graph reloaded", "path", w.path)
			if w.onReload != nil {
				w.onReload(graph)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config: workflow graph watcher error", "err", err)
		}
	}
}
