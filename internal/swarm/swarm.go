// Package swarm drives multi-agent swarm lifecycle through the orchestrator
// CLI. The swarm itself lives in the orchestrator; this package owns argument
// construction, id extraction from loosely structured CLI output, and the
// locally mirrored swarm state.
package swarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dotcommander/hivehook/internal/gateway"
	"github.com/dotcommander/hivehook/internal/models"
	"github.com/dotcommander/hivehook/internal/store"
)

// Supported topologies. DefaultTopology is used when none is given.
const (
	TopologyHierarchicalMesh = "hierarchical-mesh"
	TopologyMesh             = "mesh"
	TopologyStar             = "star"
	TopologyRing             = "ring"

	DefaultTopology = TopologyHierarchicalMesh
)

// stateKey holds the active swarm mirror in the shared store.
const stateKey = "swarm:active"

// ErrNotSupported reports that the orchestrator's companion server is not
// running, so task orchestration is unavailable.
var ErrNotSupported = errors.New("task orchestration not supported: companion server unavailable")

// ErrNoSwarm reports an operation that needs an active swarm when none exists.
var ErrNoSwarm = errors.New("no active swarm")

// State mirrors the active swarm locally so status and shutdown work even
// when the orchestrator's own state query fails.
type State struct {
	SwarmID   string   `json:"swarmId"`
	Topology  string   `json:"topology"`
	Workers   int      `json:"workers"`
	SpawnedAt string   `json:"spawnedAt"`
	TaskIDs   []string `json:"taskIds,omitempty"`
}

// Controller runs swarm operations against one orchestrator gateway.
type Controller struct {
	gw    *gateway.Runner
	store *store.FileStore
	now   func() time.Time
}

// New returns a Controller over the given gateway and store.
func New(gw *gateway.Runner, st *store.FileStore) *Controller {
	return &Controller{gw: gw, store: st, now: time.Now}
}

// ValidTopology reports whether t names a supported topology.
func ValidTopology(t string) bool {
	switch t {
	case TopologyHierarchicalMesh, TopologyMesh, TopologyStar, TopologyRing:
		return true
	}
	return false
}

// Init creates a swarm with the given topology and records its id locally.
func (c *Controller) Init(ctx context.Context, topology string) (State, error) {
	if topology == "" {
		topology = DefaultTopology
	}
	if !ValidTopology(topology) {
		return State{}, fmt.Errorf("unknown topology %q", topology)
	}

	res := c.gw.Run(ctx, []string{"hive-mind", "init", "--topology", topology}, nil, 0)
	if !res.Success {
		return State{}, runFailure("init", res)
	}

	id := ExtractID(res, "swarm")
	if id == "" {
		return State{}, fmt.Errorf("swarm init: no swarm id in orchestrator output")
	}

	st := State{
		SwarmID:   id,
		Topology:  topology,
		SpawnedAt: models.Timestamp(c.now()),
	}
	if err := c.saveState(st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Spawn adds count workers to the active swarm.
func (c *Controller) Spawn(ctx context.Context, count int) (State, error) {
	st, ok := c.Active()
	if !ok {
		return State{}, ErrNoSwarm
	}
	if count <= 0 {
		count = 1
	}

	res := c.gw.Run(ctx, []string{
		"hive-mind", "spawn",
		"--swarm-id", st.SwarmID,
		"--count", strconv.Itoa(count),
	}, nil, 0)
	if !res.Success {
		return State{}, runFailure("spawn", res)
	}

	st.Workers += count
	if err := c.saveState(st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Task submits a task description to the swarm and returns the task id.
// Returns ErrNotSupported when the companion server is absent.
func (c *Controller) Task(ctx context.Context, description string) (string, error) {
	st, ok := c.Active()
	if !ok {
		return "", ErrNoSwarm
	}

	res := c.gw.Run(ctx, []string{
		"hive-mind", "task",
		"--swarm-id", st.SwarmID,
		description,
	}, nil, 0)
	if !res.Success {
		if serverAbsent(res) {
			return "", ErrNotSupported
		}
		return "", runFailure("task", res)
	}

	taskID := ExtractID(res, "task")
	if taskID != "" {
		st.TaskIDs = append(st.TaskIDs, taskID)
		_ = c.saveState(st)
	}
	return taskID, nil
}

// Status queries the orchestrator for swarm status. The raw result is
// returned so callers can surface either parsed JSON or plain text.
func (c *Controller) Status(ctx context.Context, verbose bool) (gateway.Result, error) {
	args := []string{"hive-mind", "status"}
	if verbose {
		args = append(args, "--verbose")
	}
	res := c.gw.Run(ctx, args, nil, 0)
	if !res.Success {
		return res, runFailure("status", res)
	}
	return res, nil
}

// Consensus starts a consensus round on topic across the given options.
func (c *Controller) Consensus(ctx context.Context, topic string, options []string) (gateway.Result, error) {
	st, ok := c.Active()
	if !ok {
		return gateway.Result{}, ErrNoSwarm
	}
	args := []string{"hive-mind", "consensus", "--swarm-id", st.SwarmID, "--topic", topic}
	for _, opt := range options {
		args = append(args, "--option", opt)
	}
	res := c.gw.Run(ctx, args, nil, 0)
	if !res.Success {
		return res, runFailure("consensus", res)
	}
	return res, nil
}

// Broadcast sends message to all swarm agents, detached from the caller.
func (c *Controller) Broadcast(message string) error {
	return c.gw.Detach([]string{"hooks", "notify", "--message", message})
}

// Shutdown stops the swarm. With force the local mirror is cleared even when
// the orchestrator call fails.
func (c *Controller) Shutdown(ctx context.Context, force bool) error {
	st, ok := c.Active()
	if !ok {
		return ErrNoSwarm
	}

	args := []string{"hive-mind", "shutdown", "--swarm-id", st.SwarmID}
	if force {
		args = append(args, "--force")
	}
	res := c.gw.Run(ctx, args, nil, 0)
	if !res.Success && !force {
		return runFailure("shutdown", res)
	}
	return c.store.Delete(stateKey)
}

// Active returns the locally mirrored swarm state, if any.
func (c *Controller) Active() (State, bool) {
	var st State
	if err := c.store.GetJSON(stateKey, &st); err != nil || st.SwarmID == "" {
		return State{}, false
	}
	return st, true
}

func (c *Controller) saveState(st State) error {
	return c.store.Put(stateKey, st, nil)
}

func runFailure(op string, res gateway.Result) error {
	msg := res.Stderr
	if msg == "" {
		msg = res.Stdout
	}
	return fmt.Errorf("swarm %s: %s (%s)", op, firstLine(msg), res.Failure)
}

// serverAbsent sniffs CLI output for the companion-server-missing condition.
// The orchestrator reports it inconsistently across versions.
var serverAbsentRe = regexp.MustCompile(`(?i)(mcp server|companion server|not supported|econnrefused|connection refused)`)

func serverAbsent(res gateway.Result) bool {
	return serverAbsentRe.MatchString(res.Stderr) || serverAbsentRe.MatchString(res.Stdout)
}

// idFields are the JSON keys tried, in order, when extracting a kind's id.
func idFields(kind string) []string {
	return []string{kind + "Id", kind + "_id", "id"}
}

// ExtractID pulls the id for kind ("swarm", "task") out of a CLI result:
// parsed JSON fields first, then a labelled line in plain-text output.
func ExtractID(res gateway.Result, kind string) string {
	if res.Parsed != nil {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(res.Parsed, &doc); err == nil {
			for _, field := range idFields(kind) {
				var s string
				if raw, ok := doc[field]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
					return s
				}
			}
		}
	}

	// e.g. "Swarm ID: swarm-1756029000-abc" or "task id = task-42".
	re := regexp.MustCompile(`(?i)` + kind + `[ _-]?id\s*[:=]\s*([A-Za-z0-9._-]+)`)
	if m := re.FindStringSubmatch(res.Stdout); len(m) == 2 {
		return m[1]
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
