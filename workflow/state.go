package workflow

import (
	"fmt"
	"sort"

	"github.com/BaSui01/consultflow/types"
)

// State is the per-run context threaded through the graph. Agent units only
// read it; the executor applies node results. A lineage owns its State; each
// parallel branch works on a clone.
type State struct {
	query         string
	history       []types.Turn
	contextDocs   []types.ContextDocument
	contextSet    bool
	outputs       map[string]types.AgentResponse
	branches      map[string]struct{}
	loopCounters  map[string]int
	finalResponse *string
	language      string
	selection     map[string]struct{}
	metadata      map[string]string
	version       uint64

	// writes tracks output keys written since a branch fork; nil on the
	// main lineage.
	writes map[string]struct{}
}

// NewState creates the initial state for one user turn.
func NewState(query string, history []types.Turn) *State {
	h := make([]types.Turn, len(history))
	copy(h, history)
	return &State{
		query:        query,
		history:      h,
		outputs:      make(map[string]types.AgentResponse),
		branches:     make(map[string]struct{}),
		loopCounters: make(map[string]int),
		metadata:     make(map[string]string),
	}
}

// Query returns the original user text.
func (s *State) Query() string { return s.query }

// History returns a copy of prior conversation turns.
func (s *State) History() []types.Turn {
	out := make([]types.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// ContextDocuments returns a copy of the retrieved documents.
func (s *State) ContextDocuments() []types.ContextDocument {
	out := make([]types.ContextDocument, len(s.contextDocs))
	copy(out, s.contextDocs)
	return out
}

// ContextRetrieved reports whether the retrieval node has run.
func (s *State) ContextRetrieved() bool { return s.contextSet }

// Output returns the stored response for an agent.
func (s *State) Output(name string) (types.AgentResponse, bool) {
	r, ok := s.outputs[name]
	if !ok {
		return types.AgentResponse{}, false
	}
	return r.Clone(), true
}

// Outputs returns a copy of all agent outputs.
func (s *State) Outputs() map[string]types.AgentResponse {
	out := make(map[string]types.AgentResponse, len(s.outputs))
	for k, v := range s.outputs {
		out[k] = v.Clone()
	}
	return out
}

// OutputNames returns the agent names with stored outputs, sorted.
func (s *State) OutputNames() []string {
	return sortedKeys(s.outputs)
}

// ActiveBranches returns the live branch tags, sorted.
func (s *State) ActiveBranches() []string {
	return sortedKeys(s.branches)
}

// LoopCounter returns the iteration count of a loop.
func (s *State) LoopCounter(name string) int { return s.loopCounters[name] }

// LoopCounters returns a copy of every loop counter.
func (s *State) LoopCounters() map[string]int {
	out := make(map[string]int, len(s.loopCounters))
	for k, v := range s.loopCounters {
		out[k] = v
	}
	return out
}

// FinalResponse returns the compiled or short-circuit answer, if set.
func (s *State) FinalResponse() (string, bool) {
	if s.finalResponse == nil {
		return "", false
	}
	return *s.finalResponse, true
}

// Language returns the detected language code, empty until detection runs.
func (s *State) Language() string { return s.language }

// Selected reports whether a specialist may run. Without a dynamic selection
// every specialist is eligible.
func (s *State) Selected(name string) bool {
	if s.selection == nil {
		return true
	}
	_, ok := s.selection[name]
	return ok
}

// Selection returns the active specialist subset, or nil when no selection
// was made.
func (s *State) Selection() []string {
	if s.selection == nil {
		return nil
	}
	return sortedKeys(s.selection)
}

// Metadata returns a metadata value.
func (s *State) Metadata(key string) string { return s.metadata[key] }

// Version increments on every applied change.
func (s *State) Version() uint64 { return s.version }

// Clone returns an independent deep copy.
func (s *State) Clone() *State {
	c := &State{
		query:        s.query,
		history:      s.History(),
		contextDocs:  s.ContextDocuments(),
		contextSet:   s.contextSet,
		outputs:      s.Outputs(),
		branches:     make(map[string]struct{}, len(s.branches)),
		loopCounters: s.LoopCounters(),
		language:     s.language,
		metadata:     make(map[string]string, len(s.metadata)),
		version:      s.version,
	}
	for k := range s.branches {
		c.branches[k] = struct{}{}
	}
	for k, v := range s.metadata {
		c.metadata[k] = v
	}
	if s.finalResponse != nil {
		fr := *s.finalResponse
		c.finalResponse = &fr
	}
	if s.selection != nil {
		c.selection = make(map[string]struct{}, len(s.selection))
		for k := range s.selection {
			c.selection[k] = struct{}{}
		}
	}
	if s.writes != nil {
		c.writes = make(map[string]struct{}, len(s.writes))
		for k := range s.writes {
			c.writes[k] = struct{}{}
		}
	}
	return c
}

// Snapshot is a compact, read-only view of a state for observers.
type Snapshot struct {
	Version        uint64                       `json:"version"`
	Outputs        map[string]types.AgentStatus `json:"outputs,omitempty"`
	LoopCounters   map[string]int               `json:"loop_counters,omitempty"`
	ActiveBranches []string                     `json:"active_branches,omitempty"`
}

// Snapshot captures the state's current shape.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Version:        s.version,
		Outputs:        make(map[string]types.AgentStatus, len(s.outputs)),
		LoopCounters:   s.LoopCounters(),
		ActiveBranches: s.ActiveBranches(),
	}
	for k, v := range s.outputs {
		snap.Outputs[k] = v.Status
	}
	return snap
}

// ---------------------------------------------------------------------------
// Mutations applied by the executor
// ---------------------------------------------------------------------------

// fork prepares a clone for a parallel branch.
func (s *State) fork(tag string) *State {
	c := s.Clone()
	c.branches = map[string]struct{}{tag: {}}
	c.writes = make(map[string]struct{})
	return c
}

func (s *State) putOutput(name string, resp types.AgentResponse) {
	s.outputs[name] = resp.Clone()
	if s.writes != nil {
		s.writes[name] = struct{}{}
	}
	s.version++
}

func (s *State) setContextDocuments(docs []types.ContextDocument) error {
	if s.contextSet {
		return fmt.Errorf("context documents already set")
	}
	s.contextDocs = make([]types.ContextDocument, len(docs))
	copy(s.contextDocs, docs)
	s.contextSet = true
	s.version++
	return nil
}

func (s *State) setFinalResponse(text string) error {
	if s.finalResponse != nil {
		return fmt.Errorf("final response already set")
	}
	s.finalResponse = &text
	s.version++
	return nil
}

func (s *State) setSelection(names []string) {
	s.selection = make(map[string]struct{}, len(names))
	for _, n := range names {
		s.selection[n] = struct{}{}
	}
	s.version++
}

func (s *State) setLanguage(lang string) {
	s.language = lang
	s.version++
}

func (s *State) setMetadata(key, value string) {
	s.metadata[key] = value
	s.version++
}

func (s *State) enterLoop(name string) int {
	if s.loopCounters[name] == 0 {
		s.loopCounters[name] = 1
		s.version++
	}
	return s.loopCounters[name]
}

func (s *State) incrementLoop(name string) int {
	s.loopCounters[name]++
	s.version++
	return s.loopCounters[name]
}

func (s *State) addBranches(tags ...string) {
	for _, t := range tags {
		s.branches[t] = struct{}{}
	}
	s.version++
}

func (s *State) removeBranches(tags ...string) {
	for _, t := range tags {
		delete(s.branches, t)
	}
	s.version++
}

// apply folds a task's update into the state.
func (s *State) apply(u Update) error {
	if u.hasContext {
		if err := s.setContextDocuments(u.contextDocs); err != nil {
			return err
		}
	}
	if u.language != "" {
		s.setLanguage(u.language)
	}
	if u.hasSelection {
		s.setSelection(u.selection)
	}
	for k, v := range u.metadata {
		s.setMetadata(k, v)
	}
	if u.finalResponse != nil {
		if err := s.setFinalResponse(*u.finalResponse); err != nil {
			return err
		}
	}
	return nil
}

// Update is the result of a task node. The zero value changes nothing.
type Update struct {
	contextDocs   []types.ContextDocument
	hasContext    bool
	selection     []string
	hasSelection  bool
	finalResponse *string
	language      string
	metadata      map[string]string
}

// WithContext sets the retrieved documents; an empty slice is valid.
func (u Update) WithContext(docs []types.ContextDocument) Update {
	u.contextDocs = docs
	u.hasContext = true
	return u
}

// WithSelection restricts which specialists may run.
func (u Update) WithSelection(names ...string) Update {
	u.selection = append([]string(nil), names...)
	u.hasSelection = true
	return u
}

// WithFinalResponse presets the answer, bypassing compilation.
func (u Update) WithFinalResponse(text string) Update {
	u.finalResponse = &text
	return u
}

// WithLanguage records the detected language.
func (u Update) WithLanguage(lang string) Update {
	u.language = lang
	return u
}

// WithMetadata records a metadata value.
func (u Update) WithMetadata(key, value string) Update {
	m := make(map[string]string, len(u.metadata)+1)
	for k, v := range u.metadata {
		m[k] = v
	}
	m[key] = value
	u.metadata = m
	return u
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
