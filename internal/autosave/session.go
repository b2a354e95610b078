package autosave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/agentdesk/internal/debounce"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/lease"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/metrics"
	"github.com/soyeahso/agentdesk/internal/provider"
)

// Save groups. Fields of one group are written together by one remote call.
const (
	GroupModel       = "model"
	GroupPrompt      = "prompt"
	GroupKnowledge   = "knowledge"
	GroupTransfer    = "transfer"
	GroupVoice       = "voice"
	GroupTranscriber = "transcriber"
	GroupTools       = "tools"
	GroupWidget      = "widget"
)

// Group returns the save group an edited field belongs to.
func Group(section domain.Section, field string) string {
	if section != domain.SectionModel {
		return string(section)
	}
	switch field {
	case "systemPrompt":
		return GroupPrompt
	case "knowledgeBases":
		return GroupKnowledge
	case "transfer":
		return GroupTransfer
	}
	return GroupModel
}

// SwitchPolicy says what happens to pending writes when the session closes.
type SwitchPolicy string

const (
	PolicyFlush  SwitchPolicy = "flush"
	PolicyCancel SwitchPolicy = "cancel"
)

// ParsePolicy maps a config value to a policy, defaulting to flush.
func ParsePolicy(s string) SwitchPolicy {
	if SwitchPolicy(s) == PolicyCancel {
		return PolicyCancel
	}
	return PolicyFlush
}

// Saver writes one group of an agent's bundle to the remote side.
type Saver interface {
	SaveGroup(ctx context.Context, agent domain.Agent, group string, b domain.Bundle) error
}

// Tiers mirrors bundles locally.
type Tiers interface {
	Save(ctx context.Context, agentID string, b domain.Bundle) error
	Load(ctx context.Context, agentID string) (domain.Bundle, string, error)
	Delete(ctx context.Context, agentID string) error
}

// Options configures a Session.
type Options struct {
	Enabled  bool
	Debounce time.Duration
	Cooldown time.Duration
	LeaseTTL time.Duration
	Metrics  *metrics.Metrics
	Hooks    *hooks.Manager
}

// ErrClosed is returned by edits and saves of a closed session.
var ErrClosed = errors.New("session is closed")

// Session is the editing state of one agent's configuration.
type Session struct {
	saver   Saver
	tiers   Tiers
	opts    Options
	log     *logging.Logger
	machine *Machine
	deb     *debounce.Debouncer
	leases  *lease.Set

	mu      sync.Mutex
	agent   domain.Agent
	bundle  domain.Bundle
	dirty   map[string]bool
	enabled bool
	closed  bool
}

// NewSession creates a session bound to agent with an empty bundle.
func NewSession(agent domain.Agent, saver Saver, tiers Tiers, opts Options, log *logging.Logger) *Session {
	log = log.Sub("autosave").With("agent", agent.ID)
	return &Session{
		saver:   saver,
		tiers:   tiers,
		opts:    opts,
		log:     log,
		machine: NewMachine(opts.Cooldown),
		deb:     debounce.New(opts.Debounce, log),
		leases:  lease.New(opts.LeaseTTL),
		agent:   agent,
		dirty:   make(map[string]bool),
		enabled: opts.Enabled,
	}
}

// AgentID is the id of the agent being edited.
func (s *Session) AgentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent.ID
}

// Agent returns the agent being edited.
func (s *Session) Agent() domain.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// Bundle returns a copy of the current bundle.
func (s *Session) Bundle() domain.Bundle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bundle.Clone()
}

// Status returns the save indicator.
func (s *Session) Status() domain.AutoSaveStatus { return s.machine.Status() }

// OnStatus registers fn for save indicator changes.
func (s *Session) OnStatus(fn func(domain.AutoSaveStatus)) { s.machine.OnChange(fn) }

// HasUnsavedChanges reports whether any edit has not been written yet.
func (s *Session) HasUnsavedChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty) > 0
}

// Leases lists the fields currently held by local edits.
func (s *Session) Leases() []lease.Lease { return s.leases.Active() }

// AutoSaveEnabled reports whether edits are written automatically.
func (s *Session) AutoSaveEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Load replaces the bundle with the sections derived from agent. Fields
// under a live edit lease keep their local value.
func (s *Session) Load(agent domain.Agent) error {
	fresh, err := BundleFromAgent(agent)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if agent.ID != s.agent.ID {
		return fmt.Errorf("session is bound to %s, not %s", s.agent.ID, agent.ID)
	}
	prev := s.bundle
	s.agent = agent
	for _, sec := range domain.Sections {
		held := s.leases.HeldIn(string(sec))
		if len(held) == 0 {
			continue
		}
		if err := keepFields(&fresh, prev, sec, held); err != nil {
			return err
		}
		s.log.Debug().Str("section", string(sec)).Strs("fields", held).Msg("kept leased fields over remote load")
	}
	s.bundle = fresh
	return nil
}

// keepFields copies fields of sec from prev into dst.
func keepFields(dst *domain.Bundle, prev domain.Bundle, sec domain.Section, fields []string) error {
	raw, err := prev.SectionJSON(sec)
	if err != nil {
		return err
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(raw, &values); err != nil || values == nil {
		return nil
	}
	patch := map[string]json.RawMessage{}
	for _, f := range fields {
		if v, ok := values[f]; ok {
			patch[f] = v
		}
	}
	if len(patch) == 0 {
		return nil
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	_, err = dst.Apply(sec, data)
	return err
}

// BundleFromAgent derives the editable sections from the agent's stored
// configuration. Sections the agent carries nothing for stay nil.
func BundleFromAgent(a domain.Agent) (domain.Bundle, error) {
	var b domain.Bundle
	b.Model = &domain.ModelSection{
		Provider:     a.Provider,
		Model:        a.Model,
		APIKey:       a.ModelAPIKey,
		ChatbotAPI:   a.ChatbotAPI,
		ChatbotKey:   a.ChatbotKey,
		SystemPrompt: a.SystemPrompt,
	}
	if a.TTS != nil {
		v, err := provider.VoiceToUI(*a.TTS)
		if err != nil {
			return domain.Bundle{}, fmt.Errorf("voice config: %w", err)
		}
		b.Voice = &v
	}
	if a.STT != nil {
		t, err := provider.TranscriberToUI(*a.STT)
		if err != nil {
			return domain.Bundle{}, fmt.Errorf("transcriber config: %w", err)
		}
		b.Transcriber = &t
	}
	b.Tools = &domain.ToolsSection{
		InitialMessage:  a.InitialMessage,
		NudgeText:       a.NudgeText,
		NudgeInterval:   a.NudgeInterval,
		MaxNudges:       a.MaxNudges,
		TypingVolume:    a.TypingVolume,
		MaxCallDuration: a.MaxCallDuration,
	}
	return b, nil
}

// Restore replaces the bundle with the locally mirrored one, session tier
// first. It returns the tier that held it, or "" when none did.
func (s *Session) Restore(ctx context.Context) (string, error) {
	id := s.AgentID()
	b, tier, err := s.tiers.Load(ctx, id)
	if err != nil {
		return "", err
	}
	if tier == "" {
		return "", nil
	}
	s.mu.Lock()
	s.bundle = b
	s.mu.Unlock()
	s.log.Debug().Str("tier", tier).Msg("bundle restored")
	return tier, nil
}

// Update merges patch into section, takes edit leases on the touched
// fields and schedules the affected save groups.
func (s *Session) Update(section domain.Section, patch json.RawMessage) ([]string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	keys, err := s.bundle.Apply(section, patch)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	var groups []string
	for _, k := range keys {
		s.leases.Take(lease.Key(string(section), k))
		g := Group(section, k)
		if !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
		s.dirty[g] = true
	}
	enabled := s.enabled
	s.mu.Unlock()

	if enabled {
		for _, g := range groups {
			s.schedule(g)
		}
	}
	return groups, nil
}

// Replace sets a whole section and schedules its groups.
func (s *Session) Replace(section domain.Section, value json.RawMessage) ([]string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(value, &fields); err != nil {
		return nil, fmt.Errorf("section %s: %w", section, err)
	}
	s.mu.Lock()
	if err := s.bundle.Replace(section, nil); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Unlock()
	return s.Update(section, value)
}

func (s *Session) schedule(group string) {
	s.deb.Trigger(group, s.committer(group))
}

func (s *Session) committer(group string) debounce.Func {
	return func(ctx context.Context) error {
		return s.commit(ctx, group)
	}
}

// SetAutoSave turns automatic writes on or off. Turning it on schedules
// every group with outstanding changes.
func (s *Session) SetAutoSave(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	groups := s.dirtyLocked()
	s.mu.Unlock()

	if !enabled {
		s.deb.CancelAll()
		return
	}
	for _, g := range groups {
		s.schedule(g)
	}
}

func (s *Session) dirtyLocked() []string {
	groups := make([]string, 0, len(s.dirty))
	for g := range s.dirty {
		groups = append(groups, g)
	}
	slices.Sort(groups)
	return groups
}

// Save writes every group with outstanding changes now. A debounced
// write of the same group that is already running finishes first.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	groups := s.dirtyLocked()
	s.mu.Unlock()

	var errs []error
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.deb.Run(g, s.committer(g)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", g, err))
		}
	}
	return errors.Join(errs...)
}

// commit writes one group. The bundle is mirrored to both local tiers
// whatever the remote outcome.
func (s *Session) commit(ctx context.Context, group string) error {
	s.mu.Lock()
	if !s.dirty[group] {
		s.mu.Unlock()
		return nil
	}
	delete(s.dirty, group)
	agent := s.agent
	b := s.bundle.Clone()
	s.mu.Unlock()

	seq := s.machine.Begin()
	err := s.saver.SaveGroup(ctx, agent, group, b)
	if err != nil {
		s.mu.Lock()
		s.dirty[group] = true
		s.mu.Unlock()
	}
	s.machine.Finish(seq, err)
	s.opts.Metrics.RecordSave(err)

	if merr := s.tiers.Save(context.WithoutCancel(ctx), agent.ID, b); merr != nil {
		s.log.Warn().Err(merr).Msg("mirroring bundle failed")
	}
	if err != nil {
		return err
	}
	s.log.Info().Str("group", group).Msg("configuration saved")
	s.opts.Hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventConfigSaved, map[string]any{
		"agent": agent.ID,
		"group": group,
	})
	return nil
}

// Close ends the session. PolicyFlush runs pending writes before
// returning; PolicyCancel drops them. A non-empty bundle is mirrored
// locally either way.
func (s *Session) Close(ctx context.Context, policy SwitchPolicy) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if policy == PolicyFlush {
		err = s.deb.FlushAll()
	} else {
		s.deb.CancelAll()
	}
	s.deb.Close()
	s.machine.Reset()

	s.mu.Lock()
	id := s.agent.ID
	b := s.bundle.Clone()
	s.mu.Unlock()
	if !b.IsEmpty() {
		if merr := s.tiers.Save(ctx, id, b); merr != nil {
			s.log.Warn().Err(merr).Msg("mirroring bundle on close failed")
		}
	}
	s.log.Debug().Str("policy", string(policy)).Msg("session closed")
	return err
}

// Reset clears the bundle, pending writes and both local tiers.
func (s *Session) Reset(ctx context.Context) error {
	s.deb.CancelAll()
	s.mu.Lock()
	s.bundle = domain.Bundle{}
	clear(s.dirty)
	id := s.agent.ID
	s.mu.Unlock()

	for _, l := range s.leases.Active() {
		s.leases.Release(l.Field)
	}
	s.machine.Reset()
	return s.tiers.Delete(ctx, id)
}
