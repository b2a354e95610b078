package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/agentdesk/internal/autosave"
	"github.com/soyeahso/agentdesk/internal/backend"
	"github.com/soyeahso/agentdesk/internal/dify"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/knowledge"
	"github.com/soyeahso/agentdesk/internal/provider"
)

// ErrNoChatbot means the agent has no console app to configure.
var ErrNoChatbot = errors.New("agent has no chatbot key")

// SaveGroup writes one autosave group of b. It implements autosave.Saver.
func (s *Service) SaveGroup(ctx context.Context, agent domain.Agent, group string, b domain.Bundle) error {
	_, err := s.saveGroup(ctx, agent, group, b)
	return err
}

func (s *Service) saveGroup(ctx context.Context, agent domain.Agent, group string, b domain.Bundle) (string, error) {
	switch group {
	case autosave.GroupModel, autosave.GroupPrompt, autosave.GroupKnowledge:
		if b.Model == nil {
			return "", nil
		}
		return s.saveModel(ctx, agent, group, b)
	case autosave.GroupTransfer:
		return "", s.saveTransfer(ctx, agent, b.Model)
	case autosave.GroupVoice, autosave.GroupTranscriber, autosave.GroupTools:
		req, err := requestFor(agent, b, group)
		if err != nil {
			return "", err
		}
		if _, err := s.backend.UpdateAgent(ctx, agent.FullID(), req); err != nil {
			return "", fmt.Errorf("failed to save %s settings: %w", group, err)
		}
		return "", nil
	case autosave.GroupWidget:
		return "", nil
	default:
		return "", fmt.Errorf("unknown settings group %q", group)
	}
}

// saveModel writes the model fields to the backend, then pushes model,
// prompt and knowledge bases to the agent's console app.
func (s *Service) saveModel(ctx context.Context, agent domain.Agent, group string, b domain.Bundle) (string, error) {
	m := *b.Model
	var warning string
	kb := m.KnowledgeBases
	if s.knowledge != nil && (group == autosave.GroupKnowledge || len(kb) > 0) {
		sel, err := s.knowledge.Save(ctx, agent.ID, kb)
		if err != nil {
			return "", err
		}
		kb = sel.Selected
		if len(sel.Dropped) > 0 {
			warning = fmt.Sprintf("Removed unknown knowledge bases: %s", strings.Join(sel.Dropped, ", "))
			s.log.Warn().Str("agent", agent.ID).Strs("dropped", sel.Dropped).Msg("knowledge bases not in catalog")
		}
	}

	req, err := requestFor(agent, b, group)
	if err != nil {
		return "", err
	}
	if _, err := s.backend.UpdateAgent(ctx, agent.FullID(), req); err != nil {
		return "", fmt.Errorf("failed to save %s settings: %w", group, err)
	}

	key := firstNonEmpty(m.ChatbotKey, agent.ChatbotKey)
	if key == "" {
		if group == autosave.GroupModel {
			return warning, nil
		}
		return warning, ErrNoChatbot
	}
	agent.ChatbotKey = key
	return warning, s.pushModelConfig(ctx, agent, m, kb)
}

func (s *Service) pushModelConfig(ctx context.Context, agent domain.Agent, m domain.ModelSection, kb []string) error {
	res, err := s.resolver.Resolve(ctx, agent.ChatbotKey, &agent)
	if err != nil {
		return err
	}
	name := firstNonEmpty(m.Provider, agent.Provider, backend.DefaultProvider)
	consoleProvider, ok := provider.ConsoleProvider(name)
	if !ok {
		return fmt.Errorf("unsupported model provider %q", name)
	}
	model := provider.APIModelName(firstNonEmpty(m.Model, agent.Model, backend.DefaultModel))
	prompt := firstNonEmpty(m.SystemPrompt, agent.SystemPrompt, backend.DefaultSystemPrompt)

	cfg := dify.NewModelConfig(consoleProvider, model, prompt, knowledge.DatasetConfig(kb, 0))
	return s.console.UpdateModelConfig(ctx, res.AppID, cfg)
}

func (s *Service) saveTransfer(ctx context.Context, agent domain.Agent, m *domain.ModelSection) error {
	if m == nil || m.Transfer == nil || !m.Transfer.Enabled {
		return nil
	}
	phone := strings.TrimSpace(m.Transfer.PhoneNumber)
	if phone == "" {
		return errors.New("transfer phone number is required")
	}
	if err := s.backend.AddTransferNumber(ctx, agent.FullID(), phone); err != nil {
		return fmt.Errorf("failed to save transfer number: %w", err)
	}
	return nil
}

// requestFor builds the full update for agent with the sections of b laid
// over it. Conversion errors fail only for the group being saved; other
// sections keep the agent's stored value.
func requestFor(agent domain.Agent, b domain.Bundle, group string) (backend.UpdateRequest, error) {
	req := backend.RequestFromAgent(agent)
	if m := b.Model; m != nil {
		req.ModelProvider = firstNonEmpty(m.Provider, req.ModelProvider)
		req.ModelName = firstNonEmpty(m.Model, req.ModelName)
		req.ModelAPIKey = firstNonEmpty(m.APIKey, req.ModelAPIKey)
		req.ChatbotAPI = firstNonEmpty(m.ChatbotAPI, req.ChatbotAPI)
		req.ChatbotKey = firstNonEmpty(m.ChatbotKey, req.ChatbotKey)
		req.SystemPrompt = firstNonEmpty(m.SystemPrompt, req.SystemPrompt)
	}
	if b.Voice != nil {
		tts, err := provider.VoiceToBackend(*b.Voice)
		switch {
		case err == nil:
			req.TTS = &tts
		case group == autosave.GroupVoice:
			return backend.UpdateRequest{}, fmt.Errorf("voice settings: %w", err)
		}
	}
	if b.Transcriber != nil {
		stt, err := provider.TranscriberToBackend(*b.Transcriber)
		switch {
		case err == nil:
			req.STT = &stt
		case group == autosave.GroupTranscriber:
			return backend.UpdateRequest{}, fmt.Errorf("transcriber settings: %w", err)
		}
	}
	if t := b.Tools; t != nil {
		req.InitialMessage = t.InitialMessage
		req.NudgeText = t.NudgeText
		req.NudgeInterval = t.NudgeInterval
		req.MaxNudges = t.MaxNudges
		req.TypingVolume = t.TypingVolume
		req.MaxCallDuration = t.MaxCallDuration
	}
	return req, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// bundleWith is the agent's stored configuration with one section replaced.
func bundleWith(agent domain.Agent, set func(*domain.Bundle)) domain.Bundle {
	b, err := autosave.BundleFromAgent(agent)
	if err != nil {
		b = domain.Bundle{Model: &domain.ModelSection{}}
	}
	set(&b)
	return b
}

func (s *Service) result(ctx context.Context, agent domain.Agent, group, done string, b domain.Bundle) domain.Result {
	warning, err := s.saveGroup(ctx, agent, group, b)
	if err != nil {
		s.log.Warn().Err(err).Str("agent", agent.FullID()).Str("group", group).Msg("save failed")
		return domain.Fail(err)
	}
	r := domain.Ok(done)
	r.Warning = warning
	return r
}

// SaveModelConfig saves the agent's provider and model.
func (s *Service) SaveModelConfig(ctx context.Context, agent domain.Agent, m domain.ModelSection) domain.Result {
	return s.result(ctx, agent, autosave.GroupModel, "Model configuration saved", bundleWith(agent, func(b *domain.Bundle) { b.Model = &m }))
}

// SavePrompt saves the system prompt.
func (s *Service) SavePrompt(ctx context.Context, agent domain.Agent, m domain.ModelSection) domain.Result {
	return s.result(ctx, agent, autosave.GroupPrompt, "System prompt saved", bundleWith(agent, func(b *domain.Bundle) { b.Model = &m }))
}

// SaveKnowledgeBase saves the knowledge-base selection. Ids missing from
// the catalog are dropped and reported in the result's warning.
func (s *Service) SaveKnowledgeBase(ctx context.Context, agent domain.Agent, m domain.ModelSection) domain.Result {
	return s.result(ctx, agent, autosave.GroupKnowledge, "Knowledge bases saved", bundleWith(agent, func(b *domain.Bundle) { b.Model = &m }))
}

// SaveTransfer registers the call transfer number.
func (s *Service) SaveTransfer(ctx context.Context, agent domain.Agent, t domain.TransferSetting) domain.Result {
	return s.result(ctx, agent, autosave.GroupTransfer, "Transfer settings saved", bundleWith(agent, func(b *domain.Bundle) {
		b.Model.Transfer = &t
	}))
}

// SaveVoice saves the voice settings.
func (s *Service) SaveVoice(ctx context.Context, agent domain.Agent, v domain.VoiceSection) domain.Result {
	return s.result(ctx, agent, autosave.GroupVoice, "Voice settings saved", bundleWith(agent, func(b *domain.Bundle) { b.Voice = &v }))
}

// SaveTranscriber saves the transcriber settings.
func (s *Service) SaveTranscriber(ctx context.Context, agent domain.Agent, t domain.TranscriberSection) domain.Result {
	return s.result(ctx, agent, autosave.GroupTranscriber, "Transcriber settings saved", bundleWith(agent, func(b *domain.Bundle) { b.Transcriber = &t }))
}

// SaveTools saves the call behaviour settings.
func (s *Service) SaveTools(ctx context.Context, agent domain.Agent, t domain.ToolsSection) domain.Result {
	return s.result(ctx, agent, autosave.GroupTools, "Call settings saved", bundleWith(agent, func(b *domain.Bundle) { b.Tools = &t }))
}
