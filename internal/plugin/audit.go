package plugin

import (
	"context"

	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// Audit writes every lifecycle event to the log.
type Audit struct {
	hm  *hooks.Manager
	log *logging.Logger
}

// NewAudit creates the audit plugin.
func NewAudit() *Audit { return &Audit{} }

func (a *Audit) ID() string { return "audit" }

func (a *Audit) Init(_ context.Context, api API) error {
	a.hm = api.Hooks
	a.log = api.Log
	api.Hooks.OnAll(a.ID(), a.record)
	return nil
}

func (a *Audit) record(_ context.Context, p hooks.Payload) error {
	a.log.Info().Str("event", p.Event).Interface("data", p.Data).Msg("audit")
	return nil
}

func (a *Audit) Close() error {
	for _, ev := range hooks.AllEvents {
		a.hm.Off(ev, a.ID())
	}
	return nil
}
