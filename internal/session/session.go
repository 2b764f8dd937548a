// Package session wires the credential validator, the file set, the
// catalog selection and the job controller into one workflow.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/bhtools/podbulk/internal/api"
	"github.com/bhtools/podbulk/internal/catalog"
	"github.com/bhtools/podbulk/internal/config"
	"github.com/bhtools/podbulk/internal/constants"
	"github.com/bhtools/podbulk/internal/credentials"
	"github.com/bhtools/podbulk/internal/events"
	"github.com/bhtools/podbulk/internal/job"
	"github.com/bhtools/podbulk/internal/logging"
	"github.com/bhtools/podbulk/internal/models"
	"github.com/bhtools/podbulk/internal/state"
)

// Session is the state of one bulk creation workflow.
type Session struct {
	Config      *config.Config
	Client      *api.Client
	Events      *events.EventBus
	Credentials *credentials.Validator
	Files       *state.FileSet
	Catalog     *catalog.Manager
	Jobs        *job.Controller

	log *logging.Logger

	mu       sync.RWMutex
	keys     map[models.CredentialKind]string
	provider models.CredentialKind
}

// New builds a session from cfg. A nil logger discards logs.
func New(cfg *config.Config, logger *logging.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	client, err := api.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	provider, _ := models.ParseCredentialKind(cfg.Job.Provider)

	s := &Session{
		Config:      cfg,
		Client:      client,
		Events:      bus,
		Credentials: credentials.NewValidator(client, bus, logger),
		Files: state.NewFileSet(client, bus, logger, state.Options{
			PruneSuperseded: cfg.PruneSuperseded,
		}),
		Catalog: catalog.NewManager(client, bus, logger),
		Jobs: job.NewController(client, bus, logger, job.Options{
			Interval:      cfg.Poll.Interval,
			FailurePolicy: cfg.Poll.FailurePolicy,
		}),
		log: logger.Component("session"),
		keys: map[models.CredentialKind]string{
			models.KindPlatform: cfg.APIKey,
			models.KindOpenAI:   cfg.OpenAIKey,
			models.KindGemini:   cfg.GeminiKey,
		},
		provider: provider,
	}

	// The store list follows the platform key: loaded on success,
	// emptied when the key is cleared or rejected.
	s.Credentials.OnPlatformSettled(func(ctx context.Context, secret string) {
		if err := s.Catalog.OnCredentialValidated(ctx, secret); err != nil && secret != "" {
			s.log.Debug().Err(err).Msg("store list not loaded")
		}
	})

	return s, nil
}

// Close stops polling and releases event subscribers.
func (s *Session) Close() {
	s.Jobs.Stop()
	s.Client.LogUsage()
	if n := s.Events.DroppedEvents(); n > 0 {
		s.log.Debug().Int64("dropped", n).Msg("events dropped on full subscriber buffers")
	}
	s.Events.Close()
}

// SetKey records secret for kind and validates it. A blank secret clears
// the status without a remote call.
func (s *Session) SetKey(ctx context.Context, kind models.CredentialKind, secret string) credentials.Outcome {
	s.mu.Lock()
	s.keys[kind] = secret
	s.mu.Unlock()
	return s.Credentials.Validate(ctx, kind, secret)
}

// Key returns the secret recorded for kind.
func (s *Session) Key(kind models.CredentialKind) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[kind]
}

// SelectProvider switches the AI provider and validates it. For the local
// runtime the model list is loaded as well.
func (s *Session) SelectProvider(ctx context.Context, kind models.CredentialKind) (credentials.Outcome, error) {
	if !kind.IsAIProvider() {
		return credentials.Outcome{}, fmt.Errorf("%s is not an AI provider", kind)
	}
	s.mu.Lock()
	s.provider = kind
	secret := s.keys[kind]
	s.mu.Unlock()

	out := s.Credentials.Validate(ctx, kind, secret)
	if kind == models.KindOllama {
		if _, err := s.Catalog.LoadModels(ctx); err != nil {
			return out, err
		}
	}
	return out, nil
}

// Provider returns the selected AI provider.
func (s *Session) Provider() models.CredentialKind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider
}

// ConnectPlatform validates the recorded platform key. On success the
// validator hook has loaded the store list; a store load failure after a
// valid key is returned as well.
func (s *Session) ConnectPlatform(ctx context.Context) error {
	key := s.Key(models.KindPlatform)
	if key == "" {
		return catalog.ErrNoCredential
	}
	out := s.SetKey(ctx, models.KindPlatform, key)
	switch out.Result {
	case credentials.ResultValid:
		if catErr, _ := s.Catalog.Errors(); catErr != nil {
			return fmt.Errorf("failed to load stores: %w", catErr)
		}
		return nil
	case credentials.ResultInvalid:
		return fmt.Errorf("%s rejected: %w", models.KindPlatform.DisplayName(), out.Err)
	default:
		return fmt.Errorf("platform key not validated: %s", out.Result)
	}
}

// SelectCatalog selects a store and loads its products. The store must be
// in the list loaded by ConnectPlatform or SetKey.
func (s *Session) SelectCatalog(ctx context.Context, id string) error {
	return s.Catalog.OnCatalogSelected(ctx, id, s.Key(models.KindPlatform))
}

// Inputs collects the job inputs from the current state.
func (s *Session) Inputs(rules map[string]any) job.Inputs {
	sel := s.Catalog.Selection()
	model := sel.Model
	if model == "" {
		model = s.Config.Job.OllamaModel
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return job.Inputs{
		Assets:        s.Files.Names(),
		CatalogID:     sel.CatalogID,
		TemplateID:    sel.TemplateID,
		APIKey:        s.keys[models.KindPlatform],
		Provider:      s.provider,
		OpenAIKey:     s.keys[models.KindOpenAI],
		GeminiKey:     s.keys[models.KindGemini],
		OllamaModel:   model,
		PlacementMode: s.Config.Job.PlacementMode,
		Rules:         rules,
	}
}

// Submit sends a job built from the current state once confirm agrees.
func (s *Session) Submit(ctx context.Context, rules map[string]any, confirm job.ConfirmFunc) (*models.Ack, error) {
	return s.Jobs.Submit(ctx, s.Inputs(rules), confirm)
}
