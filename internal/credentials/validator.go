// Package credentials validates the platform key and the AI provider
// credentials against the listing service.
//
// At most one validation per credential kind is in flight. A request for a
// kind that is already validating is suppressed, not queued. Different
// kinds validate concurrently.
package credentials

import (
	"context"
	"sync"

	"github.com/bhtools/podbulk/internal/api"
	"github.com/bhtools/podbulk/internal/events"
	"github.com/bhtools/podbulk/internal/logging"
	"github.com/bhtools/podbulk/internal/models"
)

// Prober is the part of the service client used to probe credentials.
type Prober interface {
	ListStores(ctx context.Context, apiKey string) ([]models.Catalog, error)
	GenerateTitle(ctx context.Context, req models.GenerateRequest) (string, error)
}

// PlatformHook is called after a platform validation settles: with the
// validated secret on success, with "" when the key was cleared or
// rejected.
type PlatformHook func(ctx context.Context, secret string)

// Result is the outcome class of a Validate call.
type Result int

const (
	// ResultSuppressed: a validation of the same kind was already in flight.
	ResultSuppressed Result = iota
	// ResultCleared: the secret was blank; status cleared, no remote call.
	ResultCleared
	ResultValid
	ResultInvalid
)

func (r Result) String() string {
	switch r {
	case ResultSuppressed:
		return "suppressed"
	case ResultCleared:
		return "cleared"
	case ResultValid:
		return "valid"
	case ResultInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Outcome reports what one Validate call did.
type Outcome struct {
	Kind    models.CredentialKind
	Result  Result
	Message string
	Err     error
}

type entry struct {
	cred     models.Credential
	inFlight bool
	gen      uint64 // bumped on clear so a late result is dropped
}

// Validator tracks the validation state of each credential kind.
type Validator struct {
	prober Prober
	bus    *events.EventBus
	log    *logging.Logger

	mu       sync.Mutex
	entries  map[models.CredentialKind]*entry
	platform PlatformHook
}

// NewValidator creates a validator with every kind unvalidated.
func NewValidator(prober Prober, bus *events.EventBus, logger *logging.Logger) *Validator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	v := &Validator{
		prober:  prober,
		bus:     bus,
		log:     logger.Component("credentials"),
		entries: make(map[models.CredentialKind]*entry),
	}
	for _, kind := range models.AllCredentialKinds {
		v.entries[kind] = &entry{cred: models.Credential{Kind: kind, State: models.StateUnvalidated}}
	}
	return v
}

// OnPlatformSettled registers the hook run after platform validations.
func (v *Validator) OnPlatformSettled(hook PlatformHook) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.platform = hook
}

// Validate checks secret for kind. It blocks until the probe returns.
func (v *Validator) Validate(ctx context.Context, kind models.CredentialKind, secret string) Outcome {
	v.mu.Lock()
	e, ok := v.entries[kind]
	if !ok {
		v.mu.Unlock()
		return Outcome{Kind: kind, Result: ResultInvalid, Message: "unknown credential kind " + string(kind)}
	}

	if secret == "" && kind.RequiresSecret() {
		e.gen++
		e.cred = models.Credential{Kind: kind, State: models.StateUnvalidated}
		hook := v.platform
		v.mu.Unlock()

		v.log.Debug().Str("kind", string(kind)).Msg("blank credential, status cleared")
		v.bus.PublishCredentialStatus(kind, models.StateUnvalidated, "")
		if kind == models.KindPlatform && hook != nil {
			hook(ctx, "")
		}
		return Outcome{Kind: kind, Result: ResultCleared}
	}

	if e.inFlight {
		v.mu.Unlock()
		v.log.Debug().Str("kind", string(kind)).Msg("validation already in flight, suppressed")
		return Outcome{Kind: kind, Result: ResultSuppressed}
	}

	e.inFlight = true
	gen := e.gen
	msg := progressMessage(kind)
	e.cred = models.Credential{Kind: kind, Secret: secret, State: models.StateValidating, Message: msg}
	v.mu.Unlock()

	v.bus.PublishCredentialStatus(kind, models.StateValidating, msg)

	err := v.probe(ctx, kind, secret)

	out := Outcome{Kind: kind, Err: err}
	state := models.StateValid
	if err != nil {
		out.Result = ResultInvalid
		state = models.StateInvalid
		out.Message = failureMessage(kind, err)
	} else {
		out.Result = ResultValid
		out.Message = successMessage(kind)
	}

	v.mu.Lock()
	e.inFlight = false
	stale := e.gen != gen
	if !stale {
		e.cred = models.Credential{Kind: kind, Secret: secret, State: state, Message: out.Message}
	}
	hook := v.platform
	v.mu.Unlock()

	if stale {
		v.log.Debug().Str("kind", string(kind)).Msg("credential cleared during validation, result dropped")
		return out
	}

	if err != nil {
		v.log.Warn().Err(err).Str("kind", string(kind)).Msg("credential rejected")
	} else {
		v.log.Info().Str("kind", string(kind)).Msg("credential validated")
	}

	v.bus.PublishCredentialStatus(kind, state, out.Message)

	if kind == models.KindPlatform && hook != nil {
		if err == nil {
			hook(ctx, secret)
		} else {
			hook(ctx, "")
		}
	}
	return out
}

func (v *Validator) probe(ctx context.Context, kind models.CredentialKind, secret string) error {
	if kind == models.KindPlatform {
		_, err := v.prober.ListStores(ctx, secret)
		return err
	}
	_, err := v.prober.GenerateTitle(ctx, models.NewGenerateRequest(kind, secret))
	return err
}

// Status returns a copy of the credential of kind.
func (v *Validator) Status(kind models.CredentialKind) models.Credential {
	v.mu.Lock()
	defer v.mu.Unlock()
	if e, ok := v.entries[kind]; ok {
		return e.cred
	}
	return models.Credential{Kind: kind, State: models.StateUnvalidated}
}

func progressMessage(kind models.CredentialKind) string {
	if kind == models.KindOllama {
		return "Checking Ollama connection..."
	}
	return "Validating " + kind.DisplayName() + "..."
}

func successMessage(kind models.CredentialKind) string {
	if kind == models.KindOllama {
		return "Ollama connected successfully!"
	}
	return kind.DisplayName() + " validated successfully!"
}

// failureMessage distinguishes rejections (the service's error text) from
// transport failures (the transport error text).
func failureMessage(kind models.CredentialKind, err error) string {
	if api.IsRemote(err) {
		if kind == models.KindOllama {
			return "Ollama not available: " + api.Message(err)
		}
		return "Invalid " + kind.DisplayName() + ": " + api.Message(err)
	}
	if kind == models.KindOllama {
		return "Error checking Ollama: " + err.Error()
	}
	return "Error validating " + kind.DisplayName() + ": " + err.Error()
}
