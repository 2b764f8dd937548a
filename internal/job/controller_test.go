package job

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhtools/podbulk/internal/api"
	"github.com/bhtools/podbulk/internal/apitest"
	"github.com/bhtools/podbulk/internal/config"
	"github.com/bhtools/podbulk/internal/constants"
	"github.com/bhtools/podbulk/internal/events"
	"github.com/bhtools/podbulk/internal/models"
)

const testInterval = 10 * time.Millisecond

func newController(t *testing.T, policy string) (*apitest.Server, *Controller, *events.EventBus) {
	t.Helper()
	srv := apitest.New(t)
	cfg := config.Default()
	cfg.APIURL = srv.URL
	cfg.HTTP.RequestsPerSecond = 0
	client, err := api.NewClient(cfg, nil)
	require.NoError(t, err)

	bus := events.NewEventBus(256)
	t.Cleanup(bus.Close)
	c := NewController(client, bus, nil, Options{Interval: testInterval, FailurePolicy: policy})
	t.Cleanup(c.Stop)
	return srv, c, bus
}

func validInputs() Inputs {
	return Inputs{
		Assets:     []string{"a.png", "b.png", "c.png"},
		CatalogID:  "1",
		TemplateID: "p1",
		APIKey:     "pk",
		Provider:   models.KindGemini,
		OpenAIKey:  "sk-unused",
		GeminiKey:  "g-key",
	}
}

func yes(string) bool { return true }

func wait(t *testing.T, c *Controller) models.JobProgress {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := c.Wait(ctx)
	require.NoError(t, err)
	return p
}

func TestRefusedSubmissionsMakeNoCall(t *testing.T) {
	srv, c, _ := newController(t, "")
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*Inputs)
		confirm ConfirmFunc
		wantErr error
	}{
		{"no assets", func(in *Inputs) { in.Assets = nil }, yes, ErrNoAssets},
		{"no store", func(in *Inputs) { in.CatalogID = "" }, yes, ErrNoCatalog},
		{"no product", func(in *Inputs) { in.TemplateID = "" }, yes, ErrNoTemplate},
		{"assets checked first", func(in *Inputs) { in.Assets = nil; in.CatalogID = "" }, yes, ErrNoAssets},
		{"declined", func(*Inputs) {}, func(string) bool { return false }, ErrNotConfirmed},
		{"no confirm func", func(*Inputs) {}, nil, ErrNotConfirmed},
		{"missing platform key", func(in *Inputs) { in.APIKey = "" }, yes, ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInputs()
			tt.mutate(&in)
			_, err := c.Submit(ctx, in, tt.confirm)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, 0, srv.TotalCalls())
	assert.Equal(t, StateIdle, c.State())
}

func TestConfirmPromptCarriesCount(t *testing.T) {
	_, c, _ := newController(t, "")
	var asked string
	_, _ = c.Submit(context.Background(), validInputs(), func(p string) bool {
		asked = p
		return false
	})
	assert.Equal(t, "Are you sure you want to create 3 products?", asked)
}

func TestBuildRequestSendsOnlyChosenProviderKey(t *testing.T) {
	in := validInputs()
	in.Rules = map[string]any{"title_source": "ai", "ai_provider": "ollama"}

	req, err := BuildRequest(in)
	require.NoError(t, err)
	assert.Equal(t, DefaultPlacementMode, req.PlacementMode)
	assert.Empty(t, req.OpenAIKey)
	assert.Equal(t, "g-key", req.GeminiKey)

	var rules map[string]any
	require.NoError(t, json.Unmarshal(req.Rules, &rules))
	assert.Equal(t, "ai", rules["title_source"])
	assert.Equal(t, "ollama", rules["ai_provider"])
	assert.Contains(t, rules, "ollama_model")
}

func TestTerminalStatusStopsPolling(t *testing.T) {
	srv, c, _ := newController(t, "")
	srv.ScriptProgress(
		models.JobProgress{Status: models.JobWorking, Current: 1, Total: 3, Message: "Creating"},
		models.JobProgress{Status: models.JobWorking, Current: 2, Total: 3, Message: "Creating"},
		models.JobProgress{Status: models.JobCompleted, Current: 3, Total: 3, Message: "Done"},
	)

	ack, err := c.Submit(context.Background(), validInputs(), yes)
	require.NoError(t, err)
	assert.Equal(t, "Creation started", ack.Message)
	require.Len(t, srv.Jobs(), 1)
	assert.Equal(t, []string{"a.png", "b.png", "c.png"}, srv.Jobs()[0].Images)

	p := wait(t, c)
	assert.Equal(t, models.JobCompleted, p.Status)
	assert.Equal(t, StateTerminated, c.State())
	assert.False(t, c.CancelAvailable())

	polls := srv.Calls("/api/progress")
	assert.Equal(t, 3, polls)
	time.Sleep(5 * testInterval)
	assert.Equal(t, polls, srv.Calls("/api/progress"))

	_, err = c.Cancel(context.Background())
	assert.ErrorIs(t, err, ErrCancelUnavailable)
	assert.Equal(t, 0, srv.Calls("/api/cancel"))
}

func TestCancelWinsOverInFlightPoll(t *testing.T) {
	srv, c, bus := newController(t, "")
	progress := bus.Subscribe(events.EventProgress)
	srv.ScriptProgress(models.JobProgress{Status: models.JobWorking, Current: 1, Total: 3})

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var once sync.Once
	t.Cleanup(func() { once.Do(func() { close(release) }) })
	srv.Hook("/api/progress", func(*http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})

	_, err := c.Submit(context.Background(), validInputs(), yes)
	require.NoError(t, err)
	epoch := c.Epoch()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("no poll started")
	}

	ack, err := c.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Operation cancelled", ack.Message)
	once.Do(func() { close(release) })

	p := wait(t, c)
	assert.Equal(t, models.JobCancelled, p.Status)
	assert.True(t, c.Cancelled())
	assert.Greater(t, c.Epoch(), epoch)

	time.Sleep(5 * testInterval)
	assert.Equal(t, models.JobCancelled, c.Snapshot().Status)
	for len(progress) > 0 {
		ev := (<-progress).(*events.ProgressEvent)
		if ev.Epoch == epoch {
			t.Fatalf("progress from cancelled epoch published: %+v", ev.Progress)
		}
	}
}

func TestPollFailurePolicy(t *testing.T) {
	t.Run("continue", func(t *testing.T) {
		srv, c, _ := newController(t, constants.PollFailureContinue)
		srv.FailTransport("/api/progress", true)
		srv.ScriptProgress(models.JobProgress{Status: models.JobCompleted, Current: 3, Total: 3})

		require.NoError(t, c.Watch(context.Background()))
		require.Eventually(t, func() bool { return srv.Calls("/api/progress") >= 2 }, 2*time.Second, testInterval)
		assert.Equal(t, StatePolling, c.State())

		srv.FailTransport("/api/progress", false)
		p := wait(t, c)
		assert.Equal(t, models.JobCompleted, p.Status)
	})

	t.Run("terminate", func(t *testing.T) {
		srv, c, _ := newController(t, constants.PollFailureTerminate)
		srv.FailTransport("/api/progress", true)

		require.NoError(t, c.Watch(context.Background()))
		p := wait(t, c)
		assert.Equal(t, models.JobError, p.Status)
		assert.NotEmpty(t, p.Message)
		assert.Equal(t, 1, srv.Calls("/api/progress"))
	})
}

func TestSubmitFlaggedByServiceStillPolls(t *testing.T) {
	srv, c, _ := newController(t, "")
	srv.SetCreateError("Missing required parameters")
	srv.ScriptProgress(models.JobProgress{Status: models.JobError, Message: "Missing required parameters"})

	ack, err := c.Submit(context.Background(), validInputs(), yes)
	require.Error(t, err)
	assert.True(t, api.IsRemote(err))
	require.NotNil(t, ack)
	assert.Equal(t, "Missing required parameters", ack.Message)

	p := wait(t, c)
	assert.Equal(t, models.JobError, p.Status)
	assert.Equal(t, StateTerminated, c.State())
	assert.GreaterOrEqual(t, srv.Calls("/api/progress"), 1)
}

func TestSubmitTransportFailureStaysIdle(t *testing.T) {
	srv, c, _ := newController(t, "")
	srv.FailTransport("/api/create_products", true)

	ack, err := c.Submit(context.Background(), validInputs(), yes)
	require.Error(t, err)
	assert.True(t, api.IsTransport(err))
	assert.Nil(t, ack)

	time.Sleep(5 * testInterval)
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 0, srv.Calls("/api/progress"))
}

func TestCancelOverridesCompletedPollInFlight(t *testing.T) {
	srv, c, _ := newController(t, "")
	srv.ScriptProgress(models.JobProgress{Status: models.JobWorking, Current: 1, Total: 3})

	// The job completes on the service while the cancel request travels.
	srv.Hook("/api/cancel", func(*http.Request) {
		srv.ScriptProgress(models.JobProgress{Status: models.JobCompleted, Current: 3, Total: 3})
		deadline := time.Now().Add(2 * time.Second)
		for c.State() != StateTerminated && time.Now().Before(deadline) {
			time.Sleep(testInterval)
		}
	})

	_, err := c.Submit(context.Background(), validInputs(), yes)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.Calls("/api/progress") >= 1 }, 2*time.Second, testInterval)

	ack, err := c.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Operation cancelled", ack.Message)

	p := wait(t, c)
	assert.Equal(t, models.JobCancelled, p.Status)
	assert.Equal(t, 3, p.Current)
	assert.True(t, c.Cancelled())
	assert.False(t, c.CancelAvailable())

	time.Sleep(5 * testInterval)
	assert.Equal(t, models.JobCancelled, c.Snapshot().Status)
}

func TestConcurrentSubmitSendsOnce(t *testing.T) {
	srv, c, _ := newController(t, "")
	srv.ScriptProgress(models.JobProgress{Status: models.JobWorking, Current: 0, Total: 3})

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var once sync.Once
	t.Cleanup(func() { once.Do(func() { close(release) }) })
	srv.Hook("/api/create_products", func(*http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
	})

	first := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), validInputs(), yes)
		first <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached the service")
	}

	_, err := c.Submit(context.Background(), validInputs(), yes)
	assert.ErrorIs(t, err, ErrJobActive)
	assert.ErrorIs(t, c.Watch(context.Background()), ErrJobActive)

	once.Do(func() { close(release) })
	require.NoError(t, <-first)
	assert.Equal(t, 1, srv.Calls("/api/create_products"))
	assert.Equal(t, StatePolling, c.State())
}

func TestStopReturnsToIdle(t *testing.T) {
	srv, c, _ := newController(t, "")
	srv.ScriptProgress(models.JobProgress{Status: models.JobWorking, Current: 1, Total: 3})

	require.NoError(t, c.Watch(context.Background()))
	assert.ErrorIs(t, c.Watch(context.Background()), ErrJobActive)

	c.Stop()
	assert.Equal(t, StateIdle, c.State())
	wait(t, c)
	require.NoError(t, c.Watch(context.Background()))
}
