package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/LinkShield/internal/app/model"
	"github.com/sifan077/LinkShield/internal/app/repository"
	"github.com/sifan077/LinkShield/internal/app/shield/payload"
	"github.com/sifan077/LinkShield/internal/app/shield/session"
	"github.com/sifan077/LinkShield/internal/http/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	secretURL = "https://secret.example.com/landing?ref=bio"
)

type memoryLinks struct {
	repository.LinkRepository
	links map[string]model.Link
}

func (m *memoryLinks) GetBySlug(_ context.Context, slug string) (*model.Link, error) {
	link, ok := m.links[slug]
	if !ok {
		return nil, repository.ErrLinkNotFound
	}
	return &link, nil
}

type recordingRecorder struct {
	mu      sync.Mutex
	records []session.ActionRecord
}

func (r *recordingRecorder) Record(_ context.Context, rec session.ActionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recordingRecorder) all() []session.ActionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.ActionRecord(nil), r.records...)
}

type shieldEnv struct {
	app      *fiber.App
	registry *session.Registry
	recorder *recordingRecorder
}

func newShieldEnv(t *testing.T, links ...model.Link) *shieldEnv {
	t.Helper()

	codec, err := payload.NewCodec([]byte("handler-test-secret"))
	require.NoError(t, err)

	byslug := map[string]model.Link{}
	for _, l := range links {
		byslug[l.Slug] = l
	}

	env := &shieldEnv{
		registry: session.NewRegistry(nil),
		recorder: &recordingRecorder{},
	}
	t.Cleanup(env.registry.Close)

	h := NewShieldHandler(ShieldDeps{
		Links:        &memoryLinks{links: byslug},
		Codec:        codec,
		Registry:     env.registry,
		Recorder:     env.recorder,
		Secret:       []byte("token-secret"),
		TickInterval: 5 * time.Millisecond,
		Options:      session.Options{Grace: 20 * time.Millisecond},
		Cloak:        view.CloakContent{SiteName: "Notes", Title: "Notes on everyday things", Body: "Walking."},
	})

	env.app = fiber.New(fiber.Config{Immutable: true})
	h.Register(env.app)
	return env
}

func browserRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Sec-Fetch-Dest", "document")
	return req
}

func (e *shieldEnv) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

var sessionPathRe = regexp.MustCompile(`_s(?:\\)?/([A-Za-z0-9_.\-]+)`)

// openGate loads the gated page and returns the session base path.
func (e *shieldEnv) openGate(t *testing.T, slug string) (string, string) {
	t.Helper()
	resp, body := e.do(t, browserRequest(http.MethodGet, "/"+slug))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := sessionPathRe.FindStringSubmatch(body)
	require.Len(t, m, 2, "gated page carries no session path")
	return "/" + slug + "/_s/" + m[1], body
}

func jsonPost(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeSnapshot(t *testing.T, body string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}

func TestResolve_NotFoundAndGone(t *testing.T) {
	expired := time.Now().Add(-time.Hour)
	env := newShieldEnv(t,
		model.Link{ID: "l-1", Slug: "off", Disabled: true, DestinationURL: secretURL},
		model.Link{ID: "l-2", Slug: "old", ExpiresAt: &expired, DestinationURL: secretURL},
	)

	resp, body := env.do(t, browserRequest(http.MethodGet, "/missing"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Link not found")

	resp, _ = env.do(t, browserRequest(http.MethodGet, "/off"))
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	resp, body = env.do(t, browserRequest(http.MethodGet, "/old"))
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.NotContains(t, body, "secret.example.com")
}

func TestResolve_UnprotectedLinkRedirectsAndRecords(t *testing.T) {
	env := newShieldEnv(t, model.Link{ID: "l-1", Slug: "plain", DestinationURL: "example.com/page"})

	resp, _ := env.do(t, browserRequest(http.MethodGet, "/plain"))
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://example.com/page", resp.Header.Get("Location"))

	records := env.recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, "l-1", records[0].LinkID)
	assert.Equal(t, session.ActionProceed, records[0].Action)
	assert.Equal(t, 0, env.registry.Len())
}

func TestResolve_UltraLinkBotGetsCloakedPage(t *testing.T) {
	env := newShieldEnv(t, model.Link{
		ID: "l-1", Slug: "ultra", Title: "Summer drop", DestinationURL: secretURL,
		ShieldEnabled: true, IsUltraLink: true,
	})

	req := httptest.NewRequest(http.MethodGet, "/ultra", nil)
	req.Header.Set("User-Agent", "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)")
	resp, body := env.do(t, req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Notes on everyday things")
	assert.NotContains(t, body, "secret.example.com")
	assert.NotContains(t, body, "Summer drop")
	assert.NotContains(t, strings.ToLower(body), "<script")
	assert.Equal(t, 0, env.registry.Len())
	assert.Empty(t, env.recorder.all())
}

func TestResolve_AdaptiveCloakUsesLinkTopic(t *testing.T) {
	env := newShieldEnv(t, model.Link{
		ID: "l-1", Slug: "ultra", Title: "Summer drop", Description: "New colours for the season.",
		DestinationURL: secretURL, ShieldEnabled: true, IsUltraLink: true,
		ProtectionConfig: `{"level":2,"timer":3000,"features":["adaptive-content"]}`,
	})

	req := httptest.NewRequest(http.MethodGet, "/ultra", nil)
	req.Header.Set("User-Agent", "curl/8.4.0")
	_, body := env.do(t, req)

	assert.Contains(t, body, "Summer drop")
	assert.Contains(t, body, "New colours for the season.")
	assert.NotContains(t, body, "secret.example.com")
}

func TestShieldFlow_ManualProceedIsIdempotent(t *testing.T) {
	env := newShieldEnv(t, model.Link{
		ID: "l-1", Slug: "gate", DestinationURL: secretURL, ShieldEnabled: true,
		ProtectionConfig: `{"level":1,"timer":0}`,
	})

	base, page := env.openGate(t, "gate")
	assert.NotContains(t, page, "secret.example.com")
	assert.Equal(t, 1, env.registry.Len())

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, base+"/state", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeSnapshot(t, body)
	assert.Equal(t, "READY", snap["state"])
	assert.Equal(t, true, snap["can_proceed"])
	assert.Nil(t, snap["navigation"])

	resp, body = env.do(t, jsonPost(base+"/proceed", ""))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Navigation session.Navigation `json:"navigation"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.Equal(t, session.MethodHref, out.Navigation.Method)
	assert.Equal(t, secretURL, out.Navigation.Target())

	resp, _ = env.do(t, jsonPost(base+"/proceed", ""))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	records := env.recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, "l-1", records[0].LinkID)
	assert.False(t, records[0].VerdictWasBot)
}

func TestShieldFlow_ConcurrentProceedRedirectsOnce(t *testing.T) {
	env := newShieldEnv(t, model.Link{
		ID: "l-1", Slug: "gate", DestinationURL: secretURL, ShieldEnabled: true,
		ProtectionConfig: `{"level":1,"timer":0}`,
	})
	base, _ := env.openGate(t, "gate")

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := env.app.Test(jsonPost(base+"/proceed", ""), -1)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			codes[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, codes[http.StatusOK])
	assert.Equal(t, 15, codes[http.StatusConflict])
	assert.Len(t, env.recorder.all(), 1)
}

func TestShieldFlow_ProceedBeforeReady(t *testing.T) {
	env := newShieldEnv(t, model.Link{
		ID: "l-1", Slug: "gate", DestinationURL: secretURL, ShieldEnabled: true,
		ProtectionConfig: `{"level":1,"timer":60000}`,
	})
	base, page := env.openGate(t, "gate")
	assert.Contains(t, page, `id="countdown">60<`)

	resp, _ := env.do(t, jsonPost(base+"/proceed", ""))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Empty(t, env.recorder.all())
}

func TestShieldFlow_AutoProceedDeliveredOnce(t *testing.T) {
	env := newShieldEnv(t, model.Link{
		ID: "l-1", Slug: "auto", DestinationURL: secretURL, ShieldEnabled: true,
		ProtectionConfig: `{"level":2,"timer":0,"features":["js-obfuscation"]}`,
	})
	base, _ := env.openGate(t, "auto")

	var nav map[string]any
	require.Eventually(t, func() bool {
		_, body := env.do(t, httptest.NewRequest(http.MethodGet, base+"/state", nil))
		snap := decodeSnapshot(t, body)
		if n, ok := snap["navigation"].(map[string]any); ok {
			nav = n
			return true
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	assert.Nil(t, nav["url"])
	assert.NotEmpty(t, nav["codes"])

	_, body := env.do(t, httptest.NewRequest(http.MethodGet, base+"/state", nil))
	snap := decodeSnapshot(t, body)
	assert.Equal(t, "REDIRECTED", snap["state"])
	assert.Nil(t, snap["navigation"])
	assert.Len(t, env.recorder.all(), 1)
}

func TestShieldFlow_EventsConfirmHuman(t *testing.T) {
	env := newShieldEnv(t, model.Link{
		ID: "l-1", Slug: "ultra", DestinationURL: secretURL, ShieldEnabled: true, IsUltraLink: true,
		ProtectionConfig: `{"level":1,"timer":0}`,
	})
	base, _ := env.openGate(t, "ultra")

	resp, body := env.do(t, jsonPost(base+"/events", `{"type":"pointer","count":3}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "GATED", decodeSnapshot(t, body)["state"])

	resp, body = env.do(t, jsonPost(base+"/events", `{"type":"pointer","count":20}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeSnapshot(t, body)
	assert.Equal(t, "human", snap["verdict"])
	assert.Equal(t, "READY", snap["state"])

	resp, _ = env.do(t, jsonPost(base+"/events", `{"type":"teleport"}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShieldFlow_AbandonAndBadTokens(t *testing.T) {
	env := newShieldEnv(t,
		model.Link{ID: "l-1", Slug: "gate", DestinationURL: secretURL, ShieldEnabled: true, ProtectionConfig: `{"level":1,"timer":60000}`},
		model.Link{ID: "l-2", Slug: "other", DestinationURL: secretURL, ShieldEnabled: true},
	)
	base, _ := env.openGate(t, "gate")
	token := strings.TrimPrefix(base, "/gate/_s/")

	resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/other/_s/"+token+"/state", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/gate/_s/forged.AAAAAA.AAAAAAAAAAAAAAAAAAAAAA/state", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, jsonPost(base+"/abandon", ""))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, env.registry.Len())

	resp, _ = env.do(t, httptest.NewRequest(http.MethodGet, base+"/state", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, env.recorder.all())
}

func TestShieldFlow_UnpolledAutoProceedRecordsNothing(t *testing.T) {
	env := newShieldEnv(t, model.Link{
		ID: "l-1", Slug: "auto", DestinationURL: secretURL, ShieldEnabled: true,
		ProtectionConfig: `{"level":2,"timer":0}`,
	})
	base, _ := env.openGate(t, "auto")
	id := strings.SplitN(strings.TrimPrefix(base, "/auto/_s/"), ".", 2)[0]

	s, ok := env.registry.Get(id)
	require.True(t, ok)
	// Well past the grace delay with the runner ticking.
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, session.StateReady, s.Snapshot(time.Now()).State)
	assert.Empty(t, env.recorder.all())

	resp, _ := env.do(t, jsonPost(base+"/abandon", ""))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, env.recorder.all())
}
