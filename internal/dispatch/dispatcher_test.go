package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/leshachaplin/capirelay/internal/domain"
	"github.com/leshachaplin/capirelay/internal/pii"
	"github.com/leshachaplin/capirelay/internal/platform"
	"github.com/leshachaplin/capirelay/internal/platform/meta"
	"github.com/leshachaplin/capirelay/internal/platform/snapchat"
	"github.com/leshachaplin/capirelay/internal/platform/tiktok"
)

type fakeAdapter struct {
	platform   domain.Platform
	enabledErr error
	adaptErr   error
	send       func(ctx context.Context) platform.Delivery
	sent       atomic.Int32
}

func (f *fakeAdapter) Platform() domain.Platform { return f.platform }

func (f *fakeAdapter) Enabled() error { return f.enabledErr }

func (f *fakeAdapter) Adapt(core domain.ConversionEventCore) (platform.Payload, error) {
	if f.adaptErr != nil {
		return platform.Payload{}, f.adaptErr
	}
	return platform.Payload{
		Platform:  f.platform,
		EventID:   core.EventID,
		EventName: core.EventName,
		Presence:  domain.Presence{Email: true},
	}, nil
}

func (f *fakeAdapter) Send(ctx context.Context, _ platform.Payload) platform.Delivery {
	f.sent.Add(1)
	if f.send == nil {
		return platform.Delivery{HTTPStatus: http.StatusOK}
	}
	return f.send(ctx)
}

func ok(p domain.Platform) *fakeAdapter {
	return &fakeAdapter{platform: p}
}

func failing(p domain.Platform, status int) *fakeAdapter {
	return &fakeAdapter{platform: p, send: func(context.Context) platform.Delivery {
		return platform.Delivery{
			HTTPStatus: status,
			Err:        &domain.PlatformRejection{Platform: p, StatusCode: status, Detail: "boom"},
		}
	}}
}

func unconfigured(p domain.Platform) *fakeAdapter {
	return &fakeAdapter{platform: p, enabledErr: &domain.ConfigurationError{Platform: p, Missing: []string{"access_token"}}}
}

// blocking waits for the call deadline or cancellation, like a hung platform.
func blocking(p domain.Platform) *fakeAdapter {
	return &fakeAdapter{platform: p, send: func(ctx context.Context) platform.Delivery {
		<-ctx.Done()
		return platform.Delivery{Err: &domain.TransportError{Platform: p, Err: ctx.Err()}}
	}}
}

func core() domain.ConversionEventCore {
	return domain.ConversionEventCore{
		EventID:   "evt-1",
		EventName: "Lead",
		UserData:  domain.RawUserData{Email: "a@b.com"},
		Timestamp: time.Unix(1700000000, 0),
	}
}

func TestDispatch_Aggregation(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cases := map[string]struct {
		adapters []*fakeAdapter
		status   domain.Status
		success  map[domain.Platform]bool
		skipped  map[domain.Platform]bool
	}{
		"all succeed": {
			adapters: []*fakeAdapter{ok(domain.Meta), ok(domain.Snapchat), ok(domain.TikTok)},
			status:   domain.StatusSuccess,
			success:  map[domain.Platform]bool{domain.Meta: true, domain.Snapchat: true, domain.TikTok: true},
		},
		"one fails with 500": {
			adapters: []*fakeAdapter{failing(domain.Meta, 500), ok(domain.Snapchat), ok(domain.TikTok)},
			status:   domain.StatusPartial,
			success:  map[domain.Platform]bool{domain.Snapchat: true, domain.TikTok: true},
		},
		"two fail": {
			adapters: []*fakeAdapter{failing(domain.Meta, 500), failing(domain.Snapchat, 400), ok(domain.TikTok)},
			status:   domain.StatusPartial,
			success:  map[domain.Platform]bool{domain.TikTok: true},
		},
		"all fail": {
			adapters: []*fakeAdapter{failing(domain.Meta, 500), failing(domain.Snapchat, 500), failing(domain.TikTok, 500)},
			status:   domain.StatusFailed,
		},
		"none configured": {
			adapters: []*fakeAdapter{unconfigured(domain.Meta), unconfigured(domain.Snapchat), unconfigured(domain.TikTok)},
			status:   domain.StatusFailed,
			skipped:  map[domain.Platform]bool{domain.Meta: true, domain.Snapchat: true, domain.TikTok: true},
		},
		"skipped platform is not a failure": {
			adapters: []*fakeAdapter{unconfigured(domain.Meta), ok(domain.Snapchat), ok(domain.TikTok)},
			status:   domain.StatusSuccess,
			success:  map[domain.Platform]bool{domain.Snapchat: true, domain.TikTok: true},
			skipped:  map[domain.Platform]bool{domain.Meta: true},
		},
		"only configured platform fails": {
			adapters: []*fakeAdapter{unconfigured(domain.Meta), unconfigured(domain.Snapchat), failing(domain.TikTok, 502)},
			status:   domain.StatusFailed,
			skipped:  map[domain.Platform]bool{domain.Meta: true, domain.Snapchat: true},
		},
	}

	for name, tc := range cases {
		tt := tc
		t.Run(name, func(t *testing.T) {
			adapters := make([]platform.Adapter, len(tt.adapters))
			for i := range tt.adapters {
				adapters[i] = tt.adapters[i]
			}

			res, err := New(Config{}, zerolog.Nop()).Dispatch(context.Background(), core(), adapters)
			require.NoError(t, err)
			require.Equal(t, tt.status, res.Status)
			require.Equal(t, domain.EventID("evt-1"), res.EventID)
			require.Len(t, res.Results, len(adapters))

			for i, r := range res.Results {
				require.Equal(t, tt.adapters[i].platform, r.Platform)
				require.Equal(t, tt.success[r.Platform], r.Success)
				require.Equal(t, tt.skipped[r.Platform], r.Skipped)
				if r.Skipped {
					require.Zero(t, tt.adapters[i].sent.Load())
					var cerr *domain.ConfigurationError
					require.True(t, errors.As(r.Err, &cerr))
					continue
				}
				require.Equal(t, "evt-1", r.PlatformEventID)
				if !r.Success {
					require.NotEmpty(t, r.Error)
				}
			}
		})
	}
}

func rejecting(p domain.Platform, reason string) *fakeAdapter {
	return &fakeAdapter{platform: p, adaptErr: &domain.ValidationError{Platform: p, Event: "FOO_BAR", Reason: reason}}
}

func TestDispatch_ValidationAbortsWhenEveryPlatformRejects(t *testing.T) {
	cases := map[string]struct {
		adapters []*fakeAdapter
		platform domain.Platform
	}{
		"all reject": {
			adapters: []*fakeAdapter{
				rejecting(domain.Meta, "unsupported event name"),
				rejecting(domain.Snapchat, "unsupported event name"),
				rejecting(domain.TikTok, "unsupported event name"),
			},
			platform: domain.Meta,
		},
		"the only enabled platform rejects": {
			adapters: []*fakeAdapter{
				unconfigured(domain.Meta),
				rejecting(domain.Snapchat, "unsupported event name"),
				unconfigured(domain.TikTok),
			},
			platform: domain.Snapchat,
		},
	}

	for name, tc := range cases {
		tt := tc
		t.Run(name, func(t *testing.T) {
			adapters := make([]platform.Adapter, len(tt.adapters))
			for i := range tt.adapters {
				adapters[i] = tt.adapters[i]
			}

			res, err := New(Config{}, zerolog.Nop()).Dispatch(context.Background(), core(), adapters)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, tt.platform, verr.Platform)
			require.Equal(t, "FOO_BAR", verr.Event)
			require.Equal(t, domain.StatusFailed, res.Status)
			require.Empty(t, res.Results)
			for _, a := range tt.adapters {
				require.Zero(t, a.sent.Load(), a.platform)
			}
		})
	}
}

func TestDispatch_RejectionIsolatedToItsPlatform(t *testing.T) {
	m, s, tk := ok(domain.Meta), rejecting(domain.Snapchat, "unsupported event name"), ok(domain.TikTok)

	res, err := New(Config{}, zerolog.Nop()).Dispatch(context.Background(), core(), []platform.Adapter{m, s, tk})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPartial, res.Status)

	snapRes, found := res.Result(domain.Snapchat)
	require.True(t, found)
	require.False(t, snapRes.Success)
	require.False(t, snapRes.Skipped)
	require.Contains(t, snapRes.Error, "unsupported event name")
	var verr *domain.ValidationError
	require.True(t, errors.As(snapRes.Err, &verr))

	require.Zero(t, s.sent.Load())
	require.Equal(t, int32(1), m.sent.Load())
	require.Equal(t, int32(1), tk.sent.Load())
}

func TestDispatch_PerCallTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	start := time.Now()
	res, err := New(Config{Timeout: 50 * time.Millisecond}, zerolog.Nop()).Dispatch(
		context.Background(), core(),
		[]platform.Adapter{blocking(domain.Meta), ok(domain.Snapchat), ok(domain.TikTok)},
	)
	require.NoError(t, err)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, domain.StatusPartial, res.Status)

	metaRes, found := res.Result(domain.Meta)
	require.True(t, found)
	require.False(t, metaRes.Success)
	var terr *domain.TransportError
	require.True(t, errors.As(metaRes.Err, &terr))
	require.ErrorIs(t, metaRes.Err, context.DeadlineExceeded)
}

func TestDispatch_CancelledContextKeepsResults(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	tk := ok(domain.TikTok)
	tk.send = func(context.Context) platform.Delivery {
		defer cancel()
		return platform.Delivery{HTTPStatus: http.StatusOK, TraceID: "rq-1"}
	}

	res, err := New(Config{Timeout: time.Minute}, zerolog.Nop()).Dispatch(
		ctx, core(),
		[]platform.Adapter{blocking(domain.Meta), blocking(domain.Snapchat), tk},
	)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPartial, res.Status)

	tiktokRes, _ := res.Result(domain.TikTok)
	require.True(t, tiktokRes.Success)
	require.Equal(t, "rq-1", tiktokRes.TraceID)
	for _, p := range []domain.Platform{domain.Meta, domain.Snapchat} {
		r, _ := res.Result(p)
		require.False(t, r.Success)
		require.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestDispatch_LogsPresenceOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	_, err := New(Config{}, logger).Dispatch(context.Background(), core(),
		[]platform.Adapter{ok(domain.Meta), failing(domain.TikTok, 500)})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, `"has_email":true`)
	require.Contains(t, out, `"has_phone":false`)
	require.NotContains(t, out, "a@b.com")
	require.NotContains(t, out, pii.Hash("a@b.com"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
}

type capture struct {
	mu     sync.Mutex
	bodies map[string][]byte
}

func (c *capture) handler(name string, response string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies[name] = body
		c.mu.Unlock()
		_, _ = w.Write([]byte(response))
	})
}

func TestDispatch_SharedEventIDAcrossPlatforms(t *testing.T) {
	c := &capture{bodies: make(map[string][]byte)}
	metaSrv := httptest.NewServer(c.handler("meta", `{"events_received":1,"fbtrace_id":"fb-1"}`))
	defer metaSrv.Close()
	snapSrv := httptest.NewServer(c.handler("snapchat", `{"status":"VALID","request_id":"sc-1"}`))
	defer snapSrv.Close()
	tiktokSrv := httptest.NewServer(c.handler("tiktok", `{"code":0,"message":"OK","request_id":"tt-1"}`))
	defer tiktokSrv.Close()

	normalizer := pii.New(pii.Config{Phone: pii.PhoneRule{
		CountryCode: "966", TrunkPrefix: "0", MobilePrefix: "5", SubscriberLength: 9,
	}}, zerolog.Nop())
	client := platform.NewClient(5*time.Second, zerolog.Nop())
	adapters := []platform.Adapter{
		meta.New(meta.Config{PixelID: "1", AccessToken: "m", BaseURL: metaSrv.URL}, normalizer, client),
		snapchat.New(snapchat.Config{PixelID: "2", AccessToken: "s", BaseURL: snapSrv.URL}, normalizer, client),
		tiktok.New(tiktok.Config{PixelID: "3", AccessToken: "t", BaseURL: tiktokSrv.URL}, normalizer, client),
	}

	ev := domain.ConversionEventCore{
		EventID:    "browser-generated-id",
		EventName:  "Lead",
		UserData:   domain.RawUserData{Phone: "0555123456", Email: "A@B.com "},
		CustomData: domain.CustomData{"value": 2500, "currency": "SAR"},
		Timestamp:  time.Unix(1700000000, 0),
	}

	res, err := New(Config{}, zerolog.Nop()).Dispatch(context.Background(), ev, adapters)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, res.Status)

	traces := map[domain.Platform]string{domain.Meta: "fb-1", domain.Snapchat: "sc-1", domain.TikTok: "tt-1"}
	for _, r := range res.Results {
		require.True(t, r.Success, r.Platform)
		require.Equal(t, "browser-generated-id", r.PlatformEventID)
		require.Equal(t, traces[r.Platform], r.TraceID)
	}

	var metaBody struct {
		Data []struct {
			EventName string `json:"event_name"`
			EventID   string `json:"event_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(c.bodies["meta"], &metaBody))
	require.Equal(t, "Lead", metaBody.Data[0].EventName)
	require.Equal(t, "browser-generated-id", metaBody.Data[0].EventID)

	var snapBody struct {
		Data []struct {
			EventID  string `json:"event_id"`
			UserData struct {
				Em []string `json:"em"`
			} `json:"user_data"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(c.bodies["snapchat"], &snapBody))
	require.Equal(t, "browser-generated-id", snapBody.Data[0].EventID)
	require.Equal(t, []string{pii.Hash("a@b.com")}, snapBody.Data[0].UserData.Em)

	var tiktokBody struct {
		Data []struct {
			Event   string `json:"event"`
			EventID string `json:"event_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(c.bodies["tiktok"], &tiktokBody))
	require.Equal(t, "Lead", tiktokBody.Data[0].Event)
	require.Equal(t, "browser-generated-id", tiktokBody.Data[0].EventID)
}

func TestDispatch_PlatformSpecificRejections(t *testing.T) {
	cases := map[string]struct {
		event    domain.ConversionEventCore
		status   domain.Status
		accepted []domain.Platform
		rejected map[domain.Platform]string
	}{
		"page view with only a meta browser id": {
			event: domain.ConversionEventCore{
				EventID:   "evt-fbp",
				EventName: "PageView",
				UserData:  domain.RawUserData{FBP: "fb.1.1700000000000.42"},
				Timestamp: time.Unix(1700000000, 0),
			},
			status:   domain.StatusPartial,
			accepted: []domain.Platform{domain.Meta},
			rejected: map[domain.Platform]string{
				domain.Snapchat: "is required",
				domain.TikTok:   "is required",
			},
		},
		"search outside the snapchat vocabulary": {
			event: domain.ConversionEventCore{
				EventID:   "evt-search",
				EventName: "Search",
				UserData:  domain.RawUserData{Email: "a@b.com"},
				Timestamp: time.Unix(1700000000, 0),
			},
			status:   domain.StatusPartial,
			accepted: []domain.Platform{domain.Meta, domain.TikTok},
			rejected: map[domain.Platform]string{
				domain.Snapchat: "unsupported event name",
			},
		},
	}

	for name, tc := range cases {
		tt := tc
		t.Run(name, func(t *testing.T) {
			c := &capture{bodies: make(map[string][]byte)}
			metaSrv := httptest.NewServer(c.handler("meta", `{"events_received":1,"fbtrace_id":"fb-1"}`))
			defer metaSrv.Close()
			snapSrv := httptest.NewServer(c.handler("snapchat", `{"status":"VALID","request_id":"sc-1"}`))
			defer snapSrv.Close()
			tiktokSrv := httptest.NewServer(c.handler("tiktok", `{"code":0,"message":"OK","request_id":"tt-1"}`))
			defer tiktokSrv.Close()

			normalizer := pii.New(pii.Config{}, zerolog.Nop())
			client := platform.NewClient(5*time.Second, zerolog.Nop())
			adapters := []platform.Adapter{
				meta.New(meta.Config{PixelID: "1", AccessToken: "m", BaseURL: metaSrv.URL}, normalizer, client),
				snapchat.New(snapchat.Config{PixelID: "2", AccessToken: "s", BaseURL: snapSrv.URL}, normalizer, client),
				tiktok.New(tiktok.Config{PixelID: "3", AccessToken: "t", BaseURL: tiktokSrv.URL}, normalizer, client),
			}

			res, err := New(Config{}, zerolog.Nop()).Dispatch(context.Background(), tt.event, adapters)
			require.NoError(t, err)
			require.Equal(t, tt.status, res.Status)

			for _, p := range tt.accepted {
				r, found := res.Result(p)
				require.True(t, found)
				require.True(t, r.Success, r.Error)
				c.mu.Lock()
				require.NotEmpty(t, c.bodies[string(p)], p)
				c.mu.Unlock()
			}
			for p, reason := range tt.rejected {
				r, found := res.Result(p)
				require.True(t, found)
				require.False(t, r.Success)
				require.Contains(t, r.Error, reason)
				c.mu.Lock()
				require.Empty(t, c.bodies[string(p)], p)
				c.mu.Unlock()
			}
		})
	}
}
