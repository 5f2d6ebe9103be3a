package service

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/leshachaplin/capirelay/internal/domain"
	"github.com/leshachaplin/capirelay/internal/platform"
)

type stubAdapter struct {
	platform.Adapter
	p          domain.Platform
	enabledErr error
}

func (a stubAdapter) Platform() domain.Platform { return a.p }

func (a stubAdapter) Enabled() error { return a.enabledErr }

type fakeDispatcher struct {
	calls    int
	core     domain.ConversionEventCore
	adapters []domain.Platform
	err      error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, core domain.ConversionEventCore, adapters []platform.Adapter) (domain.DispatchResult, error) {
	d.calls++
	d.core = core
	d.adapters = d.adapters[:0]
	results := make([]domain.PlatformResult, 0, len(adapters))
	for _, a := range adapters {
		d.adapters = append(d.adapters, a.Platform())
		results = append(results, domain.PlatformResult{
			Platform:        a.Platform(),
			Success:         true,
			PlatformEventID: core.EventID.String(),
			Err:             errors.New("internal"),
		})
	}
	if d.err != nil {
		return domain.DispatchResult{EventID: core.EventID, Status: domain.StatusFailed}, d.err
	}
	return domain.DispatchResult{EventID: core.EventID, Status: domain.Aggregate(results), Results: results}, nil
}

type fakePool struct {
	batches chan domain.ReportBatch
}

func (p *fakePool) Start(func(ctx context.Context, batch domain.ReportBatch) error) {}

func (p *fakePool) GracefulStop() {}

func (p *fakePool) Process(batch domain.ReportBatch) {
	p.batches <- batch
}

type nopStore struct{}

func (nopStore) StoreReports(context.Context, domain.ReportBatch) error { return nil }

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newService(d Dispatcher) (*Service, *fakePool) {
	pool := &fakePool{batches: make(chan domain.ReportBatch, 4)}
	adapters := []platform.Adapter{
		stubAdapter{p: domain.Meta},
		stubAdapter{p: domain.Snapchat},
		stubAdapter{p: domain.TikTok, enabledErr: &domain.ConfigurationError{Platform: domain.TikTok, Missing: []string{"pixel_id", "access_token"}}},
	}
	s := New(d, adapters, pool, nopStore{}, zerolog.Nop())
	s.now = func() time.Time { return fixedNow }
	return s, pool
}

func lead() domain.UserAction {
	return domain.UserAction{
		EventName:  " Lead ",
		UserData:   domain.RawUserData{Email: "A@B.com ", Phone: "0555123456"},
		CustomData: domain.CustomData{"value": 2500, "currency": "SAR"},
	}
}

func TestTrack_Rejects(t *testing.T) {
	cases := map[string]domain.UserAction{
		"no identifier": {
			EventName: "Lead",
			UserData:  domain.RawUserData{FirstName: "Sara", IP: "10.0.0.1", UserAgent: "Mozilla/5.0"},
		},
		"blank identifiers": {
			EventName: "Lead",
			UserData:  domain.RawUserData{Email: "  ", Phone: " "},
		},
		"no event name": {
			EventName: " ",
			UserData:  domain.RawUserData{Email: "a@b.com"},
		},
	}

	for name, tc := range cases {
		action := tc
		t.Run(name, func(t *testing.T) {
			d := &fakeDispatcher{}
			s, pool := newService(d)

			res, err := s.Track(context.Background(), action)
			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, domain.StatusFailed, res.Status)
			require.Zero(t, d.calls)
			require.Empty(t, pool.batches)
		})
	}
}

func TestTrack_EventID(t *testing.T) {
	d := &fakeDispatcher{}
	s, pool := newService(d)

	action := lead()
	action.EventID = "browser-id-1"
	res, err := s.Track(context.Background(), action)
	require.NoError(t, err)
	require.Equal(t, domain.EventID("browser-id-1"), res.EventID)
	require.Equal(t, domain.EventID("browser-id-1"), d.core.EventID)
	<-pool.batches

	res, err = s.Track(context.Background(), lead())
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), res.EventID.String())
	<-pool.batches
}

func TestTrack_BuildsCore(t *testing.T) {
	d := &fakeDispatcher{}
	s, pool := newService(d)

	action := lead()
	_, err := s.Track(context.Background(), action)
	require.NoError(t, err)
	<-pool.batches

	require.Equal(t, "Lead", d.core.EventName)
	require.Equal(t, fixedNow, d.core.Timestamp)
	require.Equal(t, []domain.Platform{domain.Meta, domain.Snapchat, domain.TikTok}, d.adapters)

	d.core.CustomData["value"] = 1
	require.Equal(t, 2500, action.CustomData["value"])

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	action.Timestamp = ts
	_, err = s.Track(context.Background(), action)
	require.NoError(t, err)
	<-pool.batches
	require.Equal(t, ts, d.core.Timestamp)
}

func TestTrack_PlatformFilter(t *testing.T) {
	d := &fakeDispatcher{}
	s, pool := newService(d)

	_, err := s.Track(context.Background(), lead(), domain.TikTok, domain.Meta)
	require.NoError(t, err)
	<-pool.batches
	require.Equal(t, []domain.Platform{domain.Meta, domain.TikTok}, d.adapters)
}

func TestTrack_DeliveryReport(t *testing.T) {
	d := &fakeDispatcher{}
	s, pool := newService(d)

	res, err := s.Track(context.Background(), lead())
	require.NoError(t, err)

	var batch domain.ReportBatch
	select {
	case batch = <-pool.batches:
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery report queued")
	}

	require.Equal(t, res.EventID.String(), batch.ID)
	require.Len(t, batch.Reports, 1)
	r := batch.Reports[0]
	require.Equal(t, res.EventID, r.EventID)
	require.Equal(t, "Lead", r.EventName)
	require.Equal(t, domain.StatusSuccess, r.Status)
	require.Equal(t, fixedNow, r.ServerTime)
	require.NotEmpty(t, r.ID)
	require.Len(t, r.Platforms, 3)
	for _, p := range r.Platforms {
		require.NoError(t, p.Err)
	}
	require.Error(t, res.Results[0].Err)

	raw, err := json.Marshal(batch)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "a@b.com")
	require.NotContains(t, string(raw), "0555123456")
}

func TestTrack_DispatchValidationSkipsReport(t *testing.T) {
	d := &fakeDispatcher{err: &domain.ValidationError{Platform: domain.Snapchat, Event: "FOO_BAR", Reason: "unsupported event name"}}
	s, pool := newService(d)

	action := lead()
	action.EventName = "FOO_BAR"
	_, err := s.Track(context.Background(), action)
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, domain.Snapchat, verr.Platform)

	time.Sleep(20 * time.Millisecond)
	require.Empty(t, pool.batches)
}

func TestPlatforms(t *testing.T) {
	s, _ := newService(&fakeDispatcher{})
	require.Equal(t, []PlatformStatus{
		{Platform: domain.Meta, Enabled: true},
		{Platform: domain.Snapchat, Enabled: true},
		{Platform: domain.TikTok, Enabled: false, Missing: []string{"pixel_id", "access_token"}},
	}, s.Platforms())
}
