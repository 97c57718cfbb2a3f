package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/platecraft/platecraft/internal/billing"
	"github.com/platecraft/platecraft/internal/domain"
	"github.com/platecraft/platecraft/internal/middleware"
	"github.com/platecraft/platecraft/internal/service"
)

// mockSubscriptionService implements service.SubscriptionService for testing.
type mockSubscriptionService struct {
	syncFunc          func(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error)
	cancelFunc        func(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error)
	reactivateFunc    func(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error)
	startCheckoutFunc func(ctx context.Context, profileID uuid.UUID) (*billing.CheckoutSession, error)
	portalURLFunc     func(ctx context.Context, profileID uuid.UUID) (string, error)
	expireLapsedFunc  func(ctx context.Context) (service.SweepResult, error)
	getDetailFunc     func(ctx context.Context, profileID uuid.UUID) (*service.SubscriptionDetail, error)
}

func (m *mockSubscriptionService) ProcessEvent(ctx context.Context, event service.InboundEvent) error {
	return errors.New("not implemented")
}

func (m *mockSubscriptionService) Sync(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error) {
	if m.syncFunc != nil {
		return m.syncFunc(ctx, profileID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSubscriptionService) Cancel(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error) {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, profileID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSubscriptionService) Reactivate(ctx context.Context, profileID uuid.UUID) (*domain.Profile, error) {
	if m.reactivateFunc != nil {
		return m.reactivateFunc(ctx, profileID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSubscriptionService) StartCheckout(ctx context.Context, profileID uuid.UUID) (*billing.CheckoutSession, error) {
	if m.startCheckoutFunc != nil {
		return m.startCheckoutFunc(ctx, profileID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSubscriptionService) PortalURL(ctx context.Context, profileID uuid.UUID) (string, error) {
	if m.portalURLFunc != nil {
		return m.portalURLFunc(ctx, profileID)
	}
	return "", errors.New("not implemented")
}

func (m *mockSubscriptionService) ExpireLapsed(ctx context.Context) (service.SweepResult, error) {
	if m.expireLapsedFunc != nil {
		return m.expireLapsedFunc(ctx)
	}
	return service.SweepResult{}, errors.New("not implemented")
}

func (m *mockSubscriptionService) GetDetail(ctx context.Context, profileID uuid.UUID) (*service.SubscriptionDetail, error) {
	if m.getDetailFunc != nil {
		return m.getDetailFunc(ctx, profileID)
	}
	return nil, errors.New("not implemented")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// authedRequest builds a request carrying an authenticated profile ID, the
// way RequireToken leaves it.
func authedRequest(method, path string, profileID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Accept", "application/json")
	ctx := context.WithValue(req.Context(), middleware.ProfileContextKey, profileID)
	return req.WithContext(ctx)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestSubscriptionHandler_Sync(t *testing.T) {
	profileID := uuid.New()
	periodEnd := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	svc := &mockSubscriptionService{
		syncFunc: func(_ context.Context, id uuid.UUID) (*domain.Profile, error) {
			if id != profileID {
				t.Errorf("profile ID = %v, want %v", id, profileID)
			}
			return &domain.Profile{
				ID:               profileID,
				Status:           domain.StatusPro,
				IsPublic:         true,
				CurrentPeriodEnd: &periodEnd,
			}, nil
		},
	}
	h := NewSubscriptionHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Sync(rec, authedRequest(http.MethodPost, "/api/subscription/sync", profileID))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp profileResponse
	decodeJSON(t, rec, &resp)
	if resp.ProfileID != profileID.String() {
		t.Errorf("profile_id = %q, want %q", resp.ProfileID, profileID)
	}
	if resp.Status != "pro" || !resp.IsPublic {
		t.Errorf("status/is_public = %q/%v, want pro/true", resp.Status, resp.IsPublic)
	}
}

func TestSubscriptionHandler_ErrorMapping(t *testing.T) {
	profileID := uuid.New()

	tests := []struct {
		name       string
		serve      func(h *SubscriptionHandler, rec *httptest.ResponseRecorder, req *http.Request)
		svc        *mockSubscriptionService
		path       string
		wantStatus int
		wantCode   string
	}{
		{
			name: "cancel without subscription",
			serve: func(h *SubscriptionHandler, rec *httptest.ResponseRecorder, req *http.Request) {
				h.Cancel(rec, req)
			},
			svc: &mockSubscriptionService{
				cancelFunc: func(_ context.Context, _ uuid.UUID) (*domain.Profile, error) {
					return nil, service.ErrNoSubscription
				},
			},
			path:       "/api/subscription/cancel",
			wantStatus: http.StatusBadRequest,
			wantCode:   domain.EINVALID,
		},
		{
			name: "reactivate after grace period",
			serve: func(h *SubscriptionHandler, rec *httptest.ResponseRecorder, req *http.Request) {
				h.Reactivate(rec, req)
			},
			svc: &mockSubscriptionService{
				reactivateFunc: func(_ context.Context, _ uuid.UUID) (*domain.Profile, error) {
					return nil, service.ErrSubscriptionEnded
				},
			},
			path:       "/api/subscription/reactivate",
			wantStatus: http.StatusBadRequest,
			wantCode:   domain.EINVALID,
		},
		{
			name: "checkout while already subscribed",
			serve: func(h *SubscriptionHandler, rec *httptest.ResponseRecorder, req *http.Request) {
				h.StartCheckout(rec, req)
			},
			svc: &mockSubscriptionService{
				startCheckoutFunc: func(_ context.Context, _ uuid.UUID) (*billing.CheckoutSession, error) {
					return nil, service.ErrAlreadySubscribed
				},
			},
			path:       "/api/subscription/checkout",
			wantStatus: http.StatusConflict,
			wantCode:   domain.ECONFLICT,
		},
		{
			name: "sync while billing unavailable",
			serve: func(h *SubscriptionHandler, rec *httptest.ResponseRecorder, req *http.Request) {
				h.Sync(rec, req)
			},
			svc: &mockSubscriptionService{
				syncFunc: func(_ context.Context, _ uuid.UUID) (*domain.Profile, error) {
					return nil, domain.Unavailable("subscription.sync", "billing is not configured")
				},
			},
			path:       "/api/subscription/sync",
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   domain.EUNAVAILABLE,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSubscriptionHandler(tt.svc, testLogger())
			rec := httptest.NewRecorder()
			tt.serve(h, rec, authedRequest(http.MethodPost, tt.path, profileID))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			decodeJSON(t, rec, &resp)
			if resp.Error.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestSubscriptionHandler_GetDetail(t *testing.T) {
	profileID := uuid.New()

	svc := &mockSubscriptionService{
		getDetailFunc: func(_ context.Context, _ uuid.UUID) (*service.SubscriptionDetail, error) {
			return &service.SubscriptionDetail{
				ProfileID:        profileID,
				Status:           domain.StatusPro,
				IsPublic:         true,
				HasSubscription:  true,
				PlanName:         "Platecraft Pro",
				PriceFormatted:   "$12.00/month",
				Interval:         "month",
				DaysUntilRenewal: 12,
				LatestInvoice: &service.InvoiceSummary{
					ID:             "in_1",
					Status:         "paid",
					AmountDueCents: 1200,
				},
			}, nil
		},
	}
	h := NewSubscriptionHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.GetDetail(rec, authedRequest(http.MethodGet, "/api/subscription", profileID))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp detailResponse
	decodeJSON(t, rec, &resp)
	if !resp.HasSubscription || resp.Price != "$12.00/month" {
		t.Errorf("unexpected detail body: %+v", resp)
	}
	if resp.LatestInvoice == nil || resp.LatestInvoice.ID != "in_1" {
		t.Errorf("latest invoice missing from response: %+v", resp.LatestInvoice)
	}
}

func TestSubscriptionHandler_StartCheckout(t *testing.T) {
	profileID := uuid.New()

	svc := &mockSubscriptionService{
		startCheckoutFunc: func(_ context.Context, _ uuid.UUID) (*billing.CheckoutSession, error) {
			return &billing.CheckoutSession{ID: "cs_1", URL: "https://checkout.test/cs_1"}, nil
		},
	}
	h := NewSubscriptionHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.StartCheckout(rec, authedRequest(http.MethodPost, "/api/subscription/checkout", profileID))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]string
	decodeJSON(t, rec, &resp)
	if resp["session_id"] != "cs_1" || resp["url"] != "https://checkout.test/cs_1" {
		t.Errorf("unexpected checkout body: %v", resp)
	}
}

func TestSweepHandler_Trigger(t *testing.T) {
	t.Run("returns sweep counts", func(t *testing.T) {
		svc := &mockSubscriptionService{
			expireLapsedFunc: func(_ context.Context) (service.SweepResult, error) {
				return service.SweepResult{Examined: 12, Demoted: 3, Errors: 1}, nil
			},
		}
		h := NewSweepHandler(svc, testLogger())

		rec := httptest.NewRecorder()
		h.Trigger(rec, authedRequest(http.MethodPost, "/api/jobs/expire", uuid.New()))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var resp map[string]int
		decodeJSON(t, rec, &resp)
		if resp["examined"] != 12 || resp["demoted"] != 3 || resp["errors"] != 1 {
			t.Errorf("unexpected sweep body: %v", resp)
		}
	})

	t.Run("maps sweep failure to 500", func(t *testing.T) {
		svc := &mockSubscriptionService{
			expireLapsedFunc: func(_ context.Context) (service.SweepResult, error) {
				return service.SweepResult{}, errors.New("db down")
			},
		}
		h := NewSweepHandler(svc, testLogger())

		rec := httptest.NewRecorder()
		h.Trigger(rec, authedRequest(http.MethodPost, "/api/jobs/expire", uuid.New()))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
	})
}
