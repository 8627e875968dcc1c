package extension

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xraph/subvault/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{ProviderRegisterFee: 5})
	def := DefaultConfig()
	if cfg.BasePath != def.BasePath {
		t.Errorf("base path: got %q", cfg.BasePath)
	}
	if cfg.CalendarDayLength != def.CalendarDayLength || !cfg.CalendarEpoch.Equal(def.CalendarEpoch) {
		t.Errorf("calendar: got %s / %s", cfg.CalendarEpoch, cfg.CalendarDayLength)
	}
	if cfg.ProviderRegisterFee != 5 {
		t.Errorf("fee: got %d", cfg.ProviderRegisterFee)
	}
}

func TestMergeConfigurations(t *testing.T) {
	epoch := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	yaml := Config{BasePath: "/escrow", CalendarDayLength: time.Hour}
	prog := Config{
		BasePath:            "/ignored",
		DisableMigrate:      true,
		ProviderRegisterFee: 250,
		CalendarEpoch:       epoch,
		CalendarDayLength:   48 * time.Hour,
	}

	got := mergeConfigurations(yaml, prog)
	tests := []struct {
		name string
		ok   bool
	}{
		{"yaml base path wins", got.BasePath == "/escrow"},
		{"yaml day length wins", got.CalendarDayLength == time.Hour},
		{"programmatic epoch fills gap", got.CalendarEpoch.Equal(epoch)},
		{"programmatic fee fills gap", got.ProviderRegisterFee == 250},
		{"programmatic flag overrides", got.DisableMigrate},
		{"unset flag stays off", !got.DisableRoutes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.ok {
				t.Errorf("merged config: %+v", got)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	e := New(WithStore(memory.New()), WithProviderRegisterFee(7))
	e.config = mergeWithDefaults(e.config)
	e.build()

	if e.Engine() == nil {
		t.Fatal("engine not built")
	}
	if e.treasury == nil {
		t.Fatal("default treasury not set")
	}
	if err := e.Engine().Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/subvault/usernames/alice/available", nil)
	e.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("handler under base path: status %d body %s", rec.Code, rec.Body)
	}

	if err := e.Engine().Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestDisableRoutes(t *testing.T) {
	e := New(WithDisableRoutes())
	e.config = mergeWithDefaults(e.config)
	e.build()

	if e.Handler() != nil {
		t.Error("handler built with routes disabled")
	}
	if e.Engine() == nil {
		t.Error("engine not built")
	}
}
