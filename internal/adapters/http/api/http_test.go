package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/conjunct/internal/adapters/http/api"
	"github.com/okian/conjunct/internal/adapters/repository"
	service "github.com/okian/conjunct/internal/app"
)

type mockService struct {
	ready bool
	stats service.Stats
}

func (m *mockService) Ready() bool { return m.ready }

func (m *mockService) GetStats(context.Context) service.Stats { return m.stats }

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_Router(t *testing.T) {
	Convey("Given an ops server over a stopped service", t, func() {
		deps := &mockService{stats: service.Stats{
			HorizonDays: 14,
			VolumeKm:    10,
			Store:       repository.Stats{Satellites: 2, Events: 3},
			CollectedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		}}
		router := api.NewServer(deps, api.WithRequestTimeout(time.Second)).Router()

		Convey("When GET /healthz is requested", func() {
			w := serve(router, http.MethodGet, "/healthz")

			Convey("Then it answers ok", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")
				So(w.Body.String(), ShouldContainSubstring, `"status":"ok"`)
			})
		})

		Convey("When GET /readyz is requested", func() {
			w := serve(router, http.MethodGet, "/readyz")

			Convey("Then it is unavailable until the pipeline runs", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(w.Body.String(), ShouldContainSubstring, "not_ready")
			})

			Convey("And it turns ready once the service starts", func() {
				deps.ready = true
				w := serve(router, http.MethodGet, "/readyz")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"status":"ready"`)
			})
		})

		Convey("When GET /stats is requested", func() {
			w := serve(router, http.MethodGet, "/stats")

			Convey("Then the service stats are returned as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var got service.Stats
				So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
				So(got.HorizonDays, ShouldEqual, 14)
				So(got.VolumeKm, ShouldEqual, 10.0)
				So(got.Store.Events, ShouldEqual, 3)
				So(got.CollectedAt.Equal(deps.stats.CollectedAt), ShouldBeTrue)
			})
		})

		Convey("When GET /metrics is requested", func() {
			_ = serve(router, http.MethodGet, "/healthz")
			w := serve(router, http.MethodGet, "/metrics")

			Convey("Then the Prometheus registry is exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "conjunct_")
			})
		})

		Convey("When an unknown route or method is used", func() {
			missing := serve(router, http.MethodGet, "/events")
			post := serve(router, http.MethodPost, "/stats")

			Convey("Then chi rejects it", func() {
				So(missing.Code, ShouldEqual, http.StatusNotFound)
				So(post.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}
