package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_RecordsRouteTemplate(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/v1/posts/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/api/v1/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "no")
	})

	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/posts/:id", "200"))
	for _, path := range []string{"/api/v1/posts/1", "/api/v1/posts/2"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/posts/:id", "200"))
	if after-before != 2 {
		t.Errorf("counter grew by %v, want 2", after-before)
	}

	before = testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/boom", "403"))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/boom", nil))
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/boom", "403")); got-before != 1 {
		t.Errorf("error status not recorded, delta %v", got-before)
	}
}

func TestRecordLikeToggle(t *testing.T) {
	liked := testutil.ToFloat64(LikeToggles.WithLabelValues("liked"))
	unliked := testutil.ToFloat64(LikeToggles.WithLabelValues("unliked"))

	RecordLikeToggle(true)
	RecordLikeToggle(false)
	RecordLikeToggle(false)

	if d := testutil.ToFloat64(LikeToggles.WithLabelValues("liked")) - liked; d != 1 {
		t.Errorf("liked delta = %v", d)
	}
	if d := testutil.ToFloat64(LikeToggles.WithLabelValues("unliked")) - unliked; d != 2 {
		t.Errorf("unliked delta = %v", d)
	}
}

func TestRecordMediaUpload(t *testing.T) {
	ok := testutil.ToFloat64(MediaUploads.WithLabelValues("local", "image", "ok"))
	failed := testutil.ToFloat64(MediaUploads.WithLabelValues("local", "image", "error"))

	RecordMediaUpload("local", "image", 2048, nil)
	RecordMediaUpload("local", "image", 0, errors.New("disk full"))

	if d := testutil.ToFloat64(MediaUploads.WithLabelValues("local", "image", "ok")) - ok; d != 1 {
		t.Errorf("ok delta = %v", d)
	}
	if d := testutil.ToFloat64(MediaUploads.WithLabelValues("local", "image", "error")) - failed; d != 1 {
		t.Errorf("error delta = %v", d)
	}
}
