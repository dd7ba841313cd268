package swagger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func get(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, path, http.NoBody))
	return w
}

func TestRegister(t *testing.T) {
	Convey("Given the docs routes", t, func() {
		ctx := context.Background()
		mux := http.NewServeMux()
		Register(ctx, mux)

		Convey("The OpenAPI document describes the analyses API", func() {
			w := get(mux, http.MethodGet, SpecPath)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldEqual, "application/yaml; charset=utf-8")
			So(w.Body.String(), ShouldContainSubstring, "/v1/analyses/{id}")
		})

		Convey("The docs page loads ReDoc against the document", func() {
			w := get(mux, http.MethodGet, DocsPath)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, RedocURL)
			So(w.Body.String(), ShouldContainSubstring, "<title>abbayes API</title>")
			So(w.Body.String(), ShouldContainSubstring, SpecPath)
		})

		Convey("HEAD has headers and no body", func() {
			w := get(mux, http.MethodHead, SpecPath)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.Len(), ShouldEqual, 0)
		})

		Convey("Writes are refused", func() {
			w := get(mux, http.MethodPost, DocsPath)
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(w.Header().Get("Allow"), ShouldEqual, "GET, HEAD")
		})
	})

	Convey("Options change the page", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux, WithTitle("Experiments"), WithBundleURL("/static/redoc.js"))

		body := get(mux, http.MethodGet, DocsPath).Body.String()
		So(body, ShouldContainSubstring, "<title>Experiments</title>")
		So(body, ShouldContainSubstring, `src="/static/redoc.js"`)
		So(body, ShouldNotContainSubstring, RedocURL)
	})

	Convey("A nil mux is a programming error", t, func() {
		So(func() { Register(context.Background(), nil) }, ShouldPanic)
	})
}
