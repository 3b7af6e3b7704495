package exporter_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/downloader"
	"github.com/airbusgeo/geocube-exporter/exporter"
	"github.com/airbusgeo/geocube-exporter/interface/boundaries"
	"github.com/airbusgeo/geocube-exporter/interface/manifest/csv"
	"github.com/airbusgeo/geocube-exporter/service"
	"github.com/gorilla/mux"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Handler", func() {
	var (
		dir      string
		server   *imageServer
		provider *fakeProvider
		router   *mux.Router
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "handler")
		Expect(err).NotTo(HaveOccurred())
		server = newImageServer()
		provider = newFakeProvider(server.URL)
		store, err := csv.New(dir)
		Expect(err).NotTo(HaveOccurred())
		source, err := boundaries.NewStaticSource(
			boundaries.BoxRegion("Testland", common.Bounds{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}),
		)
		Expect(err).NotTo(HaveOccurred())
		d := downloader.New(downloader.Options{HTTP: service.DefaultHTTPOptions()})
		router = exporter.New(source, provider, store, d, nil, exporter.Options{}).NewHandler()
	})

	AfterEach(func() {
		server.Close()
		os.RemoveAll(dir)
	})

	postForm := func(path string, values url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", path, strings.NewReader(values.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	decode := func(w *httptest.ResponseRecorder) common.ExportResponse {
		resp := common.ExportResponse{}
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		return resp
	}

	Context("POST /validate-resolution", func() {
		It("should validate the resolution", func() {
			w := postForm("/validate-resolution", url.Values{"country": {"Testland"}, "resolution": {"1"}})
			Expect(w.Code).To(Equal(http.StatusOK))
			d := map[string]interface{}{}
			Expect(json.Unmarshal(w.Body.Bytes(), &d)).To(Succeed())
			Expect(d["valid"]).To(BeFalse())
			Expect(d["suggested_resolution"]).To(BeNumerically("~", 30, 2))
		})
		It("should reject a missing resolution", func() {
			w := postForm("/validate-resolution", url.Values{"country": {"Testland"}})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("POST /download", func() {
		It("should export the countries of the form", func() {
			w := postForm("/download", url.Values{
				"countries":  {"Testland", "Atlantis"},
				"start_year": {"2020"},
				"end_year":   {"2020"},
				"resolution": {"500"},
			})
			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp.Status).To(Equal(common.ResponseSuccess))
			Expect(resp.Results).To(HaveLen(2))
			Expect(resp.Results[0].Status).To(Equal(common.StatusSuccess))
			Expect(resp.Results[0].Message).To(Equal("Downloaded 12/12 images"))
			Expect(resp.Results[1].Status).To(Equal(common.StatusError))
		})

		It("should accept a json body", func() {
			body := `{"countries":["Testland"],"start_year":2020,"end_year":2020,"resolution":1}`
			req := httptest.NewRequest("POST", "/download", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp.Results).To(HaveLen(1))
			Expect(resp.Results[0].Message).To(HavePrefix("Resolution too high."))
		})

		It("should reject an invalid request", func() {
			w := postForm("/download", url.Values{"countries": {"Testland"}, "start_year": {"2021"}, "end_year": {"2020"}, "resolution": {"500"}})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(w).Status).To(Equal(common.ResponseError))

			w = postForm("/download", url.Values{"countries": {"Testland"}, "start_year": {"x"}, "end_year": {"2020"}, "resolution": {"500"}})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("should reject an oversized year range", func() {
			w := postForm("/download", url.Values{"countries": {"Testland"}, "start_year": {"1"}, "end_year": {"2000000000"}, "resolution": {"500"}})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decode(w).Message).To(ContainSubstring("years"))
			Expect(provider.requests).To(BeZero())
		})

		It("should reject a too large body", func() {
			req := httptest.NewRequest("POST", "/download", strings.NewReader("countries=Testland"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			req.ContentLength = exporter.MaxRequestSize + 1
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusRequestEntityTooLarge))
			Expect(decode(w).Message).To(Equal("File too large (max 64MB)"))
		})

		It("should answer 500 when the server panics", func() {
			router.HandleFunc("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") }).Methods("POST")
			w := postForm("/panic", url.Values{})
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(decode(w).Message).To(Equal("Server error, please try with a lower resolution"))
		})
	})

	Context("POST /resume", func() {
		It("should resume an existing manifest", func() {
			provider.failing[common.TimeWindow{Year: 2020, Month: 5}] = true
			w := postForm("/download", url.Values{"countries": {"Testland"}, "start_year": {"2020"}, "end_year": {"2020"}, "resolution": {"500"}})
			resp := decode(w)
			Expect(resp.Results[0].Downloaded).To(Equal(11))
			manifest := resp.Results[0].Manifest

			server.Heal()
			w = postForm("/resume", url.Values{"manifest": {manifest}})
			Expect(w.Code).To(Equal(http.StatusOK))
			resp = decode(w)
			Expect(resp.Results).To(HaveLen(1))
			Expect(resp.Results[0].Downloaded).To(Equal(12))
		})

		It("should resume the latest manifest of a country", func() {
			provider.failing[common.TimeWindow{Year: 2020, Month: 5}] = true
			w := postForm("/download", url.Values{"countries": {"Testland"}, "start_year": {"2020"}, "end_year": {"2020"}, "resolution": {"500"}})
			Expect(decode(w).Results[0].Downloaded).To(Equal(11))

			server.Heal()
			w = postForm("/resume", url.Values{"country": {"Testland"}})
			Expect(w.Code).To(Equal(http.StatusOK))
			resp := decode(w)
			Expect(resp.Results).To(HaveLen(1))
			Expect(resp.Results[0].Country).To(Equal("Testland"))
			Expect(resp.Results[0].Downloaded).To(Equal(12))
		})

		It("should answer 404 for a country without manifest", func() {
			w := postForm("/resume", url.Values{"country": {"Otherland"}})
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("should require a manifest or a country", func() {
			w := postForm("/resume", url.Values{})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("should answer 404 for an unknown manifest", func() {
			w := postForm("/resume", url.Values{"manifest": {dir + "/unknown_urls.csv"}})
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("GET /countries", func() {
		It("should list the countries", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", "/countries", nil))
			Expect(w.Code).To(Equal(http.StatusOK))
			names := []string{}
			Expect(json.Unmarshal(w.Body.Bytes(), &names)).To(Succeed())
			Expect(names).To(Equal([]string{"Testland"}))
		})
	})
})
