package exporter_test

import (
	"context"
	"os"
	"path/filepath"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/downloader"
	"github.com/airbusgeo/geocube-exporter/exporter"
	"github.com/airbusgeo/geocube-exporter/interface/boundaries"
	"github.com/airbusgeo/geocube-exporter/interface/manifest/csv"
	"github.com/airbusgeo/geocube-exporter/service"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
)

var _ = Describe("Exporter", func() {
	var (
		ctx      context.Context
		dir      string
		server   *imageServer
		provider *fakeProvider
		store    *csv.Store
		exp      *exporter.Exporter
		opts     exporter.Options
	)

	request := func(resolution int, countries ...string) common.ExportRequest {
		return common.ExportRequest{Countries: countries, StartYear: 2020, EndYear: 2020, Resolution: resolution}
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		dir, err = os.MkdirTemp("", "exporter")
		Expect(err).NotTo(HaveOccurred())
		server = newImageServer()
		provider = newFakeProvider(server.URL)
		store, err = csv.New(dir)
		Expect(err).NotTo(HaveOccurred())
		opts = exporter.Options{}
	})

	JustBeforeEach(func() {
		source, err := boundaries.NewStaticSource(
			boundaries.BoxRegion("Testland", common.Bounds{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}),
			boundaries.BoxRegion("Otherland", common.Bounds{MinLon: 10, MinLat: 10, MaxLon: 11, MaxLat: 11}),
		)
		Expect(err).NotTo(HaveOccurred())
		d := downloader.New(downloader.Options{HTTP: service.DefaultHTTPOptions()})
		exp = exporter.New(source, provider, store, d, exporter.MustNewMetrics(prometheus.NewRegistry()), opts)
	})

	AfterEach(func() {
		server.Close()
		os.RemoveAll(dir)
	})

	Context("validating a resolution", func() {
		It("should accept 500m for Testland", func() {
			d, err := exp.ValidateResolution(ctx, "Testland", 500)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(common.ResolutionDecision{Valid: true, Resolution: 500}))
		})
		It("should suggest around 30m instead of 1m", func() {
			d, err := exp.ValidateResolution(ctx, "Testland", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Valid).To(BeFalse())
			Expect(d.Resolution).To(BeNumerically("~", 30, 2))
		})
	})

	Context("exporting one country", func() {
		BeforeEach(func() {
			provider.noData[common.TimeWindow{Year: 2020, Month: 2}] = true
		})

		It("should download all the available months", func() {
			results, err := exp.Export(ctx, request(500, "Testland"))
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			res := results[0]
			Expect(res.Status).To(Equal(common.StatusSuccess))
			Expect(res.Country).To(Equal("Testland"))
			Expect(res.Message).To(Equal("Downloaded 11/11 images"))
			Expect(res.Total).To(Equal(11))
			Expect(res.Downloaded).To(Equal(11))
			Expect(server.Requests()).To(Equal(11))

			Expect(filepath.Dir(res.Manifest)).To(Equal(dir))
			descriptors, err := store.Load(ctx, res.Manifest)
			Expect(err).NotTo(HaveOccurred())
			Expect(descriptors).To(HaveLen(11))
			for _, d := range descriptors {
				Expect(d.Downloaded).To(BeTrue())
				Expect(d.Window).NotTo(Equal(common.TimeWindow{Year: 2020, Month: 2}))
			}
			Expect(filepath.Join(dir, "Testland_2020_01.tif")).To(BeAnExistingFile())
			Expect(filepath.Join(dir, "Testland_2020_12.tif")).To(BeAnExistingFile())
			Expect(filepath.Join(dir, "Testland_2020_02.tif")).NotTo(BeAnExistingFile())
		})

		It("should reject a too high resolution without manifest", func() {
			results, err := exp.Export(ctx, request(1, "Testland"))
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Status).To(Equal(common.StatusError))
			Expect(results[0].Message).To(MatchRegexp(`^Resolution too high\. Please use \d+m or higher\.$`))
			Expect(results[0].Manifest).To(BeEmpty())
			Expect(provider.requests).To(BeZero())
			locations, err := store.Locations(ctx, "Testland")
			Expect(err).NotTo(HaveOccurred())
			Expect(locations).To(BeEmpty())
		})

		It("should not create a manifest when no image is available", func() {
			for m := 1; m <= 12; m++ {
				provider.noData[common.TimeWindow{Year: 2020, Month: m}] = true
			}
			results, err := exp.Export(ctx, request(500, "Testland"))
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Status).To(Equal(common.StatusSuccess))
			Expect(results[0].Message).To(ContainSubstring("No image available"))
			Expect(results[0].Manifest).To(BeEmpty())
			Expect(server.Requests()).To(BeZero())
		})

		It("should keep the failed downloads pending and resume them", func() {
			provider.failing[common.TimeWindow{Year: 2020, Month: 3}] = true
			provider.failing[common.TimeWindow{Year: 2020, Month: 7}] = true

			results, err := exp.Export(ctx, request(500, "Testland"))
			Expect(err).NotTo(HaveOccurred())
			res := results[0]
			Expect(res.Status).To(Equal(common.StatusSuccess))
			Expect(res.Downloaded).To(Equal(9))
			Expect(res.Total).To(Equal(11))
			Expect(res.Message).To(ContainSubstring("Downloaded 9/11 images (2 pending"))
			Expect(res.Message).To(ContainSubstring(res.Manifest))

			descriptors, err := store.Load(ctx, res.Manifest)
			Expect(err).NotTo(HaveOccurred())
			for _, d := range descriptors {
				Expect(d.Downloaded).To(Equal(d.Window.Month != 3 && d.Window.Month != 7))
			}

			server.Heal()
			before := server.Requests()
			resumed, err := exp.Resume(ctx, res.Manifest)
			Expect(err).NotTo(HaveOccurred())
			Expect(resumed.Status).To(Equal(common.StatusSuccess))
			Expect(resumed.Country).To(Equal("Testland"))
			Expect(resumed.Message).To(Equal("Downloaded 11/11 images"))
			Expect(server.Requests() - before).To(Equal(2))

			// Nothing left to do
			before = server.Requests()
			resumed, err = exp.Resume(ctx, res.Manifest)
			Expect(err).NotTo(HaveOccurred())
			Expect(resumed.Downloaded).To(Equal(11))
			Expect(server.Requests()).To(Equal(before))
		})

		It("should fail to resume an unknown manifest", func() {
			_, err := exp.Resume(ctx, filepath.Join(dir, "Testland_20200101_000000_urls.csv"))
			Expect(err).To(HaveOccurred())
		})

		It("should recover from a panic of the provider", func() {
			provider.panicOn["Testland"] = true
			results, err := exp.Export(ctx, request(500, "Testland"))
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Status).To(Equal(common.StatusError))
			Expect(results[0].Message).To(ContainSubstring("provider crashed"))
		})
	})

	Context("exporting several countries", func() {
		It("should report partial failures in the order of the request", func() {
			results, err := exp.Export(ctx, request(500, "Testland", "Atlantis"))
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].Country).To(Equal("Testland"))
			Expect(results[0].Status).To(Equal(common.StatusSuccess))
			Expect(results[1].Country).To(Equal("Atlantis"))
			Expect(results[1].Status).To(Equal(common.StatusError))
			Expect(results[1].Message).To(ContainSubstring("geometry"))
		})

		It("should not stop on a failing download", func() {
			provider.failing[common.TimeWindow{Year: 2020, Month: 1}] = true
			results, err := exp.Export(ctx, request(500, "Testland", "Otherland"))
			Expect(err).NotTo(HaveOccurred())
			Expect(results[0].Downloaded).To(Equal(11))
			Expect(results[1].Downloaded).To(Equal(11))
			Expect(results[1].Total).To(Equal(12))
			Expect(filepath.Join(dir, "Otherland_2020_12.tif")).To(BeAnExistingFile())
		})

		Context("in parallel", func() {
			BeforeEach(func() {
				opts.CountryWorkers = 3
				opts.ProviderWorkers = 4
			})
			It("should return the results in the order of the request", func() {
				countries := []string{"Otherland", "Atlantis", "Testland"}
				results, err := exp.Export(ctx, request(500, countries...))
				Expect(err).NotTo(HaveOccurred())
				Expect(results).To(HaveLen(3))
				for i, c := range countries {
					Expect(results[i].Country).To(Equal(c))
				}
				Expect(results[0].Downloaded).To(Equal(12))
				Expect(results[1].Status).To(Equal(common.StatusError))
				Expect(results[2].Downloaded).To(Equal(12))
				Expect(server.Requests()).To(Equal(24))
			})
		})
	})

	Context("with an invalid request", func() {
		It("should return an error", func() {
			_, err := exp.Export(ctx, common.ExportRequest{Countries: []string{"Testland"}, StartYear: 2021, EndYear: 2020, Resolution: 500})
			Expect(err).To(HaveOccurred())
			_, err = exp.Export(ctx, request(500))
			Expect(err).To(HaveOccurred())
		})
	})
})
