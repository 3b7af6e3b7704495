package pg_test

import (
	"sync"

	"github.com/airbusgeo/geocube-exporter/common"
	"github.com/airbusgeo/geocube-exporter/interface/manifest"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Manifest", func() {
	var (
		err         error
		location    string
		descriptors []common.ExportDescriptor
	)

	BeforeEach(func() {
		descriptors = nil
		for _, w := range common.Windows(2019, 2019) {
			descriptors = append(descriptors, common.ExportDescriptor{
				URL:    "https://earthengine.example/" + w.String() + ":getPixels",
				Region: "Testland",
				Window: w,
			})
		}
		location, err = store.Create(ctx, "Testland", descriptors)
		Expect(err).NotTo(HaveOccurred())
	})

	Context("just created", func() {
		It("should load the same descriptors in the same order", func() {
			loaded, err := store.Load(ctx, location)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(descriptors))
		})

		It("should be listed with the region", func() {
			locations, err := store.Locations(ctx, "Testland")
			Expect(err).NotTo(HaveOccurred())
			Expect(locations).To(ContainElement(location))
			locations, err = store.Locations(ctx, "Otherland")
			Expect(err).NotTo(HaveOccurred())
			Expect(locations).To(BeEmpty())
		})
	})

	Context("updating rows", func() {
		It("should persist every update", func() {
			wg := sync.WaitGroup{}
			for i := range descriptors {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					Expect(store.Update(ctx, location, i, i%2 == 0)).To(Succeed())
				}(i)
			}
			wg.Wait()
			loaded, err := store.Load(ctx, location)
			Expect(err).NotTo(HaveOccurred())
			total, downloaded := manifest.Count(loaded)
			Expect(total).To(Equal(12))
			Expect(downloaded).To(Equal(6))
			Expect(loaded[0].Downloaded).To(BeTrue())
			Expect(loaded[1].Downloaded).To(BeFalse())
		})

		It("should fail out of range", func() {
			err = store.Update(ctx, location, 12, true)
			Expect(err).To(MatchError(manifest.ErrIndexOutOfRange))
		})

		It("should fail on unknown manifest", func() {
			err = store.Update(ctx, "unknown", 0, true)
			Expect(err).To(MatchError(manifest.ErrNotFound))
			_, err = store.Load(ctx, "unknown")
			Expect(err).To(MatchError(manifest.ErrNotFound))
		})
	})
})
