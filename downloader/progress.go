package downloader

import (
	"context"
	"fmt"
	"time"

	"github.com/airbusgeo/geocube-exporter/service/log"
	"github.com/cavaliercoder/grab"
)

// fmtBytes formats a size with a binary unit (B, KiB, MiB, GiB)
func fmtBytes(bytes int64) string {
	units := []string{"B", "KiB", "MiB", "GiB"}
	v, i := float64(bytes), 0
	for ; v >= 1024 && i < len(units)-1; i++ {
		v /= 1024
	}
	return fmt.Sprintf("%.2f%s", v, units[i])
}

// displayProgress logs the progress of the download every progressPeriod (fraction) until it is done
func displayProgress(ctx context.Context, prefix string, resp *grab.Response, progressPeriod float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	progress, lastBytes, seconds := 0.0, int64(0), int64(0)
	for {
		select {
		case <-t.C:
			seconds++
			if resp.Size > 0 && resp.Progress() > progress {
				log.Logger(ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", prefix, 100*resp.Progress(), fmtBytes(resp.BytesComplete()), fmtBytes(resp.Size), fmtBytes((resp.BytesComplete()-lastBytes)/seconds))
				seconds = 0
				progress += progressPeriod
				lastBytes = resp.BytesComplete()
			}

		case <-resp.Done:
			return
		}
	}
}
