package download

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/adamwoolhether/httpplus/client/progress"
)

// progressLog logs download progress events at most once per second,
// plus the final one.
type progressLog struct {
	logger    *slog.Logger
	dest      string
	startTime time.Time
	lastLog   time.Time
}

func (pl *progressLog) report(e progress.Event) {
	switch {
	case e.Done:
		pl.log("download complete", e)
	case time.Since(pl.lastLog) >= time.Second:
		pl.lastLog = time.Now()
		pl.log("downloading", e)
	}
}

func (pl *progressLog) log(msg string, e progress.Event) {
	elapsed := time.Since(pl.startTime)
	attrs := []any{
		"dest", pl.dest,
		"progress", fmt.Sprintf("%d%%", e.Percent),
		"elapsed", elapsed.Round(time.Millisecond),
		"transferred", e.Written,
		"total", e.Total,
		"mbps", fmt.Sprintf("%.2f", float64(e.Written)/elapsed.Seconds()/(1024*1024)),
	}
	pl.logger.Info(msg, attrs...)
}
