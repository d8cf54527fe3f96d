package copier

import (
	"fmt"
	"os"
	"time"

	"github.com/lucasew/backupclean/internal/errutil"
	"github.com/schollz/progressbar/v3"
)

func newProgressBar(size int64, name string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		size,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(10),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprint(os.Stderr, "\n"); err != nil {
				errutil.LogMsg(err, "Failed to print newline to stderr")
			}
		}),
	)
}
