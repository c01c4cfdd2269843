package harvest

import (
	"time"

	"github.com/david/eis-harvester/internal/eis"
	"github.com/david/eis-harvester/internal/rules"
)

// Options are the runtime knobs of one harvesting run, assembled from the
// command line.
type Options struct {
	Token               string
	Days                int
	Regions             []int
	Include223          bool
	Sleep               time.Duration
	Limit               int
	DownloadAttachments bool
	FetchByPurchase     bool
	MaxFileBytes        int64
	OutDir              string
}

// SubsystemPlan pairs a subsystem tag with the document types scanned
// under it.
type SubsystemPlan struct {
	Tag      string
	DocTypes []string
}

// Window is the immutable iteration space of one run: regions, the inclusive
// day range, and the subsystem plans. Derived once from options and rules at
// startup.
type Window struct {
	Regions    []int
	Start, End time.Time
	Subsystems []SubsystemPlan
}

// NewWindow derives the scan window. An empty region list means the full
// configured region set; the day range is the trailing lookback window
// ending today.
func NewWindow(opts Options, r *rules.Rules, now time.Time) Window {
	regions := opts.Regions
	if len(regions) == 0 {
		regions = r.Regions
	}

	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := day.AddDate(0, 0, -opts.Days)

	plans := []SubsystemPlan{{Tag: eis.SubsystemPRIZ, DocTypes: r.DocTypes44}}
	if opts.Include223 {
		plans = append(plans, SubsystemPlan{Tag: eis.SubsystemRI223, DocTypes: r.DocTypes223})
	}

	return Window{Regions: regions, Start: start, End: day, Subsystems: plans}
}
