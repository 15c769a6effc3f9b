package pipeline

import (
	"io"
	"strings"
	"time"

	"catalog-sync/pkg/wiki"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Summary describes one finished sync.
type Summary struct {
	RunID    string
	Started  time.Time
	Duration time.Duration

	Drafts      int
	Series      int
	Added       int
	Renamed     int
	Archived    int
	Dropped     int
	Resurrected int

	// MissingFullType lists media that should have a full type but don't.
	MissingFullType []string
	// MissingThumbnails lists tv series lacking a thumbnail file.
	MissingThumbnails []string

	Stats wiki.Stats
}

// Render writes the summary as a table.
func (s *Summary) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("sync " + s.RunID)
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})

	t.AppendRows([]table.Row{
		{"duration", s.Duration.Round(time.Second).String()},
		{"media", humanize.Comma(int64(s.Drafts))},
		{"series", humanize.Comma(int64(s.Series))},
		{"new", s.Added},
		{"renamed", s.Renamed},
		{"archived", s.Archived},
		{"dropped", s.Dropped},
		{"resurrected", s.Resurrected},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"api requests", humanize.Comma(s.Stats.Requests)},
		{"api data", humanize.Bytes(uint64(s.Stats.APIBytes))},
		{"image data", humanize.Bytes(uint64(s.Stats.ImageBytes))},
		{"redirects", s.Stats.Redirects},
		{"storage reads", s.Stats.StorageReads},
		{"storage writes", s.Stats.StorageWrites},
	})
	if len(s.MissingFullType) > 0 || len(s.MissingThumbnails) > 0 {
		t.AppendSeparator()
		if len(s.MissingFullType) > 0 {
			t.AppendRow(table.Row{"no full type", strings.Join(s.MissingFullType, "\n")})
		}
		if len(s.MissingThumbnails) > 0 {
			t.AppendRow(table.Row{"no tv thumbnail", strings.Join(s.MissingThumbnails, "\n")})
		}
	}
	t.Render()
}
