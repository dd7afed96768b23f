package youtube

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// rawFormat is one entry of yt-dlp's "formats" array. Numeric fields are
// nullable and sometimes fractional, hence the pointers to float64.
type rawFormat struct {
	FormatID string   `json:"format_id"`
	Ext      string   `json:"ext"`
	VCodec   string   `json:"vcodec"`
	ACodec   string   `json:"acodec"`
	Height   *float64 `json:"height"`
	FPS      *float64 `json:"fps"`
	Filesize *float64 `json:"filesize"`
}

func (f rawFormat) filesize() float64 {
	if f.Filesize == nil {
		return 0
	}
	return *f.Filesize
}

// Format is a display-resolution option offered to clients.
type Format struct {
	FormatID   string   `json:"format_id"`
	Resolution string   `json:"resolution"`
	FPS        *float64 `json:"fps"`
	Filesize   *int64   `json:"filesize"`
	Ext        string   `json:"ext,omitempty"`
	VCodec     string   `json:"vcodec,omitempty"`
	ACodec     string   `json:"acodec,omitempty"`
}

// ParseResolution turns "720p" into 720.
func ParseResolution(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "p"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid resolution %q", s)
	}
	return n, nil
}

// filterFormats picks one format per supported display resolution.
// Audio-only and height-less formats are skipped, as is anything taller than
// maxHeight. Each remaining format is bucketed to the closest supported
// height (the earlier entry in supported wins a tie); within a bucket the
// larger known filesize wins, otherwise the first seen is kept. The result is
// ordered tallest first.
func filterFormats(formats []rawFormat, maxHeight int, supported []int) []Format {
	if len(supported) == 0 {
		return []Format{}
	}

	chosen := make(map[int]rawFormat)
	for _, f := range formats {
		if f.VCodec == "none" || f.Height == nil {
			continue
		}
		height := int(*f.Height)
		if height > maxHeight {
			continue
		}

		closest := supported[0]
		for _, h := range supported[1:] {
			if abs(h-height) < abs(closest-height) {
				closest = h
			}
		}

		existing, ok := chosen[closest]
		if !ok {
			chosen[closest] = f
			continue
		}
		if f.filesize() != 0 && existing.filesize() != 0 && f.filesize() > existing.filesize() {
			chosen[closest] = f
		}
	}

	heights := make([]int, 0, len(chosen))
	for h := range chosen {
		heights = append(heights, h)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(heights)))

	out := make([]Format, 0, len(heights))
	for _, h := range heights {
		f := chosen[h]
		opt := Format{
			FormatID:   f.FormatID,
			Resolution: fmt.Sprintf("%dp", h),
			FPS:        f.FPS,
			Ext:        f.Ext,
			VCodec:     f.VCodec,
			ACodec:     f.ACodec,
		}
		if f.Filesize != nil {
			size := int64(*f.Filesize)
			opt.Filesize = &size
		}
		out = append(out, opt)
	}
	return out
}

// hasAudioOnly reports whether any format carries audio without video.
func hasAudioOnly(formats []rawFormat) bool {
	for _, f := range formats {
		if f.ACodec != "none" && f.VCodec == "none" {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
