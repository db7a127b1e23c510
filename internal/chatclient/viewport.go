package chatclient

import (
	"unicode/utf8"

	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/model"
)

// Measure returns the rendered height of msgs, in whatever unit the
// renderer scrolls by.
type Measure func(msgs []model.Message) float64

// LineMeasure treats each message as a header line plus its content wrapped
// at width runes.
func LineMeasure(width int) Measure {
	if width <= 0 {
		width = 80
	}
	return func(msgs []model.Message) float64 {
		var h float64
		for i := range msgs {
			n := utf8.RuneCountInString(msgs[i].Content)
			lines := (n + width - 1) / width
			if lines == 0 {
				lines = 1
			}
			h += float64(1 + lines)
		}
		return h
	}
}

// Viewport is the scroll state of a chat view. Offset is the distance from
// the top of the content to the top of the visible area.
type Viewport struct {
	Offset        float64
	ContentHeight float64
	Height        float64
}

// topThreshold is how close to the top counts as scrolled to the top.
const topThreshold = 1.0

func (v Viewport) AtTop() bool {
	return v.Offset <= topThreshold
}

// AtBottom reports whether the newest content is in view.
func (v Viewport) AtBottom() bool {
	return v.ContentHeight-v.Height-v.Offset <= topThreshold
}

// Resize records a new content height. Growth above the visible area
// (prepended history) shifts the offset by the same amount, keeping what
// the user was looking at in place. Otherwise a viewport showing the newest
// content keeps following it.
func (v *Viewport) Resize(contentHeight, grewAbove float64) {
	stick := v.AtBottom()
	v.ContentHeight = contentHeight
	if grewAbove != 0 {
		v.Offset += grewAbove
		v.clamp()
		return
	}
	if stick {
		v.ScrollToBottom()
	}
	v.clamp()
}

func (v *Viewport) ScrollTo(offset float64) {
	v.Offset = offset
	v.clamp()
}

func (v *Viewport) ScrollToBottom() {
	v.Offset = v.ContentHeight - v.Height
	v.clamp()
}

func (v *Viewport) clamp() {
	maxOffset := v.ContentHeight - v.Height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if v.Offset > maxOffset {
		v.Offset = maxOffset
	}
	if v.Offset < 0 {
		v.Offset = 0
	}
}
