package icon

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
)

// Sizes are the pixel sizes rendered for every toolbar icon.
var Sizes = []int{16, 32, 48}

// Set is one toolbar icon rendered at each of Sizes, keyed by size.
type Set map[int]*image.NRGBA

// Render draws an icon at every size in Sizes.
func Render(draw func(size int) *Canvas) Set {
	set := make(Set, len(Sizes))
	for _, size := range Sizes {
		set[size] = draw(size).Image()
	}
	return set
}

// NeutralSet renders the neutral icon.
func NeutralSet() Set { return Render(Neutral) }

// FailedSet renders the failed-scan icon.
func FailedSet() Set { return Render(Failed) }

// SpinnerSet renders one loading frame.
func SpinnerSet(frame int) Set {
	angle := SpinnerAngle(frame)
	return Render(func(size int) *Canvas { return Spinner(size, angle) })
}

// PNG encodes the image of the given size.
func (s Set) PNG(size int) ([]byte, error) {
	img, ok := s[size]
	if !ok {
		return nil, fmt.Errorf("icon: no image of size %d", size)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("icon: encoding %dpx png: %w", size, err)
	}
	return buf.Bytes(), nil
}

// DataURLs encodes every image as a PNG data URL keyed by its size in
// decimal, the shape browser icon APIs accept.
func (s Set) DataURLs() (map[string]string, error) {
	out := make(map[string]string, len(s))
	for size := range s {
		b, err := s.PNG(size)
		if err != nil {
			return nil, err
		}
		out[fmt.Sprint(size)] = "data:image/png;base64," + base64.StdEncoding.EncodeToString(b)
	}
	return out, nil
}
