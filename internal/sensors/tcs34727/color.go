package tcs34727

// RGB is a color normalised by the clear channel to 0..255.
type RGB struct {
	R, G, B uint8
}

// Normalize scales each color channel by 255/clear. A dark reading (clear
// of zero) is black.
func Normalize(ch Channels) RGB {
	if ch.Clear == 0 {
		return RGB{}
	}
	scale := func(v uint16) uint8 {
		x := uint32(v) * 255 / uint32(ch.Clear)
		if x > 255 {
			x = 255
		}
		return uint8(x)
	}
	return RGB{R: scale(ch.Red), G: scale(ch.Green), B: scale(ch.Blue)}
}

type Color uint8

const (
	None Color = iota
	Red
	Green
	Blue
)

func (c Color) String() string {
	switch c {
	case Red:
		return "RED"
	case Green:
		return "GREEN"
	case Blue:
		return "BLUE"
	default:
		return "NA"
	}
}

// Classifier picks the dominant color channel.
type Classifier struct {
	// MinClear is the clear count below which nothing is reported.
	MinClear uint16
	// Margin is how far (0..255) the strongest channel must lead the
	// runner-up.
	Margin uint8
}

func (c Classifier) Classify(ch Channels) Color {
	if ch.Clear < c.MinClear || ch.Clear == 0 {
		return None
	}
	rgb := Normalize(ch)
	vals := [3]uint8{rgb.R, rgb.G, rgb.B}
	best, second := 0, -1
	for i := 1; i < len(vals); i++ {
		if vals[i] > vals[best] {
			second, best = best, i
		} else if second < 0 || vals[i] > vals[second] {
			second = i
		}
	}
	if int(vals[best])-int(vals[second]) < int(c.Margin) {
		return None
	}
	return [...]Color{Red, Green, Blue}[best]
}
