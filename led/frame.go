package led

// Strip is the pixel buffer of one physical LED strip.
type Strip []Led

// Fill sets every pixel to color.
func (s Strip) Fill(color Led) {
	for i := range s {
		s[i] = color
	}
}

// Set writes a pixel, ignoring indices outside the strip.
func (s Strip) Set(index int, color Led) {
	if index >= 0 && index < len(s) {
		s[index] = color
	}
}

// Frame holds one Strip per physical output. It is allocated once and
// mutated in place by the active renderer.
type Frame struct {
	Strips []Strip
}

// NewFrame allocates strips x ledsPerStrip pixels, all black.
func NewFrame(strips, ledsPerStrip int) *Frame {
	f := &Frame{Strips: make([]Strip, strips)}
	for i := range f.Strips {
		f.Strips[i] = make(Strip, ledsPerStrip)
	}
	return f
}

// Clear zeroes every pixel of every strip.
func (f *Frame) Clear() {
	for _, s := range f.Strips {
		clear(s)
	}
}

// Fill sets every pixel of every strip to color.
func (f *Frame) Fill(color Led) {
	for _, s := range f.Strips {
		s.Fill(color)
	}
}

// Len is the number of pixels per strip.
func (f *Frame) Len() int {
	if len(f.Strips) == 0 {
		return 0
	}
	return len(f.Strips[0])
}

// IsEmpty reports whether every pixel is black.
func (f *Frame) IsEmpty() bool {
	for _, s := range f.Strips {
		for _, l := range s {
			if !l.IsEmpty() {
				return false
			}
		}
	}
	return true
}

// CopyInto copies the frame into dst, reallocating dst when the geometry
// differs, and returns it.
func (f *Frame) CopyInto(dst *Frame) *Frame {
	if dst == nil || len(dst.Strips) != len(f.Strips) || dst.Len() != f.Len() {
		dst = NewFrame(len(f.Strips), f.Len())
	}
	for i, s := range f.Strips {
		copy(dst.Strips[i], s)
	}
	return dst
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	return f.CopyInto(nil)
}
