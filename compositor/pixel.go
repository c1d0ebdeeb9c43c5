package compositor

import (
	"image"
	"runtime"
	"sync"
)

// minParallelPixels is the smallest layer area split across goroutines.
const minParallelPixels = 64 * 1024

// div255 is round(x / 255) for x in [0, 255*255].
func div255(x uint32) uint32 { return (x + 128 + ((x + 128) >> 8)) >> 8 }

func sat8(x uint32) uint8 {
	if x > 255 {
		return 255
	}
	return uint8(x)
}

// unpremul recovers an 8-bit straight channel from premultiplied c at alpha a.
func unpremul(c, a uint32) uint32 {
	if a == 255 {
		return c
	}
	v := (c*255 + a/2) / a
	if v > 255 {
		return 255
	}
	return v
}

// blendTable holds B(cb, cs) for 8-bit straight channels, indexed cs<<8 | cb.
type blendTable [1 << 16]uint8

var (
	tables    [numBlendModes]*blendTable
	tableOnce [numBlendModes]sync.Once
)

// tableFor builds the table of a separable mode on first use.
func tableFor(mode BlendMode) *blendTable {
	tableOnce[mode].Do(func() {
		f := blendFuncs[mode]
		t := new(blendTable)
		for cs := 0; cs < 256; cs++ {
			for cb := 0; cb < 256; cb++ {
				t[cs<<8|cb] = uint8(clamp01(f(float64(cb)/255, float64(cs)/255))*255 + 0.5)
			}
		}
		tables[mode] = t
	})
	return tables[mode]
}

// normalRow draws premultiplied src over dst at opacity m (0..255).
// dst and src hold the same number of pixels.
func normalRow(dst, src []uint8, m uint32) {
	src = src[:len(dst)]
	for i := 0; i+4 <= len(dst); i += 4 {
		sp := src[i : i+4 : i+4]
		dp := dst[i : i+4 : i+4]
		sa := div255(uint32(sp[3]) * m)
		if sa == 0 {
			continue
		}
		if sa == 255 {
			copy(dp, sp)
			continue
		}
		inv := 255 - sa
		dp[0] = sat8(div255(uint32(sp[0])*m) + div255(uint32(dp[0])*inv))
		dp[1] = sat8(div255(uint32(sp[1])*m) + div255(uint32(dp[1])*inv))
		dp[2] = sat8(div255(uint32(sp[2])*m) + div255(uint32(dp[2])*inv))
		dp[3] = sat8(sa + div255(uint32(dp[3])*inv))
	}
}

// separableRow applies a separable blend mode:
// (1 - Da)·S + (1 - Sa)·D + Sa·Da·B(Cb, Cs).
func separableRow(dst, src []uint8, m uint32, t *blendTable) {
	src = src[:len(dst)]
	for i := 0; i+4 <= len(dst); i += 4 {
		sp := src[i : i+4 : i+4]
		dp := dst[i : i+4 : i+4]
		srcA := uint32(sp[3])
		sa := div255(srcA * m)
		if sa == 0 {
			continue
		}
		da := uint32(dp[3])
		inv := 255 - sa
		switch {
		case da == 0:
			dp[0] = sat8(div255(uint32(sp[0]) * m))
			dp[1] = sat8(div255(uint32(sp[1]) * m))
			dp[2] = sat8(div255(uint32(sp[2]) * m))
			dp[3] = uint8(sa)
		case srcA == 255 && da == 255:
			for k := 0; k < 3; k++ {
				b := uint32(t[uint32(sp[k])<<8|uint32(dp[k])])
				dp[k] = uint8(div255(sa*b + inv*uint32(dp[k])))
			}
		default:
			sada := div255(sa * da)
			for k := 0; k < 3; k++ {
				cs := unpremul(uint32(sp[k]), srcA)
				cb := unpremul(uint32(dp[k]), da)
				b := uint32(t[cs<<8|cb])
				sc := div255(uint32(sp[k]) * m)
				dp[k] = sat8(div255((255-da)*sc) + div255(inv*uint32(dp[k])) + div255(sada*b))
			}
			dp[3] = sat8(sa + div255(da*inv))
		}
	}
}

// drawLayer composites src into r using the current alpha and operator.
func (c *Compositor) drawLayer(r image.Rectangle, src *image.RGBA) {
	m := uint32(clamp01(c.alpha)*255 + 0.5)
	if m == 0 || r.Empty() {
		return
	}
	s := c.scaled(r, src)
	sb := s.Bounds()

	var t *blendTable
	if c.op > Normal && c.op < numBlendModes {
		t = tableFor(c.op)
	}
	n := r.Dx() * 4
	rows := func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			so := s.PixOffset(sb.Min.X, sb.Min.Y+y)
			do := c.out.PixOffset(r.Min.X, r.Min.Y+y)
			sp, dp := s.Pix[so:so+n], c.out.Pix[do:do+n]
			if t == nil {
				normalRow(dp, sp, m)
			} else {
				separableRow(dp, sp, m, t)
			}
		}
	}
	parallelRows(r.Dx(), r.Dy(), rows)
}

// parallelRows runs f over bands of rows [0, h), one band per processor.
func parallelRows(w, h int, f func(y0, y1 int)) {
	workers := min(runtime.GOMAXPROCS(0), h)
	if workers < 2 || w*h < minParallelPixels {
		f(0, h)
		return
	}
	band := (h + workers - 1) / workers
	var wg sync.WaitGroup
	for y := 0; y < h; y += band {
		wg.Go(func() { f(y, min(y+band, h)) })
	}
	wg.Wait()
}
