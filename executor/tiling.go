package executor

// MaxTileEdge is the upper bound of a tile edge in pixels.
const MaxTileEdge = 2048

// rowAlignment is the copy bytes-per-row alignment the output rows are
// padded to.
const rowAlignment = 256

// AlignedRowBytes returns the padded output row size for width pixels.
func AlignedRowBytes(width uint32) uint64 {
	raw := uint64(width) * BytesPerPixel
	return (raw + rowAlignment - 1) / rowAlignment * rowAlignment
}

// NeedsTiling reports whether a width x height output buffer exceeds limit.
func NeedsTiling(width, height uint32, limit uint64) bool {
	return AlignedRowBytes(width)*uint64(height) > limit
}

// TileEdge returns the largest square edge, at most maxEdge, whose padded
// buffer fits in limit. It returns 0 when not even a 1x1 tile fits.
func TileEdge(limit uint64, maxEdge uint32) uint32 {
	if maxEdge == 0 || maxEdge > MaxTileEdge {
		maxEdge = MaxTileEdge
	}
	fits := func(e uint32) bool { return AlignedRowBytes(e)*uint64(e) <= limit }
	if !fits(1) {
		return 0
	}
	if fits(maxEdge) {
		return maxEdge
	}
	lo, hi := uint32(1), maxEdge
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// tile is one region of a tiled image.
type tile struct {
	x, y, w, h uint32
}

// tiles splits width x height into edge-sized squares, row-major. Edge
// tiles are clipped to the image.
func tiles(width, height, edge uint32) []tile {
	var out []tile
	for y := uint32(0); y < height; y += edge {
		for x := uint32(0); x < width; x += edge {
			out = append(out, tile{x: x, y: y, w: min(edge, width-x), h: min(edge, height-y)})
		}
	}
	return out
}
