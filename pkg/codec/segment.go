package codec

// DefaultMaxSegmentSize is the largest segment EBICS banks must accept
const DefaultMaxSegmentSize = 1 << 20

// SegmentCount returns ceil(length/max); zero for empty input
func SegmentCount(length, max int) int {
	if length <= 0 {
		return 0
	}
	if max <= 0 {
		max = DefaultMaxSegmentSize
	}
	return (length + max - 1) / max
}

// Split cuts data into segments of at most max bytes. Concatenating the
// result reproduces data.
func Split(data []byte, max int) [][]byte {
	if max <= 0 {
		max = DefaultMaxSegmentSize
	}
	n := SegmentCount(len(data), max)
	segments := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		end := (i + 1) * max
		if end > len(data) {
			end = len(data)
		}
		segments = append(segments, data[i*max:end])
	}
	return segments
}

// Join concatenates segments in order
func Join(segments [][]byte) []byte {
	size := 0
	for _, s := range segments {
		size += len(s)
	}
	out := make([]byte, 0, size)
	for _, s := range segments {
		out = append(out, s...)
	}
	return out
}
