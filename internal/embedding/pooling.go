package embedding

// meanPool averages the rows of hidden, a row-major tokens x dims matrix,
// over the positions mask attends. Rows past the end of hidden are ignored.
func meanPool(hidden []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	var n float32
	for pos, m := range mask {
		end := (pos + 1) * dims
		if end > len(hidden) {
			break
		}
		if m == 0 {
			continue
		}
		for i, v := range hidden[pos*dims : end] {
			out[i] += v
		}
		n++
	}
	if n > 0 {
		for i := range out {
			out[i] /= n
		}
	}
	return out
}
