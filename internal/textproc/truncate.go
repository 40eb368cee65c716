package textproc

// TruncationMarker separates the kept slices of a truncated text.
const TruncationMarker = "\n\n[...]\n\n"

// Truncate bounds text to roughly max characters. Text that fits is returned
// unchanged. Longer text keeps three equal slices of the budget: the head,
// a middle slice centered on the original midpoint, and the tail, joined by
// TruncationMarker. Counting is done in runes.
func Truncate(text string, max int) string {
	r := []rune(text)
	if max <= 0 || len(r) <= max {
		return text
	}

	third := max / 3
	if third == 0 {
		return string(r[:max])
	}

	head := r[:third]
	tail := r[len(r)-third:]

	midStart := len(r)/2 - third/2
	if midStart < third {
		midStart = third
	}
	midEnd := midStart + third
	if midEnd > len(r)-third {
		midEnd = len(r) - third
		midStart = midEnd - third
	}
	middle := r[midStart:midEnd]

	out := make([]rune, 0, 3*third+2*len(TruncationMarker))
	out = append(out, head...)
	out = append(out, []rune(TruncationMarker)...)
	out = append(out, middle...)
	out = append(out, []rune(TruncationMarker)...)
	out = append(out, tail...)
	return string(out)
}
