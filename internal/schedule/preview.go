package schedule

// MaxPreview caps the number of occurrences a preview may request.
const MaxPreview = 100

// Preview returns up to count upcoming trigger instants strictly after
// now, in ascending order. One-shot schedules contribute at most one
// entry, and only when it is still in the future.
func Preview(spec Spec, timezone string, count int, now int64) []int64 {
	if count < 1 {
		count = 1
	}
	if count > MaxPreview {
		count = MaxPreview
	}

	occurrences := make([]int64, 0, count)
	from := now
	for len(occurrences) < count {
		t, ok := NextTrigger(spec, timezone, from)
		if !ok || t <= now {
			break
		}
		occurrences = append(occurrences, t)
		if spec.OneShot() {
			break
		}
		from = t + ForwardPad
	}
	return occurrences
}
