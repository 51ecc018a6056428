package bands

// Field names a settable component of HardwareState
type Field int

const (
	// FieldSpectroGrating is the spectrometer grating
	FieldSpectroGrating Field = iota
	// FieldShortPass is the short pass filter wheel
	FieldShortPass
	// FieldLongPass is the first long pass filter wheel
	FieldLongPass
	// FieldLongPass2 is the second long pass filter wheel
	FieldLongPass2
	// FieldMonoGrating is the monochromator grating
	FieldMonoGrating
)

func (f Field) String() string {
	switch f {
	case FieldSpectroGrating:
		return "spectro_grating"
	case FieldShortPass:
		return "spfw"
	case FieldLongPass:
		return "lpfw"
	case FieldLongPass2:
		return "lpfw2"
	case FieldMonoGrating:
		return "mono_grating"
	default:
		return "unknown"
	}
}

// Change is one field that differs between two states
type Change struct {
	Field Field
	From  int
	To    int
}

// Get returns the value of field f in s
func (s HardwareState) Get(f Field) int {
	switch f {
	case FieldSpectroGrating:
		return s.SpectroGrating
	case FieldShortPass:
		return s.ShortPass
	case FieldLongPass:
		return s.LongPass
	case FieldLongPass2:
		return s.LongPass2
	case FieldMonoGrating:
		return s.MonoGrating
	}
	return 0
}

// Fields lists every field in the order the hardware is written
func Fields() []Field {
	return []Field{FieldSpectroGrating, FieldShortPass, FieldLongPass, FieldLongPass2, FieldMonoGrating}
}

// Diff returns the fields of next that differ from prev, in hardware write
// order.  A nil prev means the applied state is unknown (fresh start or
// resumption after a crash), and every field is returned.
func Diff(prev *HardwareState, next HardwareState) []Change {
	var out []Change
	for _, f := range Fields() {
		to := next.Get(f)
		if prev == nil {
			out = append(out, Change{Field: f, From: -1, To: to})
			continue
		}
		if from := prev.Get(f); from != to {
			out = append(out, Change{Field: f, From: from, To: to})
		}
	}
	return out
}
