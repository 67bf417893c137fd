package common

// WipeByteArray overwrites b with zeros. Raw keys are dropped with it as
// soon as the operation using them completes.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
