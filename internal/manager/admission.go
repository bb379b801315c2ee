package manager

// releaser is any admitted backend lease.
type releaser interface{ Release() }

// acquireStep admits one backend and stores its lease in dst.
func acquireStep[L releaser](dst *L, acquire func() (L, error)) func() (releaser, error) {
	return func() (releaser, error) {
		l, err := acquire()
		if err != nil {
			return nil, err
		}
		*dst = l
		return l, nil
	}
}

// begin admits every backend in order. If any is not IDLE, those already
// admitted are returned to IDLE and the error is reported. Returns a release
// func to be deferred.
func begin(steps ...func() (releaser, error)) (func(), error) {
	held := make([]releaser, 0, len(steps))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release()
		}
	}
	for _, step := range steps {
		l, err := step()
		if err != nil {
			release()
			return func() {}, err
		}
		held = append(held, l)
	}
	return release, nil
}
