package backend

import (
	"sync"

	"ragd/internal/engine"
	"ragd/internal/imageutil"
)

// Vision is a stream backend that generates from a prompt plus the most
// recently uploaded image.
type Vision struct {
	*Stream[engine.VisionPrompt]

	imgMu sync.Mutex
	image imageutil.Tensor
	has   bool
}

// NewVision returns a STOPPED vision backend.
func NewVision(name string, opts StreamOptions) *Vision {
	v := &Vision{}
	v.Stream = NewStream[engine.VisionPrompt](name, opts, v.compose)
	return v
}

func (v *Vision) compose(prompt string) (engine.VisionPrompt, error) {
	v.imgMu.Lock()
	defer v.imgMu.Unlock()
	if !v.has {
		return engine.VisionPrompt{}, notReadyError{backend: v.Name(), state: StateIdle, reason: "no image uploaded"}
	}
	return engine.VisionPrompt{Prompt: prompt, Image: v.image}, nil
}

// SetImage stores the image used by subsequent submissions. The backend must
// be IDLE; its state is unchanged afterwards.
func (v *Vision) SetImage(t imageutil.Tensor) error {
	l, err := v.Acquire()
	if err != nil {
		return err
	}
	defer l.Release()
	v.imgMu.Lock()
	v.image, v.has = t, true
	v.imgMu.Unlock()
	return nil
}

// HasImage reports whether an image has been uploaded since the last unload.
func (v *Vision) HasImage() bool {
	v.imgMu.Lock()
	defer v.imgMu.Unlock()
	return v.has
}

// Unload releases the handle and forgets the uploaded image.
func (v *Vision) Unload() error {
	err := v.Stream.Unload()
	v.imgMu.Lock()
	v.image, v.has = imageutil.Tensor{}, false
	v.imgMu.Unlock()
	return err
}
