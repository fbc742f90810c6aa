//go:build !ocr

package ocr

import "fmt"

func newGosseractBackend(string) (backend, error) {
	return nil, fmt.Errorf("%w: built without the ocr tag", ErrEngineUnavailable)
}
